//go:build windows

package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/sim"
)

// prologue injects the fixed launch geometry as WGSL module constants.
// Kernels declare @compute @workgroup_size(BLOCK) and guard
// local_invocation_id.x against NUM_AGENTS; the workgroup size must be a
// shader compile-time constant, which is why geometry is fixed before
// Load.
func prologue(geom sim.Geometry) string {
	return fmt.Sprintf(
		"const NUM_ENVS: u32 = %du;\nconst NUM_AGENTS: u32 = %du;\nconst BLOCK: u32 = %du;\n\n",
		geom.NumEnvs, geom.NumAgents, geom.BlockDim)
}

type compiledKernel struct {
	spec     device.Kernel
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
}

type module struct {
	backend *Backend
	geom    sim.Geometry
	kernels map[string]*compiledKernel
	order   []string
}

// Load compiles every kernel of the program against the fixed geometry.
// Each kernel is its own shader module and pipeline, cached by name; a
// second Load on the same backend instance is rejected so entry points
// can never be silently shadowed.
func (b *Backend) Load(p device.Program, geom sim.Geometry) (device.Module, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, device.ErrClosed
	}
	if b.module != nil {
		return nil, fmt.Errorf("webgpu: module already loaded")
	}

	m := &module{
		backend: b,
		geom:    geom,
		kernels: make(map[string]*compiledKernel, len(p.Kernels)),
	}
	header := prologue(geom)
	for _, k := range p.Kernels {
		if k.WGSL == "" {
			return nil, fmt.Errorf("webgpu: kernel %q has no WGSL source", k.Name)
		}
		if _, dup := m.kernels[k.Name]; dup {
			return nil, fmt.Errorf("webgpu: duplicate kernel entry %q", k.Name)
		}
		shader := b.dev.CreateShaderModuleWGSL(header + k.WGSL)
		pipeline := b.dev.CreateComputePipelineSimple(nil, shader, "main")
		m.kernels[k.Name] = &compiledKernel{spec: k, shader: shader, pipeline: pipeline}
		m.order = append(m.order, k.Name)
	}
	b.module = m
	return m, nil
}

// Entries returns the loaded entry point names in load order.
func (m *module) Entries() []string {
	return append([]string(nil), m.order...)
}

// Invoke encodes and submits one launch. Buffers bind at 0..Arity-1 in
// order; a non-empty parameter block binds as a uniform at Arity. The
// submission is asynchronous: the queue executes it after everything
// submitted before it.
func (m *module) Invoke(l device.Launch) error {
	ck, ok := m.kernels[l.Entry]
	if !ok {
		return fmt.Errorf("webgpu: unknown kernel entry %q", l.Entry)
	}
	if len(l.Buffers) != ck.spec.Arity {
		return fmt.Errorf("webgpu: kernel %q wants %d buffers, got %d", l.Entry, ck.spec.Arity, len(l.Buffers))
	}

	b := m.backend
	entries := make([]wgpu.BindGroupEntry, 0, len(l.Buffers)+1)
	for i, db := range l.Buffers {
		wb, ok := db.(*buffer)
		if !ok {
			return fmt.Errorf("webgpu: foreign buffer handle %T at binding %d", db, i)
		}
		//nolint:gosec // binding index is bounded by kernel arity
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), wb.buf, 0, wb.size))
	}

	var params *wgpu.Buffer
	if len(l.Params) > 0 {
		params = b.createUniformBuffer(l.Params)
		defer params.Release()
		//nolint:gosec // binding index is bounded by kernel arity
		entries = append(entries, wgpu.BufferBindingEntry(uint32(len(l.Buffers)), params, 0, alignedSize(l.Params)))
	}

	layout := ck.pipeline.GetBindGroupLayout(0)
	bindGroup := b.dev.CreateBindGroupSimple(layout, entries)
	defer bindGroup.Release()

	encoder := b.dev.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(ck.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // grid dimension validated positive at geometry fix
	pass.DispatchWorkgroups(uint32(m.geom.GridDim), 1, 1)
	pass.End()

	cmd := encoder.Finish(nil)
	b.queue.Submit(cmd)
	return nil
}

func (m *module) release() {
	for _, ck := range m.kernels {
		ck.pipeline.Release()
		ck.shader.Release()
	}
	m.kernels = nil
}

func alignedSize(data []byte) uint64 {
	return (uint64(len(data)) + 15) &^ 15 // round up to 16-byte boundary
}

// createUniformBuffer creates a uniform buffer with 16-byte alignment,
// as required for WGSL uniform struct fields.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := alignedSize(data)
	buf := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buf.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buf.Unmap()
	return buf
}
