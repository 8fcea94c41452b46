// Package cpu implements the reference backend: allocations are host
// byte slices and kernels are Go functions run with the same
// environment-per-group, agent-per-thread geometry as a device launch.
// It exists for tests, for machines without a GPU, and as executable
// documentation of kernel semantics.
package cpu

import (
	"fmt"
	"sync"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/parallel"
	"github.com/stampede-rl/stampede/internal/sim"
)

// buffer is a host-resident allocation.
type buffer struct {
	label string
	data  []byte
}

// ByteSize returns the allocation size in bytes.
func (b *buffer) ByteSize() uint64 { return uint64(len(b.data)) }

// Backend runs kernels on the host. Launches execute synchronously in
// issue order, which trivially satisfies the single-stream FIFO
// contract; Download and Drain are then no-ops beyond bookkeeping.
type Backend struct {
	mu       sync.Mutex
	cfg      parallel.Config
	module   *module
	closed   bool
	resident uint64
}

// New creates a reference backend with default worker configuration.
func New() *Backend {
	return &Backend{cfg: parallel.DefaultConfig()}
}

// Name returns the backend name.
func (b *Backend) Name() string { return "cpu" }

// LaneMultiple returns 1: host threads have no lockstep width, so block
// dimensions are never rounded up.
func (b *Backend) LaneMultiple() int { return 1 }

// Alloc copies data into a fresh host allocation.
func (b *Backend) Alloc(label string, data []byte) (device.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, device.ErrClosed
	}
	buf := &buffer{label: label, data: make([]byte, len(data))}
	copy(buf.data, data)
	b.resident += uint64(len(data))
	return buf, nil
}

// Download returns a copy of the allocation.
func (b *Backend) Download(src device.Buffer) ([]byte, error) {
	buf, ok := src.(*buffer)
	if !ok {
		return nil, fmt.Errorf("cpu: foreign buffer handle %T", src)
	}
	out := make([]byte, len(buf.data))
	copy(out, buf.data)
	return out, nil
}

// HostView exposes the allocation's memory directly: the reference
// backend's zero-copy aliasing capability.
func (b *Backend) HostView(buf device.Buffer) ([]byte, bool) {
	hb, ok := buf.(*buffer)
	if !ok {
		return nil, false
	}
	return hb.data, true
}

// Load registers the program's kernels. A second Load without a new
// backend instance is an error, mirroring the GPU backends where it
// would silently shadow symbols.
func (b *Backend) Load(p device.Program, geom sim.Geometry) (device.Module, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, device.ErrClosed
	}
	if b.module != nil {
		return nil, fmt.Errorf("cpu: module already loaded")
	}
	m := &module{backend: b, geom: geom, kernels: make(map[string]device.Kernel, len(p.Kernels))}
	for _, k := range p.Kernels {
		if k.Func == nil {
			return nil, fmt.Errorf("cpu: kernel %q has no host implementation", k.Name)
		}
		if _, dup := m.kernels[k.Name]; dup {
			return nil, fmt.Errorf("cpu: duplicate kernel entry %q", k.Name)
		}
		m.kernels[k.Name] = k
		m.order = append(m.order, k.Name)
	}
	b.module = m
	return m, nil
}

// Drain is a no-op: launches complete before Invoke returns.
func (b *Backend) Drain() error { return nil }

// Close releases the backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.module = nil
	b.resident = 0
	return nil
}

// ResidentBytes reports the bytes currently allocated.
func (b *Backend) ResidentBytes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resident
}

type module struct {
	backend *Backend
	geom    sim.Geometry
	kernels map[string]device.Kernel
	order   []string
}

// Entries returns the loaded entry point names in load order.
func (m *module) Entries() []string {
	return append([]string(nil), m.order...)
}

// Invoke runs the kernel body for every (environment, agent) pair.
// Environments are distributed over the worker pool; agents within one
// environment run sequentially on one worker, matching the disjoint
// per-group memory model of a device launch.
func (m *module) Invoke(l device.Launch) error {
	k, ok := m.kernels[l.Entry]
	if !ok {
		return fmt.Errorf("cpu: unknown kernel entry %q", l.Entry)
	}
	if len(l.Buffers) != k.Arity {
		return fmt.Errorf("cpu: kernel %q wants %d buffers, got %d", l.Entry, k.Arity, len(l.Buffers))
	}

	raw := make([][]byte, len(l.Buffers))
	for i, db := range l.Buffers {
		hb, ok := db.(*buffer)
		if !ok {
			return fmt.Errorf("cpu: foreign buffer handle %T at binding %d", db, i)
		}
		raw[i] = hb.data
	}

	parallel.ForGroups(m.geom.GridDim, func(env int) {
		for agent := 0; agent < m.geom.BlockDim; agent++ {
			if agent >= m.geom.NumAgents {
				continue
			}
			k.Func(env, agent, m.geom, raw, l.Params)
		}
	}, m.backend.cfg)
	return nil
}
