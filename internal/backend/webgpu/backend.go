//go:build windows

// Package webgpu implements the device backend on WebGPU compute.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/stampede-rl/stampede/internal/device"
)

// laneMultiple is the lockstep width thread groups are rounded to.
// 64 covers both 32-wide (NVIDIA) and 64-wide (AMD) hardware without
// querying per-adapter limits the binding does not expose.
const laneMultiple = 64

// buffer wraps one storage buffer with its size and label.
type buffer struct {
	buf   *wgpu.Buffer
	size  uint64
	label string
}

// ByteSize returns the allocation size in bytes.
func (b *buffer) ByteSize() uint64 { return b.size }

// Backend implements the runtime's device contract on a WebGPU queue.
// All launches go through the device's default queue, which executes
// submissions in order: the single-stream FIFO guarantee.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfo

	// sentinel is a 4-byte storage buffer used by Drain: reading it back
	// through a staging copy cannot complete before earlier submissions.
	sentinel *wgpu.Buffer

	mu       sync.Mutex
	module   *module
	buffers  []*buffer
	resident uint64
	closed   bool
}

// New creates a WebGPU backend.
// Returns an error if WebGPU is not available or initialization fails.
func New() (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v (%w)", r, device.ErrUnavailable)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", device.ErrUnavailable)
	}

	adapterInfo := adapter.GetInfo()

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", device.ErrUnavailable)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue: %w", device.ErrUnavailable)
	}

	sentinel := dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  4,
	})

	return &Backend{
		instance:    instance,
		adapter:     adapter,
		dev:         dev,
		queue:       queue,
		adapterInfo: &adapterInfo,
		sentinel:    sentinel,
	}, nil
}

// Name returns the backend name with adapter identification.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("webgpu (%s %s)", b.adapterInfo.Name, b.adapterInfo.VendorName)
	}
	return "webgpu"
}

// LaneMultiple returns the lockstep width thread groups are rounded to.
func (b *Backend) LaneMultiple() int { return laneMultiple }

// Alloc creates a storage buffer initialized with data. The upload uses
// MappedAtCreation, so it is the single host-to-device transfer the push
// contract allows.
func (b *Backend) Alloc(label string, data []byte) (device.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, device.ErrClosed
	}

	size := uint64(len(data))
	buf := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	if buf == nil {
		return nil, fmt.Errorf("webgpu: allocation of %d bytes for %q failed", size, label)
	}

	mappedPtr := buf.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buf.Unmap()

	db := &buffer{buf: buf, size: size, label: label}
	b.buffers = append(b.buffers, db)
	b.resident += size
	return db, nil
}

// Download copies a full allocation back to the host through a staging
// buffer. Mapping the staging buffer blocks until every submission
// ordered before the copy has completed, so this is the stream's
// synchronization point.
func (b *Backend) Download(src device.Buffer) ([]byte, error) {
	db, ok := src.(*buffer)
	if !ok {
		return nil, fmt.Errorf("webgpu: foreign buffer handle %T", src)
	}
	return b.readBuffer(db.buf, db.size)
}

// readBuffer reads data back from a GPU buffer to host memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.dev.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmd := encoder.Finish(nil)
	b.queue.Submit(cmd)

	if err := staging.MapAsync(b.dev, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

// Drain blocks until every enqueued launch has completed by reading the
// sentinel buffer: the map cannot resolve before earlier submissions on
// the same queue.
func (b *Backend) Drain() error {
	_, err := b.readBuffer(b.sentinel, 4)
	return err
}

// Close drains the stream and releases all device resources.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	// Wait for in-flight work before freeing its memory.
	if _, err := b.readBuffer(b.sentinel, 4); err != nil {
		return fmt.Errorf("webgpu: drain on close: %w", err)
	}

	if b.module != nil {
		b.module.release()
		b.module = nil
	}
	for _, db := range b.buffers {
		db.buf.Release()
	}
	b.buffers = nil
	b.resident = 0

	b.sentinel.Release()
	b.queue.Release()
	b.dev.Release()
	b.adapter.Release()
	b.instance.Release()
	return nil
}

// ResidentBytes reports the bytes currently allocated on the device.
func (b *Backend) ResidentBytes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resident
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}
