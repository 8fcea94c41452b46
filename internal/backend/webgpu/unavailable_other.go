//go:build !windows

// Package webgpu implements the device backend on WebGPU compute.
// On platforms without the wgpu_native build, the backend reports
// unavailability so callers can fall back to the reference backend.
package webgpu

import (
	"fmt"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/sim"
)

// Backend is the unavailable placeholder for platforms without
// wgpu_native. Every operation fails with device.ErrUnavailable.
type Backend struct{}

// New reports that WebGPU is not available on this platform.
func New() (*Backend, error) {
	return nil, fmt.Errorf("webgpu: not built for this platform: %w", device.ErrUnavailable)
}

// IsAvailable reports whether WebGPU can be initialized.
func IsAvailable() bool { return false }

// Name returns the backend name.
func (b *Backend) Name() string { return "webgpu" }

// LaneMultiple returns the lockstep width thread groups are rounded to.
func (b *Backend) LaneMultiple() int { return 64 }

// Alloc always fails on this platform.
func (b *Backend) Alloc(string, []byte) (device.Buffer, error) {
	return nil, device.ErrUnavailable
}

// Download always fails on this platform.
func (b *Backend) Download(device.Buffer) ([]byte, error) {
	return nil, device.ErrUnavailable
}

// Load always fails on this platform.
func (b *Backend) Load(device.Program, sim.Geometry) (device.Module, error) {
	return nil, device.ErrUnavailable
}

// Drain always fails on this platform.
func (b *Backend) Drain() error { return device.ErrUnavailable }

// Close is a no-op on this platform.
func (b *Backend) Close() error { return nil }
