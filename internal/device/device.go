// Package device defines the execution backend contract of the Stampede
// runtime. A Backend owns device memory and a single FIFO execution
// stream; kernels are compiled from a Program and launched with the
// environment-per-group / agent-per-thread geometry.
package device

import (
	"errors"

	"github.com/stampede-rl/stampede/internal/sim"
)

// Errors shared by backend implementations.
var (
	// ErrUnavailable reports that the backend's device or driver cannot
	// be reached on this system.
	ErrUnavailable = errors.New("device unavailable")

	// ErrClosed reports use of a backend after Close.
	ErrClosed = errors.New("backend closed")
)

// Buffer is an opaque handle to one device allocation. Handles are
// created and owned by a Backend; passing a handle from one backend to
// another is a caller bug.
type Buffer interface {
	// ByteSize returns the allocation size in bytes.
	ByteSize() uint64
}

// KernelFunc is the host-side (reference backend) form of a kernel body.
// It is called once per (environment, agent) pair with the launch
// geometry, the raw bytes of every bound buffer in binding order, and
// the launch's parameter block. Implementations must treat
// agent >= geom.NumAgents as a no-op if they are ever invoked with a
// rounded-up block, and must address flattened arrays with the shared
// row-major convention (sim.Shape.Offset).
type KernelFunc func(env, agent int, geom sim.Geometry, buffers [][]byte, params []byte)

// Kernel is one device-executable entry point: a name, the WGSL source
// compiled by GPU backends, the Go body run by the reference backend,
// and the number of buffer arguments it binds.
//
// The WGSL source declares exactly one @compute fn named "main" with
// @workgroup_size(BLOCK); the backend injects NUM_ENVS, NUM_AGENTS and
// BLOCK as module constants before compilation, so geometry must be
// fixed before Load.
type Kernel struct {
	Name  string
	WGSL  string
	Func  KernelFunc
	Arity int
}

// Program is a bundle of kernels loaded as one module.
type Program struct {
	Kernels []Kernel
}

// Merge returns a program containing the kernels of p followed by those
// of others. Duplicate names are left for Load to reject.
func (p Program) Merge(others ...Program) Program {
	merged := Program{Kernels: append([]Kernel(nil), p.Kernels...)}
	for _, o := range others {
		merged.Kernels = append(merged.Kernels, o.Kernels...)
	}
	return merged
}

// Launch describes one kernel invocation: the entry point, the device
// buffers bound in declaration order, and an optional small parameter
// block (uploaded as a uniform on GPU backends, passed through verbatim
// on the reference backend).
type Launch struct {
	Entry   string
	Buffers []Buffer
	Params  []byte
}

// Module is a loaded program whose entry points can be launched.
// Launches are asynchronous and execute in issue order on the backend's
// single stream.
type Module interface {
	// Entries returns the names of all loaded entry points.
	Entries() []string

	// Invoke enqueues one launch. The call returns once the launch is
	// queued, not once it has executed.
	Invoke(l Launch) error
}

// Backend is the contract every execution target implements.
type Backend interface {
	// Name returns a human-readable backend identification.
	Name() string

	// LaneMultiple returns the hardware lockstep width thread groups are
	// rounded to (1 for the reference backend).
	LaneMultiple() int

	// Alloc creates a device allocation initialized with data, performing
	// exactly one host-to-device transfer. The label is for diagnostics.
	Alloc(label string, data []byte) (Buffer, error)

	// Download copies a full allocation back to the host. This is a
	// synchronization point: it drains all previously enqueued launches.
	Download(src Buffer) ([]byte, error)

	// Load compiles a program against a fixed geometry and returns its
	// module. A backend loads at most one module per instance.
	Load(p Program, geom sim.Geometry) (Module, error)

	// Drain blocks until every enqueued launch has been submitted and
	// completed.
	Drain() error

	// Close drains the stream and releases all device resources.
	// The backend is unusable afterwards.
	Close() error
}

// HostViewer is the optional zero-copy aliasing capability: backends
// whose allocations are host-addressable expose them for an external
// tensor-consuming framework without a device-to-host copy. Callers
// probe with a type assertion; absence means Pull is the only way out.
type HostViewer interface {
	// HostView returns a live view of the allocation's memory, or false
	// if this backend cannot alias device memory on the host.
	HostView(b Buffer) ([]byte, bool)
}
