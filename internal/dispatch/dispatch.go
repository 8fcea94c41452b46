// Package dispatch implements the kernel registry and dispatcher: it
// fixes the launch geometry once, loads a program once, resolves entry
// points by name, and launches kernels with the cached geometry over
// raw device buffers.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/sim"
)

// Contract-violation errors, all fatal to the caller.
var (
	ErrGeometryFixed = errors.New("launch geometry already fixed")
	ErrGeometryUnset = errors.New("launch geometry not fixed")
	ErrModuleLoaded  = errors.New("module already loaded")
	ErrNoModule      = errors.New("no module loaded")
	ErrUnknownEntry  = errors.New("unknown kernel entry")
)

// Registry owns one backend's compiled module and launch geometry.
type Registry struct {
	backend device.Backend
	log     *slog.Logger

	mu     sync.Mutex
	geom   sim.Geometry
	fixed  bool
	module device.Module
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a structured logger for geometry and load events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New creates a registry for a backend.
func New(backend device.Backend, opts ...Option) *Registry {
	r := &Registry{backend: backend, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetGeometry fixes the launch geometry from the problem shape: one
// thread group per environment, one thread per agent, with the block
// rounded up to the backend's lane multiple. Setting it twice is an
// error; recomputation after kernels are initialized would silently
// change every launch.
func (r *Registry) SetGeometry(numEnvs, numAgents int) (sim.Geometry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fixed {
		return sim.Geometry{}, fmt.Errorf("dispatch: %w (%s)", ErrGeometryFixed, r.geom)
	}
	geom, err := sim.FixGeometry(numEnvs, numAgents, r.backend.LaneMultiple())
	if err != nil {
		return sim.Geometry{}, fmt.Errorf("dispatch: %w", err)
	}
	r.geom = geom
	r.fixed = true

	if idle, frac := geom.WastedLanes(); idle > 0 {
		r.log.Warn("agent count is not a lane multiple, capacity wasted",
			"agents", numAgents, "block", geom.BlockDim,
			"idle_per_group", idle, "idle_fraction", frac)
	}
	r.log.Info("launch geometry fixed", "geometry", geom.String(), "backend", r.backend.Name())
	return geom, nil
}

// Geometry returns the fixed geometry.
func (r *Registry) Geometry() (sim.Geometry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fixed {
		return sim.Geometry{}, fmt.Errorf("dispatch: %w", ErrGeometryUnset)
	}
	return r.geom, nil
}

// Load compiles the program against the fixed geometry and registers
// its entry points. Loading twice without a fresh registry is an error:
// it would silently shadow symbols.
func (r *Registry) Load(p device.Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fixed {
		return fmt.Errorf("dispatch: load: %w", ErrGeometryUnset)
	}
	if r.module != nil {
		return fmt.Errorf("dispatch: load: %w", ErrModuleLoaded)
	}
	seen := make(map[string]bool, len(p.Kernels))
	for _, k := range p.Kernels {
		if k.Name == "" {
			return fmt.Errorf("dispatch: load: kernel with empty name")
		}
		if seen[k.Name] {
			return fmt.Errorf("dispatch: load: duplicate kernel entry %q", k.Name)
		}
		seen[k.Name] = true
	}
	m, err := r.backend.Load(p, r.geom)
	if err != nil {
		return fmt.Errorf("dispatch: load: %w", err)
	}
	r.module = m
	r.log.Info("module loaded", "entries", len(p.Kernels))
	return nil
}

// Entry is a resolved kernel entry point bound to its registry.
type Entry struct {
	name string
	r    *Registry
}

// Name returns the entry point's name.
func (e Entry) Name() string { return e.name }

// Invoke launches the entry with the cached geometry over the supplied
// device buffers. The launch is asynchronous and FIFO-ordered against
// every other launch on the backend's stream.
func (e Entry) Invoke(buffers []device.Buffer, params []byte) error {
	return e.r.Invoke(e.name, buffers, params)
}

// Resolve binds entry point names to callable handles. Any unresolved
// name is an error naming the offender.
func (r *Registry) Resolve(names ...string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.module == nil {
		return nil, fmt.Errorf("dispatch: resolve: %w", ErrNoModule)
	}
	loaded := make(map[string]bool)
	for _, e := range r.module.Entries() {
		loaded[e] = true
	}
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		if !loaded[name] {
			return nil, fmt.Errorf("dispatch: resolve %q: %w", name, ErrUnknownEntry)
		}
		out = append(out, Entry{name: name, r: r})
	}
	return out, nil
}

// Invoke launches a kernel by name with the cached geometry.
func (r *Registry) Invoke(entry string, buffers []device.Buffer, params []byte) error {
	r.mu.Lock()
	m := r.module
	r.mu.Unlock()
	if m == nil {
		return fmt.Errorf("dispatch: invoke %q: %w", entry, ErrNoModule)
	}
	if err := m.Invoke(device.Launch{Entry: entry, Buffers: buffers, Params: params}); err != nil {
		return fmt.Errorf("dispatch: invoke %q: %w", entry, err)
	}
	return nil
}
