// Package runtime assembles the Stampede core: one explicitly owned
// object wiring a backend, the device data store, the kernel registry,
// and the three episode services. Tests construct independent instances;
// nothing here is process-global.
package runtime

import (
	"fmt"
	"log/slog"

	"github.com/stampede-rl/stampede/internal/config"
	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/dispatch"
	"github.com/stampede-rl/stampede/internal/episode"
	"github.com/stampede-rl/stampede/internal/sample"
	"github.com/stampede-rl/stampede/internal/sim"
	"github.com/stampede-rl/stampede/internal/store"
)

// Runtime owns all simulation state and dispatch machinery for one
// experiment. Construct, use, Close: device memory is released on every
// exit path once Close runs, and Close waits for stream drain first.
type Runtime struct {
	cfg     config.Config
	backend device.Backend
	store   *store.Store
	reg     *dispatch.Registry
	reset   *episode.Resetter
	eplog   *episode.Logger
	sampler *sample.Sampler
	log     *slog.Logger
	closed  bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// New builds a runtime on the given backend and fixes the launch
// geometry from the config's env section.
func New(cfg config.Config, backend device.Backend, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{cfg: cfg, backend: backend, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	r.reg = dispatch.New(backend, dispatch.WithLogger(r.log))
	if _, err := r.reg.SetGeometry(cfg.Env.NumEnvs, cfg.Env.NumAgents); err != nil {
		return nil, err
	}

	st, err := store.New(backend, cfg.Env.NumEnvs, cfg.Env.EpisodeLength)
	if err != nil {
		return nil, err
	}
	r.store = st
	r.reset = episode.NewResetter(st, r.reg)
	r.eplog = episode.NewLogger(st, r.reg)
	r.sampler = sample.NewSampler(st, r.reg)
	return r, nil
}

// Load merges the caller's step kernels with the built-in service
// kernels and loads them as the runtime's single module.
func (r *Runtime) Load(user device.Program) error {
	merged := user.Merge(episode.ResetProgram(), episode.LogProgram(), sample.SampleProgram())
	return r.reg.Load(merged)
}

// Store returns the device data store.
func (r *Runtime) Store() *store.Store { return r.store }

// Registry returns the kernel registry.
func (r *Runtime) Registry() *dispatch.Registry { return r.reg }

// Geometry returns the fixed launch geometry.
func (r *Runtime) Geometry() (sim.Geometry, error) { return r.reg.Geometry() }

// Push materializes a transfer descriptor on the device.
func (r *Runtime) Push(d store.Descriptor, opts ...store.PushOption) error {
	return r.store.Push(d, opts...)
}

// Pull copies an array's current value back to the host. Synchronizing
// and expensive: keep it off per-step paths.
func (r *Runtime) Pull(name string) (*sim.HostArray, error) {
	return r.store.Pull(name)
}

// Invoke launches a kernel by name over named arrays.
func (r *Runtime) Invoke(entry string, arrayNames []string, params []byte) error {
	buffers := make([]device.Buffer, len(arrayNames))
	for i, name := range arrayNames {
		buf, err := r.store.Pointer(name)
		if err != nil {
			return fmt.Errorf("runtime: invoke %q: %w", entry, err)
		}
		buffers[i] = buf
	}
	return r.reg.Invoke(entry, buffers, params)
}

// Reset restores snapshot arrays for done environments and clears the
// flags, then acknowledges the step.
func (r *Runtime) Reset(doneName string) error {
	if err := r.reset.Reset(doneName); err != nil {
		return err
	}
	r.reset.Ack()
	return nil
}

// SeedSampler seeds the per-agent RNG states once.
func (r *Runtime) SeedSampler(seed int64) error { return r.sampler.Init(seed) }

// SampleActions draws one action per agent from logits into actions.
func (r *Runtime) SampleActions(logitsName, actionsName string, numActions int) error {
	return r.sampler.Sample(logitsName, actionsName, numActions)
}

// LogStep records logged arrays into time index t.
func (r *Runtime) LogStep(t int) error { return r.eplog.LogStep(t) }

// FetchEpisode bulk-pulls the full time axis of a logged array.
func (r *Runtime) FetchEpisode(name string) (*sim.HostArray, error) {
	return r.eplog.FetchEpisode(name)
}

// Drain blocks until every enqueued launch has completed.
func (r *Runtime) Drain() error { return r.backend.Drain() }

// Stats is a point-in-time resource report.
type Stats struct {
	Backend       string       `json:"backend"`
	Geometry      string       `json:"geometry"`
	ResidentBytes uint64       `json:"resident_bytes"`
	Arrays        []store.Meta `json:"arrays"`
}

// Stats reports the runtime's resource usage.
func (r *Runtime) Stats() Stats {
	geom, _ := r.reg.Geometry()
	return Stats{
		Backend:       r.backend.Name(),
		Geometry:      geom.String(),
		ResidentBytes: r.store.ResidentBytes(),
		Arrays:        r.store.List(),
	}
}

// Close drains the execution stream and releases all device memory.
// Safe to call more than once.
func (r *Runtime) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.backend.Drain(); err != nil {
		r.log.Error("drain before close failed", "err", err)
	}
	return r.backend.Close()
}
