// Package store implements the Device Data Store: the name-keyed owner
// of every device-resident array in a runtime. It manages allocation,
// the one host-to-device transfer per push, element-kind normalization,
// reset snapshots, episode-logging time axes, and the optional zero-copy
// host aliasing capability.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/sim"
)

// Contract-violation errors. All of them indicate a caller bug and are
// never retried.
var (
	ErrDuplicateName = errors.New("array name already pushed")
	ErrUnknownArray  = errors.New("unknown array name")
	ErrShapeMismatch = errors.New("payload shape disagrees with registered shape")
	ErrEnvDimension  = errors.New("leading dimension must equal the environment count")
	ErrNoHostView    = errors.New("backend exposes no host view")
)

// Descriptor is the transfer descriptor consumed by Push: one named
// host payload plus its two independent behavioral flags. It is
// transient; Push does not retain it.
type Descriptor struct {
	Name    string
	Shape   sim.Shape
	Payload any

	// SaveCopyAndApplyAtReset captures an immutable snapshot of the
	// initial payload, restored per environment by the episode resetter.
	SaveCopyAndApplyAtReset bool

	// LogDataAcrossEpisode allocates a leading time axis of episode
	// length; slice 0 is the live value, slices beyond the current step
	// stay zero-filled until the logger writes them.
	LogDataAcrossEpisode bool
}

// Meta describes a pushed array.
type Meta struct {
	Name        string
	Shape       sim.Shape
	DType       sim.DataType
	Logged      bool
	HasSnapshot bool
	HostVisible bool
	DeviceBytes uint64
}

type array struct {
	name     string
	shape    sim.Shape
	dtype    sim.DataType
	buf      device.Buffer   // logged arrays: [episodeLength][shape...], slice 0 live
	snapBuf  device.Buffer   // device copy of the initial value, nil without a snapshot
	snapshot *sim.HostArray  // immutable host copy, captured once at push
	logged   bool
	hostView []byte // nil unless the backend aliased the live slice
}

type reservation struct {
	shape sim.Shape
	dtype sim.DataType
}

// Store owns all device arrays of one runtime instance. Names are
// unique for the store's lifetime; shapes are fixed at push and never
// reshaped.
type Store struct {
	backend       device.Backend
	numEnvs       int
	episodeLength int

	mu       sync.RWMutex
	arrays   map[string]*array
	order    []string
	reserved map[string]reservation
	resident uint64
}

// New creates an empty store bound to a backend. numEnvs pins the
// leading dimension of snapshot and logged arrays; episodeLength sizes
// logging time axes.
func New(backend device.Backend, numEnvs, episodeLength int) (*Store, error) {
	if numEnvs <= 0 {
		return nil, fmt.Errorf("store: numEnvs must be positive, got %d", numEnvs)
	}
	if episodeLength <= 0 {
		return nil, fmt.Errorf("store: episodeLength must be positive, got %d", episodeLength)
	}
	return &Store{
		backend:       backend,
		numEnvs:       numEnvs,
		episodeLength: episodeLength,
		arrays:        make(map[string]*array),
		reserved:      make(map[string]reservation),
	}, nil
}

// Reserve pre-registers a shape for a name. A later Push for that name
// must carry a matching payload; mismatch is a hard error.
func (s *Store) Reserve(name string, shape sim.Shape, dtype sim.DataType) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("store: reserve %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.arrays[name]; ok {
		return fmt.Errorf("store: reserve %q: %w", name, ErrDuplicateName)
	}
	s.reserved[name] = reservation{shape: shape.Clone(), dtype: dtype}
	return nil
}

// PushOption modifies a single push.
type PushOption func(*pushConfig)

type pushConfig struct {
	hostVisible bool
}

// WithHostVisible additionally exposes the allocation's live slice as a
// zero-copy host view when the backend has that capability.
func WithHostVisible() PushOption {
	return func(c *pushConfig) { c.hostVisible = true }
}

// Push materializes the descriptor's payload on the device. Exactly one
// host-to-device transfer happens per new name; duplicate names and
// shape disagreements are hard errors.
func (s *Store) Push(d Descriptor, opts ...PushOption) error {
	var cfg pushConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	host, err := normalize(d)
	if err != nil {
		return fmt.Errorf("store: push %q: %w", d.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.arrays[d.Name]; ok {
		return fmt.Errorf("store: push %q: %w", d.Name, ErrDuplicateName)
	}
	if r, ok := s.reserved[d.Name]; ok {
		if !r.shape.Equal(host.Shape()) || r.dtype != host.DType() {
			return fmt.Errorf("store: push %q: reserved %v %s, payload %v %s: %w",
				d.Name, r.shape, r.dtype, host.Shape(), host.DType(), ErrShapeMismatch)
		}
		delete(s.reserved, d.Name)
	}
	if (d.SaveCopyAndApplyAtReset || d.LogDataAcrossEpisode) &&
		(len(host.Shape()) == 0 || host.Shape()[0] != s.numEnvs) {
		return fmt.Errorf("store: push %q: shape %v with %d envs: %w",
			d.Name, host.Shape(), s.numEnvs, ErrEnvDimension)
	}

	a := &array{
		name:   d.Name,
		shape:  host.Shape().Clone(),
		dtype:  host.DType(),
		logged: d.LogDataAcrossEpisode,
	}

	payload := host.Bytes()
	upload := payload
	if d.LogDataAcrossEpisode {
		// One allocation holds the whole time axis; everything past the
		// live slice starts zero-filled.
		upload = make([]byte, len(payload)*s.episodeLength)
		copy(upload, payload)
	}
	buf, err := s.backend.Alloc(d.Name, upload)
	if err != nil {
		return fmt.Errorf("store: push %q: alloc %d bytes: %w", d.Name, len(upload), err)
	}
	a.buf = buf

	if d.SaveCopyAndApplyAtReset {
		a.snapshot = host.Clone()
		snapBuf, err := s.backend.Alloc(d.Name+".snapshot", payload)
		if err != nil {
			return fmt.Errorf("store: push %q: snapshot alloc: %w", d.Name, err)
		}
		a.snapBuf = snapBuf
	}

	if cfg.hostVisible {
		if hv, ok := s.backend.(device.HostViewer); ok {
			if view, ok := hv.HostView(buf); ok {
				a.hostView = view[:len(payload)]
			}
		}
	}

	s.arrays[d.Name] = a
	s.order = append(s.order, d.Name)
	s.resident += buf.ByteSize()
	if a.snapBuf != nil {
		s.resident += a.snapBuf.ByteSize()
	}
	return nil
}

func normalize(d Descriptor) (*sim.HostArray, error) {
	if ha, ok := d.Payload.(*sim.HostArray); ok {
		if len(d.Shape) > 0 && !d.Shape.Equal(ha.Shape()) {
			return nil, fmt.Errorf("descriptor shape %v vs payload shape %v: %w", d.Shape, ha.Shape(), ErrShapeMismatch)
		}
		return ha, nil
	}
	shape := d.Shape
	if len(shape) == 0 {
		shape = sim.Shape{1}
	}
	return sim.FromPayload(shape, d.Payload)
}

// Pull copies the array's full current value from device to host. It is
// a synchronizing operation: every previously enqueued launch completes
// first. Never call it on a hot per-step path.
func (s *Store) Pull(name string) (*sim.HostArray, error) {
	a, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	data, err := s.backend.Download(a.buf)
	if err != nil {
		return nil, fmt.Errorf("store: pull %q: %w", name, err)
	}
	if a.logged {
		// Only the live slice: the time axis goes out through PullEpisode.
		data = data[:a.shape.NumElements()*a.dtype.Size()]
	}
	return sim.WrapBytes(a.shape, a.dtype, data)
}

// PullEpisode copies the entire time axis of a logged array in one bulk
// transfer, returned with the episode-length axis leading.
func (s *Store) PullEpisode(name string) (*sim.HostArray, error) {
	a, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if !a.logged {
		return nil, fmt.Errorf("store: pull episode %q: array is not logged", name)
	}
	data, err := s.backend.Download(a.buf)
	if err != nil {
		return nil, fmt.Errorf("store: pull episode %q: %w", name, err)
	}
	shape := append(sim.Shape{s.episodeLength}, a.shape...)
	return sim.WrapBytes(shape, a.dtype, data)
}

// Pointer returns the raw device buffer for use as a kernel argument.
// It never copies.
func (s *Store) Pointer(name string) (device.Buffer, error) {
	a, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return a.buf, nil
}

// SnapshotPointer returns the device-resident reset snapshot.
func (s *Store) SnapshotPointer(name string) (device.Buffer, error) {
	a, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if a.snapBuf == nil {
		return nil, fmt.Errorf("store: %q has no reset snapshot", name)
	}
	return a.snapBuf, nil
}

// Snapshot returns the immutable host copy captured at push time.
func (s *Store) Snapshot(name string) (*sim.HostArray, error) {
	a, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if a.snapshot == nil {
		return nil, fmt.Errorf("store: %q has no reset snapshot", name)
	}
	return a.snapshot, nil
}

// HostView returns the zero-copy host alias of the array's live slice.
// ErrNoHostView means the backend cannot alias device memory and the
// caller must fall back to Pull.
func (s *Store) HostView(name string) ([]byte, error) {
	a, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if a.hostView == nil {
		return nil, fmt.Errorf("store: %q: %w", name, ErrNoHostView)
	}
	return a.hostView, nil
}

// Describe returns shape and kind metadata for a pushed array.
func (s *Store) Describe(name string) (Meta, error) {
	a, err := s.lookup(name)
	if err != nil {
		return Meta{}, err
	}
	return s.meta(a), nil
}

func (s *Store) meta(a *array) Meta {
	bytes := a.buf.ByteSize()
	if a.snapBuf != nil {
		bytes += a.snapBuf.ByteSize()
	}
	return Meta{
		Name:        a.name,
		Shape:       a.shape.Clone(),
		DType:       a.dtype,
		Logged:      a.logged,
		HasSnapshot: a.snapBuf != nil,
		HostVisible: a.hostView != nil,
		DeviceBytes: bytes,
	}
}

// List returns metadata for every pushed array in push order.
func (s *Store) List() []Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Meta, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.meta(s.arrays[name]))
	}
	return out
}

// ResetTarget is one array the episode resetter restores: its live
// allocation, its device snapshot, and the 4-byte word count of one
// environment's slice.
type ResetTarget struct {
	Name        string
	Live        device.Buffer
	Snap        device.Buffer
	WordsPerEnv uint32
}

// ResetTargets returns every array pushed with a reset snapshot.
func (s *Store) ResetTargets() []ResetTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ResetTarget
	for _, name := range s.order {
		a := s.arrays[name]
		if a.snapBuf == nil {
			continue
		}
		out = append(out, ResetTarget{
			Name:        a.name,
			Live:        a.buf,
			Snap:        a.snapBuf,
			WordsPerEnv: uint32(a.shape.PerEnv() * a.dtype.Size() / 4), //nolint:gosec // element counts fit u32
		})
	}
	return out
}

// LogTarget is one logged array: its allocation spanning the time axis,
// the word count of one environment's slice, and the word count of one
// full time slice.
type LogTarget struct {
	Name          string
	Buf           device.Buffer
	WordsPerEnv   uint32
	WordsPerSlice uint32
	EpisodeLength uint32
}

// LogTargets returns every array pushed with episode logging.
func (s *Store) LogTargets() []LogTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LogTarget
	for _, name := range s.order {
		a := s.arrays[name]
		if !a.logged {
			continue
		}
		sliceWords := a.shape.NumElements() * a.dtype.Size() / 4
		out = append(out, LogTarget{
			Name:          a.name,
			Buf:           a.buf,
			WordsPerEnv:   uint32(a.shape.PerEnv() * a.dtype.Size() / 4), //nolint:gosec // element counts fit u32
			WordsPerSlice: uint32(sliceWords),                            //nolint:gosec // element counts fit u32
			EpisodeLength: uint32(s.episodeLength),                       //nolint:gosec // config-validated
		})
	}
	return out
}

// EpisodeLength returns the logging time-axis length.
func (s *Store) EpisodeLength() int { return s.episodeLength }

// NumEnvs returns the environment count the store was built for.
func (s *Store) NumEnvs() int { return s.numEnvs }

// ResidentBytes reports total device memory owned by the store.
func (s *Store) ResidentBytes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resident
}

func (s *Store) lookup(name string) (*array, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.arrays[name]
	if !ok {
		return nil, fmt.Errorf("store: %q: %w", name, ErrUnknownArray)
	}
	return a, nil
}
