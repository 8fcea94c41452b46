package episode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampede-rl/stampede/internal/backend/cpu"
	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/dispatch"
	"github.com/stampede-rl/stampede/internal/sim"
	"github.com/stampede-rl/stampede/internal/store"
)

// fixture wires a CPU backend, store, and dispatcher with the episode
// kernels loaded, ready for reset/log scenarios.
type fixture struct {
	store *store.Store
	reg   *dispatch.Registry
}

func newFixture(t *testing.T, numEnvs, numAgents, episodeLength int, extra ...device.Kernel) *fixture {
	t.Helper()
	b := cpu.New()
	t.Cleanup(func() { b.Close() })

	st, err := store.New(b, numEnvs, episodeLength)
	require.NoError(t, err)

	reg := dispatch.New(b)
	_, err = reg.SetGeometry(numEnvs, numAgents)
	require.NoError(t, err)

	p := ResetProgram().Merge(LogProgram(), device.Program{Kernels: extra})
	require.NoError(t, reg.Load(p))
	return &fixture{store: st, reg: reg}
}

func TestResetRestoresOnlyDoneEnvs(t *testing.T) {
	// Mutate through a kernel so the device copy diverges from the
	// snapshot before the reset runs.
	mutate := device.Kernel{
		Name:  "mutate",
		Arity: 1,
		Func: func(env, agent int, geom sim.Geometry, bufs [][]byte, _ []byte) {
			sim.Float32View(bufs[0])[env*geom.NumAgents+agent] = float32(10 + env)
		},
	}
	f := newFixture(t, 2, 3, 8, mutate)
	require.NoError(t, f.store.Push(store.Descriptor{
		Name:                    "obs",
		Shape:                   sim.Shape{2, 3},
		Payload:                 []float32{0, 0, 0, 0, 0, 0},
		SaveCopyAndApplyAtReset: true,
	}))
	// Env 0 finished its episode, env 1 has not.
	require.NoError(t, f.store.Push(store.Descriptor{
		Name:    "done",
		Shape:   sim.Shape{2},
		Payload: []int32{1, 0},
	}))
	obsPtr, err := f.store.Pointer("obs")
	require.NoError(t, err)
	require.NoError(t, f.reg.Invoke("mutate", []device.Buffer{obsPtr}, nil))

	r := NewResetter(f.store, f.reg)
	require.NoError(t, r.Reset("done"))
	assert.Equal(t, ResetApplied, r.State())
	r.Ack()
	assert.Equal(t, ResetIdle, r.State())

	got, err := f.store.Pull("obs")
	require.NoError(t, err)
	// Env 0 restored to its initial zeros, env 1 keeps the stepped values.
	assert.Equal(t, []float32{0, 0, 0, 11, 11, 11}, got.AsFloat32())

	// Flags cleared after the restore.
	doneArr, err := f.store.Pull("done")
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0}, doneArr.AsInt32())
}

func TestResetWithAllFlagsFalseIsNoOp(t *testing.T) {
	f := newFixture(t, 2, 3, 8)

	initial := []float32{1, 2, 3, 4, 5, 6}
	require.NoError(t, f.store.Push(store.Descriptor{
		Name:                    "obs",
		Shape:                   sim.Shape{2, 3},
		Payload:                 initial,
		SaveCopyAndApplyAtReset: true,
	}))
	require.NoError(t, f.store.Push(store.Descriptor{
		Name:    "done",
		Shape:   sim.Shape{2},
		Payload: []int32{0, 0},
	}))

	r := NewResetter(f.store, f.reg)
	require.NoError(t, r.Reset("done"))

	got, err := f.store.Pull("obs")
	require.NoError(t, err)
	assert.Equal(t, initial, got.AsFloat32())
}

func TestResetRestoresIntArraysWordWise(t *testing.T) {
	f := newFixture(t, 2, 2, 8)

	require.NoError(t, f.store.Push(store.Descriptor{
		Name:                    "state",
		Shape:                   sim.Shape{2, 2},
		Payload:                 []int32{7, 8, 9, 10},
		SaveCopyAndApplyAtReset: true,
	}))
	require.NoError(t, f.store.Push(store.Descriptor{
		Name:    "done",
		Shape:   sim.Shape{2},
		Payload: []int32{1, 1},
	}))

	r := NewResetter(f.store, f.reg)
	require.NoError(t, r.Reset("done"))

	got, err := f.store.Pull("state")
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 8, 9, 10}, got.AsInt32())
}

func TestResetUnknownDoneName(t *testing.T) {
	f := newFixture(t, 2, 2, 8)
	r := NewResetter(f.store, f.reg)
	assert.Error(t, r.Reset("missing"))
}

func TestLogStepRecordsTimeSlices(t *testing.T) {
	set := device.Kernel{
		Name:  "set",
		Arity: 1,
		Func: func(env, agent int, geom sim.Geometry, bufs [][]byte, params []byte) {
			v := float32(device.ParamAt(params, 0))
			sim.Float32View(bufs[0])[env*geom.NumAgents+agent] = v + float32(env)
		},
	}
	f := newFixture(t, 2, 2, 4, set)

	require.NoError(t, f.store.Push(store.Descriptor{
		Name:                 "obs",
		Shape:                sim.Shape{2, 2},
		Payload:              []float32{0, 0, 0, 0},
		LogDataAcrossEpisode: true,
	}))
	obsPtr, err := f.store.Pointer("obs")
	require.NoError(t, err)

	l := NewLogger(f.store, f.reg)
	for step := 0; step < 4; step++ {
		//nolint:gosec // small positive step values
		require.NoError(t, f.reg.Invoke("set", []device.Buffer{obsPtr}, device.PackParams(uint32(100+step))))
		require.NoError(t, l.LogStep(step))
	}

	ep, err := l.FetchEpisode("obs")
	require.NoError(t, err)
	require.True(t, ep.Shape().Equal(sim.Shape{4, 2, 2}))
	vals := ep.AsFloat32()

	// Slice t holds the value written before LogStep(t); slice 0 is live,
	// so it carries the final step's value.
	for step := 1; step < 4; step++ {
		for env := 0; env < 2; env++ {
			for agent := 0; agent < 2; agent++ {
				idx := ep.Shape().Offset(step, env, agent)
				assert.Equal(t, float32(100+step+env), vals[idx], "t=%d env=%d agent=%d", step, env, agent)
			}
		}
	}
	assert.Equal(t, float32(103), vals[ep.Shape().Offset(0, 0, 0)])
	assert.Equal(t, float32(104), vals[ep.Shape().Offset(0, 1, 1)])
}

func TestLogStepBounds(t *testing.T) {
	f := newFixture(t, 2, 2, 4)
	l := NewLogger(f.store, f.reg)
	assert.Error(t, l.LogStep(-1))
	assert.Error(t, l.LogStep(4))
	assert.NoError(t, l.LogStep(0)) // live slice, enqueues nothing
}

func TestFetchEpisodeRejectsUnloggedArray(t *testing.T) {
	f := newFixture(t, 2, 2, 4)
	require.NoError(t, f.store.Push(store.Descriptor{
		Name:    "obs",
		Shape:   sim.Shape{2, 2},
		Payload: []float32{0, 0, 0, 0},
	}))
	l := NewLogger(f.store, f.reg)
	_, err := l.FetchEpisode("obs")
	assert.Error(t, err)
}
