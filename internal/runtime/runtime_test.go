package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampede-rl/stampede/internal/backend/cpu"
	"github.com/stampede-rl/stampede/internal/config"
	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/sim"
	"github.com/stampede-rl/stampede/internal/store"
)

func testConfig(numEnvs, numAgents, episodeLength int) config.Config {
	cfg := config.Default()
	cfg.Env = config.EnvConfig{NumEnvs: numEnvs, NumAgents: numAgents, EpisodeLength: episodeLength}
	return cfg
}

func newTestRuntime(t *testing.T, cfg config.Config) *Runtime {
	t.Helper()
	r, err := New(cfg, cpu.New())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// incrementProgram is a minimal step kernel: every agent adds
// (env + agent) to its observation slot.
func incrementProgram() device.Program {
	return device.Program{Kernels: []device.Kernel{{
		Name:  "increment",
		Arity: 1,
		Func: func(env, agent int, geom sim.Geometry, bufs [][]byte, _ []byte) {
			sim.Float32View(bufs[0])[env*geom.NumAgents+agent] += float32(env + agent)
		},
	}}}
}

func TestStepAndResetScenario(t *testing.T) {
	r := newTestRuntime(t, testConfig(2, 3, 8))
	require.NoError(t, r.Load(incrementProgram()))

	require.NoError(t, r.Push(store.Descriptor{
		Name:                    "obs",
		Shape:                   sim.Shape{2, 3},
		Payload:                 make([]float32, 6),
		SaveCopyAndApplyAtReset: true,
	}))
	// Env 0 will be flagged done, env 1 keeps running.
	require.NoError(t, r.Push(store.Descriptor{
		Name:    "done",
		Shape:   sim.Shape{2},
		Payload: []int32{1, 0},
	}))

	require.NoError(t, r.Invoke("increment", []string{"obs"}, nil))
	got, err := r.Pull("obs")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2, 1, 2, 3}, got.AsFloat32())

	require.NoError(t, r.Invoke("increment", []string{"obs"}, nil))
	got, err = r.Pull("obs")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2, 4, 2, 4, 6}, got.AsFloat32())

	// Reset rewinds only env 0 and clears its flag.
	require.NoError(t, r.Reset("done"))
	got, err = r.Pull("obs")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 2, 4, 6}, got.AsFloat32())

	doneArr, err := r.Pull("done")
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0}, doneArr.AsInt32())
}

func TestInvokeUnknownArray(t *testing.T) {
	r := newTestRuntime(t, testConfig(2, 3, 8))
	require.NoError(t, r.Load(device.Program{}))
	assert.ErrorIs(t, r.Invoke("anything", []string{"missing"}, nil), store.ErrUnknownArray)
}

func TestLoadIncludesServiceKernels(t *testing.T) {
	r := newTestRuntime(t, testConfig(2, 3, 8))
	require.NoError(t, r.Load(incrementProgram()))

	_, err := r.Registry().Resolve(
		"increment", "episode_reset_copy", "episode_reset_clear",
		"episode_log_slice", "sample_actions",
	)
	assert.NoError(t, err)
}

func TestRunDemoFullEpisode(t *testing.T) {
	const horizon = 6
	r := newTestRuntime(t, testConfig(2, 3, horizon))

	final, err := r.RunDemo(42)
	require.NoError(t, err)

	// The horizon flags every env done, so the last step's reset rewinds
	// all observations to their initial zeros.
	for _, v := range final.AsFloat32() {
		assert.Equal(t, float32(0), v)
	}

	// Logged slices t >= 1 hold the pre-reset trajectory.
	ep, err := r.FetchEpisode(DemoObs)
	require.NoError(t, err)
	require.True(t, ep.Shape().Equal(sim.Shape{horizon, 2, 3}))
	vals := ep.AsFloat32()
	for step := 1; step < horizon; step++ {
		for env := 0; env < 2; env++ {
			for agent := 0; agent < 3; agent++ {
				idx := ep.Shape().Offset(step, env, agent)
				want := float32((step + 1) * (env + agent))
				assert.Equal(t, want, vals[idx], "t=%d env=%d agent=%d", step, env, agent)
			}
		}
	}

	// Logged actions stay within the demo action space.
	actions, err := r.FetchEpisode(DemoActions)
	require.NoError(t, err)
	for _, a := range actions.AsInt32() {
		assert.GreaterOrEqual(t, a, int32(0))
		assert.Less(t, a, int32(DemoNumActions))
	}
}

func TestRunDemoDeterministicBySeed(t *testing.T) {
	run := func(seed int64) []int32 {
		r := newTestRuntime(t, testConfig(2, 3, 6))
		_, err := r.RunDemo(seed)
		require.NoError(t, err)
		ep, err := r.FetchEpisode(DemoActions)
		require.NoError(t, err)
		return append([]int32(nil), ep.AsInt32()...)
	}

	assert.Equal(t, run(1234), run(1234))
	assert.NotEqual(t, run(1234), run(5678))
}

func TestStats(t *testing.T) {
	r := newTestRuntime(t, testConfig(2, 3, 4))
	require.NoError(t, r.Load(DemoProgram()))
	require.NoError(t, r.SetupDemo(1))

	stats := r.Stats()
	assert.Equal(t, "cpu", stats.Backend)
	assert.Contains(t, stats.Geometry, "envs=2")
	assert.NotZero(t, stats.ResidentBytes)
	assert.NotEmpty(t, stats.Arrays)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(testConfig(0, 3, 4), cpu.New())
	assert.Error(t, err)
}

func TestCloseIdempotent(t *testing.T) {
	r, err := New(testConfig(2, 3, 4), cpu.New())
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}
