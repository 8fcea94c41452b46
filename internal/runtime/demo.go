package runtime

import (
	"fmt"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/sim"
	"github.com/stampede-rl/stampede/internal/store"
)

// Demo array names. The demo environment is the smallest complete
// exercise of the runtime: a step kernel, sampling, logging and the
// done-flag reset protocol, with observations that stay on device for
// the whole episode.
const (
	DemoObs     = "demo_obs"
	DemoLogits  = "demo_logits"
	DemoActions = "demo_actions"
	DemoDone    = "demo_done"

	// DemoNumActions is the demo's discrete action space size.
	DemoNumActions = 4
)

// demoStepWGSL advances the demo environment: every agent adds
// (env + agent) to its observation, and agent 0 raises the done flag
// when the horizon is reached.
const demoStepWGSL = `
@group(0) @binding(0) var<storage, read_write> obs: array<f32>;
@group(0) @binding(1) var<storage, read_write> done: array<i32>;

struct Params {
    t: u32,
    horizon: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(BLOCK)
fn main(@builtin(workgroup_id) group_id: vec3<u32>,
        @builtin(local_invocation_id) local_id: vec3<u32>) {
    let env = group_id.x;
    let agent = local_id.x;
    if (agent >= NUM_AGENTS) {
        return;
    }
    obs[env * NUM_AGENTS + agent] = obs[env * NUM_AGENTS + agent] + f32(env + agent);
    if (agent == 0u && params.t + 1u >= params.horizon) {
        done[env] = 1;
    }
}
`

func demoStepFunc(env, agent int, geom sim.Geometry, bufs [][]byte, params []byte) {
	obs := sim.Float32View(bufs[0])
	obs[env*geom.NumAgents+agent] += float32(env + agent)
	t := device.ParamAt(params, 0)
	horizon := device.ParamAt(params, 1)
	if agent == 0 && t+1 >= horizon {
		sim.Int32View(bufs[1])[env] = 1
	}
}

// DemoProgram returns the demo environment's step kernel.
func DemoProgram() device.Program {
	return device.Program{Kernels: []device.Kernel{
		{Name: "demo_step", WGSL: demoStepWGSL, Func: demoStepFunc, Arity: 2},
	}}
}

// SetupDemo pushes the demo arrays and seeds the sampler. Observations
// carry a reset snapshot and an episode log; logits are uniform so
// sampled actions exercise the full action space.
func (r *Runtime) SetupDemo(seed int64) error {
	geom, err := r.Geometry()
	if err != nil {
		return err
	}
	numEnvs, numAgents := geom.NumEnvs, geom.NumAgents

	if err := r.Push(store.Descriptor{
		Name:                    DemoObs,
		Shape:                   sim.Shape{numEnvs, numAgents},
		Payload:                 make([]float32, numEnvs*numAgents),
		SaveCopyAndApplyAtReset: true,
		LogDataAcrossEpisode:    true,
	}); err != nil {
		return err
	}
	if err := r.Push(store.Descriptor{
		Name:    DemoLogits,
		Shape:   sim.Shape{numEnvs, numAgents, DemoNumActions},
		Payload: make([]float32, numEnvs*numAgents*DemoNumActions),
	}); err != nil {
		return err
	}
	if err := r.Push(store.Descriptor{
		Name:                 DemoActions,
		Shape:                sim.Shape{numEnvs, numAgents},
		Payload:              make([]int32, numEnvs*numAgents),
		LogDataAcrossEpisode: true,
	}); err != nil {
		return err
	}
	if err := r.Push(store.Descriptor{
		Name:    DemoDone,
		Shape:   sim.Shape{numEnvs},
		Payload: make([]int32, numEnvs),
	}); err != nil {
		return err
	}
	return r.SeedSampler(seed)
}

// StepDemo runs one simulation step at time t: step kernel, action
// sampling, episode logging, then the reset protocol. All launches stay
// on device; nothing is pulled.
func (r *Runtime) StepDemo(t int) error {
	horizon := r.store.EpisodeLength()
	//nolint:gosec // t and horizon are config-bounded
	params := device.PackParams(uint32(t), uint32(horizon))
	if err := r.Invoke("demo_step", []string{DemoObs, DemoDone}, params); err != nil {
		return fmt.Errorf("runtime: demo step %d: %w", t, err)
	}
	if err := r.SampleActions(DemoLogits, DemoActions, DemoNumActions); err != nil {
		return fmt.Errorf("runtime: demo step %d: %w", t, err)
	}
	if err := r.LogStep(t); err != nil {
		return fmt.Errorf("runtime: demo step %d: %w", t, err)
	}
	if err := r.Reset(DemoDone); err != nil {
		return fmt.Errorf("runtime: demo step %d: %w", t, err)
	}
	return nil
}

// RunDemo drives a full episode and returns the final observations.
func (r *Runtime) RunDemo(seed int64) (*sim.HostArray, error) {
	if err := r.Load(DemoProgram()); err != nil {
		return nil, err
	}
	if err := r.SetupDemo(seed); err != nil {
		return nil, err
	}
	for t := 0; t < r.store.EpisodeLength(); t++ {
		if err := r.StepDemo(t); err != nil {
			return nil, err
		}
	}
	return r.Pull(DemoObs)
}
