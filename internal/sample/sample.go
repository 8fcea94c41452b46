package sample

import (
	"fmt"
	"math"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/dispatch"
	"github.com/stampede-rl/stampede/internal/sim"
	"github.com/stampede-rl/stampede/internal/store"
)

// StateArray is the store name of the per-agent RNG state array,
// shape [num_envs, num_agents, 4], pushed once by Init.
const StateArray = "sampler_rng_state"

// sampleWGSL draws one action per agent: normalize the agent's logits
// slice into a categorical distribution, draw a uniform variate from
// the agent's own xorshift128 state, and walk the cumulative mass. No
// cross-thread synchronization: every agent's logits slice, action slot
// and RNG state are disjoint.
const sampleWGSL = `
@group(0) @binding(0) var<storage, read> logits: array<f32>;
@group(0) @binding(1) var<storage, read_write> actions: array<i32>;
@group(0) @binding(2) var<storage, read_write> rng: array<u32>;

struct Params {
    num_actions: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(BLOCK)
fn main(@builtin(workgroup_id) group_id: vec3<u32>,
        @builtin(local_invocation_id) local_id: vec3<u32>) {
    let env = group_id.x;
    let agent = local_id.x;
    if (agent >= NUM_AGENTS) {
        return;
    }
    let idx = env * NUM_AGENTS + agent;
    let base = idx * params.num_actions;

    var m = logits[base];
    for (var i = 1u; i < params.num_actions; i = i + 1u) {
        m = max(m, logits[base + i]);
    }
    var sum = 0.0;
    for (var i = 0u; i < params.num_actions; i = i + 1u) {
        sum = sum + exp(logits[base + i] - m);
    }

    let sbase = idx * 4u;
    var t = rng[sbase] ^ (rng[sbase] << 11u);
    t = t ^ (t >> 8u);
    let w = rng[sbase + 3u] ^ (rng[sbase + 3u] >> 19u) ^ t;
    rng[sbase] = rng[sbase + 1u];
    rng[sbase + 1u] = rng[sbase + 2u];
    rng[sbase + 2u] = rng[sbase + 3u];
    rng[sbase + 3u] = w;

    let u = (f32(w) / 4294967296.0) * sum;
    var acc = 0.0;
    var choice = params.num_actions - 1u;
    for (var i = 0u; i < params.num_actions; i = i + 1u) {
        acc = acc + exp(logits[base + i] - m);
        if (acc > u) {
            choice = i;
            break;
        }
    }
    actions[idx] = i32(choice);
}
`

func sampleFunc(env, agent int, geom sim.Geometry, bufs [][]byte, params []byte) {
	logits := sim.Float32View(bufs[0])
	actions := sim.Int32View(bufs[1])
	rng := sim.Uint32View(bufs[2])
	numActions := int(device.ParamAt(params, 0))

	idx := env*geom.NumAgents + agent
	base := idx * numActions

	m := logits[base]
	for i := 1; i < numActions; i++ {
		if logits[base+i] > m {
			m = logits[base+i]
		}
	}
	var sum float32
	for i := 0; i < numActions; i++ {
		sum += float32(math.Exp(float64(logits[base+i] - m)))
	}

	w := Xorshift128(rng[idx*4 : idx*4+4])
	u := (float32(w) / 4294967296.0) * sum

	var acc float32
	choice := numActions - 1
	for i := 0; i < numActions; i++ {
		acc += float32(math.Exp(float64(logits[base+i] - m)))
		if acc > u {
			choice = i
			break
		}
	}
	actions[idx] = int32(choice)
}

// Sampler draws discrete actions from per-agent categorical
// distributions, writing results into a designated action array.
type Sampler struct {
	store  *store.Store
	reg    *dispatch.Registry
	seeded bool
}

// NewSampler creates a sampler over a store and dispatcher.
func NewSampler(st *store.Store, reg *dispatch.Registry) *Sampler {
	return &Sampler{store: st, reg: reg}
}

// SampleProgram returns the kernel the sampler needs loaded.
func SampleProgram() device.Program {
	return device.Program{Kernels: []device.Kernel{
		{Name: "sample_actions", WGSL: sampleWGSL, Func: sampleFunc, Arity: 3},
	}}
}

// Init seeds one generator per agent and pushes the state array to the
// device. States are seeded exactly once: a fixed seed plus a fixed
// call sequence reproduces the sampled action stream bit for bit.
func (s *Sampler) Init(seed int64) error {
	if s.seeded {
		return fmt.Errorf("sample: init: already seeded")
	}
	geom, err := s.reg.Geometry()
	if err != nil {
		return fmt.Errorf("sample: init: %w", err)
	}

	words := SeedStates(seed, geom.NumEnvs*geom.NumAgents)
	states := make([]int32, len(words))
	for i, w := range words {
		states[i] = int32(w) //nolint:gosec // bit-pattern reinterpretation, kernels read these as u32
	}
	err = s.store.Push(store.Descriptor{
		Name:    StateArray,
		Shape:   sim.Shape{geom.NumEnvs, geom.NumAgents, 4},
		Payload: states,
	})
	if err != nil {
		return fmt.Errorf("sample: init: %w", err)
	}
	s.seeded = true
	return nil
}

// Sample enqueues one draw per agent from logitsName (shape
// [num_envs, num_agents, numActions], float32) into actionsName (shape
// [num_envs, num_agents], int32).
func (s *Sampler) Sample(logitsName, actionsName string, numActions int) error {
	if !s.seeded {
		return fmt.Errorf("sample: not initialized, call Init first")
	}
	geom, err := s.reg.Geometry()
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	if numActions <= 0 {
		return fmt.Errorf("sample: numActions must be positive, got %d", numActions)
	}

	meta, err := s.store.Describe(logitsName)
	if err != nil {
		return fmt.Errorf("sample: logits: %w", err)
	}
	want := geom.NumEnvs * geom.NumAgents * numActions
	if meta.Shape.NumElements() != want || meta.DType != sim.Float32 {
		return fmt.Errorf("sample: logits %q is %v %s, want %d float32 elements",
			logitsName, meta.Shape, meta.DType, want)
	}

	logits, err := s.store.Pointer(logitsName)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	actions, err := s.store.Pointer(actionsName)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	states, err := s.store.Pointer(StateArray)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}

	//nolint:gosec // numActions validated positive
	params := device.PackParams(uint32(numActions))
	if err := s.reg.Invoke("sample_actions", []device.Buffer{logits, actions, states}, params); err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	return nil
}
