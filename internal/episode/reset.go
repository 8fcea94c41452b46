// Package episode implements the two dispatcher-driven episode
// services: the resetter, which restores snapshot arrays in place for
// environments whose done flag is set, and the logger, which copies
// live values into the time axis of logged arrays.
package episode

import (
	"fmt"
	"sync"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/dispatch"
	"github.com/stampede-rl/stampede/internal/sim"
	"github.com/stampede-rl/stampede/internal/store"
)

// ResetState tracks where a resetter is within one step's protocol.
type ResetState int

// Resetter states. A step moves Idle -> Requested -> Applied -> Idle.
const (
	ResetIdle ResetState = iota
	ResetRequested
	ResetApplied
)

// resetCopyWGSL restores one snapshot array for every flagged
// environment. Agents of a group cooperatively copy the environment's
// slice as 4-byte words, so the kernel is element-kind agnostic.
const resetCopyWGSL = `
@group(0) @binding(0) var<storage, read> done: array<i32>;
@group(0) @binding(1) var<storage, read> snap: array<u32>;
@group(0) @binding(2) var<storage, read_write> live: array<u32>;

struct Params {
    words_per_env: u32,
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
    if (done[env] == 0) {
        return;
    }
    let base = env * params.words_per_env;
    for (var i = agent; i < params.words_per_env; i = i + NUM_AGENTS) {
        live[base + i] = snap[base + i];
    }
}
`

// resetClearWGSL clears the done flags once every snapshot has been
// restored. It runs after all copy launches on the same stream, so the
// clear is atomic with respect to the next step.
const resetClearWGSL = `
@group(0) @binding(0) var<storage, read_write> done: array<i32>;

@compute @workgroup_size(BLOCK)
fn main(@builtin(workgroup_id) group_id: vec3<u32>,
        @builtin(local_invocation_id) local_id: vec3<u32>) {
    if (local_id.x == 0u) {
        done[group_id.x] = 0;
    }
}
`

func resetCopyFunc(env, agent int, geom sim.Geometry, bufs [][]byte, params []byte) {
	done := sim.Int32View(bufs[0])
	if done[env] == 0 {
		return
	}
	snap := sim.Uint32View(bufs[1])
	live := sim.Uint32View(bufs[2])
	wordsPerEnv := int(device.ParamAt(params, 0))
	base := env * wordsPerEnv
	for i := agent; i < wordsPerEnv; i += geom.NumAgents {
		live[base+i] = snap[base+i]
	}
}

func resetClearFunc(env, agent int, _ sim.Geometry, bufs [][]byte, _ []byte) {
	if agent != 0 {
		return
	}
	sim.Int32View(bufs[0])[env] = 0
}

// Resetter restores every snapshot array to its initial value for done
// environments, leaving all other environments untouched. Environments
// free-run: some finish episodes earlier than others, and only theirs
// are rewound.
type Resetter struct {
	store *store.Store
	reg   *dispatch.Registry

	mu    sync.Mutex
	state ResetState
}

// NewResetter creates a resetter over a store and dispatcher.
func NewResetter(st *store.Store, reg *dispatch.Registry) *Resetter {
	return &Resetter{store: st, reg: reg}
}

// ResetProgram returns the kernels the resetter needs loaded. Merge it
// into the module program before dispatch.Registry.Load.
func ResetProgram() device.Program {
	return device.Program{Kernels: []device.Kernel{
		{Name: "episode_reset_copy", WGSL: resetCopyWGSL, Func: resetCopyFunc, Arity: 3},
		{Name: "episode_reset_clear", WGSL: resetClearWGSL, Func: resetClearFunc, Arity: 1},
	}}
}

// Reset enqueues, for every array pushed with a reset snapshot, an
// in-place restore of each done environment's slice, then a clear of
// the done flags. With all flags false the launches are no-ops and
// every array stays bit-identical.
func (r *Resetter) Reset(doneName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = ResetRequested

	done, err := r.store.Pointer(doneName)
	if err != nil {
		return fmt.Errorf("episode: reset: %w", err)
	}
	for _, t := range r.store.ResetTargets() {
		params := device.PackParams(t.WordsPerEnv)
		if err := r.reg.Invoke("episode_reset_copy", []device.Buffer{done, t.Snap, t.Live}, params); err != nil {
			return fmt.Errorf("episode: reset %q: %w", t.Name, err)
		}
	}
	if err := r.reg.Invoke("episode_reset_clear", []device.Buffer{done}, nil); err != nil {
		return fmt.Errorf("episode: reset: clear flags: %w", err)
	}

	r.state = ResetApplied
	return nil
}

// Ack returns the resetter to idle. The runtime calls it at the end of
// each step, once the next step is free to run.
func (r *Resetter) Ack() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = ResetIdle
}

// State returns the resetter's position within the current step.
func (r *Resetter) State() ResetState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
