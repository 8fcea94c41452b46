package episode

import (
	"fmt"

	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/dispatch"
	"github.com/stampede-rl/stampede/internal/sim"
	"github.com/stampede-rl/stampede/internal/store"
)

// logSliceWGSL copies the live slice (time index 0) of a logged array
// into time index t. Word-wise copy, so one kernel serves both element
// kinds. Index 0 is the live value itself, so t == 0 is a no-op.
const logSliceWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

struct Params {
    t: u32,
    words_per_env: u32,
    words_per_slice: u32,
}
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(BLOCK)
fn main(@builtin(workgroup_id) group_id: vec3<u32>,
        @builtin(local_invocation_id) local_id: vec3<u32>) {
    let env = group_id.x;
    let agent = local_id.x;
    if (agent >= NUM_AGENTS) {
        return;
    }
    if (params.t == 0u) {
        return;
    }
    let src = env * params.words_per_env;
    let dst = params.t * params.words_per_slice + src;
    for (var i = agent; i < params.words_per_env; i = i + NUM_AGENTS) {
        data[dst + i] = data[src + i];
    }
}
`

func logSliceFunc(env, agent int, geom sim.Geometry, bufs [][]byte, params []byte) {
	t := int(device.ParamAt(params, 0))
	if t == 0 {
		return
	}
	wordsPerEnv := int(device.ParamAt(params, 1))
	wordsPerSlice := int(device.ParamAt(params, 2))
	data := sim.Uint32View(bufs[0])
	src := env * wordsPerEnv
	dst := t*wordsPerSlice + src
	for i := agent; i < wordsPerEnv; i += geom.NumAgents {
		data[dst+i] = data[src+i]
	}
}

// Logger records per-step values of logged arrays into their
// preallocated time axes, entirely on device.
type Logger struct {
	store *store.Store
	reg   *dispatch.Registry
}

// NewLogger creates a logger over a store and dispatcher.
func NewLogger(st *store.Store, reg *dispatch.Registry) *Logger {
	return &Logger{store: st, reg: reg}
}

// LogProgram returns the kernel the logger needs loaded.
func LogProgram() device.Program {
	return device.Program{Kernels: []device.Kernel{
		{Name: "episode_log_slice", WGSL: logSliceWGSL, Func: logSliceFunc, Arity: 1},
	}}
}

// LogStep copies the current value of every logged array into time
// index t. Valid t is [0, episodeLength); t == 0 is the live slice and
// enqueues nothing.
func (l *Logger) LogStep(t int) error {
	if t < 0 || t >= l.store.EpisodeLength() {
		return fmt.Errorf("episode: log step %d outside [0, %d)", t, l.store.EpisodeLength())
	}
	for _, tgt := range l.store.LogTargets() {
		//nolint:gosec // t bounds-checked above
		params := device.PackParams(uint32(t), tgt.WordsPerEnv, tgt.WordsPerSlice)
		if err := l.reg.Invoke("episode_log_slice", []device.Buffer{tgt.Buf}, params); err != nil {
			return fmt.Errorf("episode: log step %d for %q: %w", t, tgt.Name, err)
		}
	}
	return nil
}

// FetchEpisode pulls the whole time axis of a logged array in a single
// bulk device-to-host transfer: one copy for the inspection consumer,
// never episode-length per-step pulls.
func (l *Logger) FetchEpisode(name string) (*sim.HostArray, error) {
	return l.store.PullEpisode(name)
}
