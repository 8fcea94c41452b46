// Package parallel provides the host-side worker pool used by the
// reference backend to emulate grouped device launches.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinGroups  int  // Minimum groups before spawning workers.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinGroups:  4,
	}
}

// ForGroups executes f(group) for group in [0, groups) with optional
// parallelism, one group at a time per worker. Groups map to environment
// replicas: work inside one group stays on one goroutine so per-group
// memory is never shared between workers.
func ForGroups(groups int, f func(group int), cfg Config) {
	if !cfg.Enabled || groups < cfg.MinGroups {
		for g := 0; g < groups; g++ {
			f(g)
		}
		return
	}

	var wg sync.WaitGroup
	chunk := max((groups+cfg.NumWorkers-1)/cfg.NumWorkers, 1)

	for start := 0; start < groups; start += chunk {
		end := min(start+chunk, groups)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for g := s; g < e; g++ {
				f(g)
			}
		}(start, end)
	}
	wg.Wait()
}
