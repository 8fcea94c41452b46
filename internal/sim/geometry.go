package sim

import "fmt"

// Geometry is the launch geometry every kernel is dispatched with:
// one thread group per environment replica, one thread per agent, with
// the group width rounded up to the backend's lane multiple.
type Geometry struct {
	NumEnvs   int // registered environment count
	NumAgents int // registered agent count (true count, before rounding)
	GridDim   int // thread groups per launch, always == NumEnvs
	BlockDim  int // threads per group, NumAgents rounded up to the lane multiple
}

// FixGeometry derives the launch geometry from the problem shape.
// laneMultiple is the hardware lockstep width reported by the backend;
// BlockDim is rounded up to it so every agent is covered. Kernels must
// guard agent indices >= NumAgents when BlockDim > NumAgents.
func FixGeometry(numEnvs, numAgents, laneMultiple int) (Geometry, error) {
	if numEnvs <= 0 || numAgents <= 0 {
		return Geometry{}, fmt.Errorf("geometry requires positive counts, got %d envs, %d agents", numEnvs, numAgents)
	}
	if laneMultiple <= 0 {
		laneMultiple = 1
	}
	block := ((numAgents + laneMultiple - 1) / laneMultiple) * laneMultiple
	return Geometry{
		NumEnvs:   numEnvs,
		NumAgents: numAgents,
		GridDim:   numEnvs,
		BlockDim:  block,
	}, nil
}

// WastedLanes returns the number of idle threads per group and the idle
// fraction of the launch. Agent counts that are not a lane multiple waste
// capacity proportionally; the loss is reported, never an error.
func (g Geometry) WastedLanes() (perGroup int, fraction float64) {
	perGroup = g.BlockDim - g.NumAgents
	if g.BlockDim > 0 {
		fraction = float64(perGroup) / float64(g.BlockDim)
	}
	return perGroup, fraction
}

// Threads returns the total thread count of one launch.
func (g Geometry) Threads() int {
	return g.GridDim * g.BlockDim
}

func (g Geometry) String() string {
	return fmt.Sprintf("grid=%d block=%d (envs=%d agents=%d)", g.GridDim, g.BlockDim, g.NumEnvs, g.NumAgents)
}
