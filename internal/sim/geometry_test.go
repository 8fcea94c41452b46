package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixGeometryRoundsBlockDim(t *testing.T) {
	geom, err := FixGeometry(2000, 1000, 64)
	require.NoError(t, err)
	assert.Equal(t, 2000, geom.GridDim)
	assert.Equal(t, 1024, geom.BlockDim)
	assert.Equal(t, 1000, geom.NumAgents)

	perGroup, fraction := geom.WastedLanes()
	assert.Equal(t, 24, perGroup)
	assert.InDelta(t, 24.0/1024.0, fraction, 1e-9)
}

func TestFixGeometryExactMultiple(t *testing.T) {
	geom, err := FixGeometry(4, 128, 64)
	require.NoError(t, err)
	assert.Equal(t, 128, geom.BlockDim)
	perGroup, fraction := geom.WastedLanes()
	assert.Equal(t, 0, perGroup)
	assert.Equal(t, 0.0, fraction)
}

func TestFixGeometryLaneMultipleOne(t *testing.T) {
	geom, err := FixGeometry(2, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, geom.BlockDim)
	assert.Equal(t, 6, geom.Threads())
}

func TestFixGeometryRejectsNonPositive(t *testing.T) {
	_, err := FixGeometry(0, 3, 1)
	assert.Error(t, err)
	_, err = FixGeometry(2, 0, 1)
	assert.Error(t, err)
}
