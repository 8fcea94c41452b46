package trace

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampede-rl/stampede/internal/sim"
)

func TestWriteReadEpisode(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	_, err = uuid.Parse(w.RunID())
	require.NoError(t, err, "run ID should be a UUID")

	arr, err := sim.FromPayload(sim.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.NoError(t, w.WriteEpisode("obs", arr))

	ep, err := ReadEpisode(filepath.Join(w.Dir(), "obs.json"))
	require.NoError(t, err)
	assert.Equal(t, "obs", ep.Name)
	assert.Equal(t, []int{2, 3}, ep.Shape)
	assert.Equal(t, "float32", ep.DType)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, ep.Float32)
	assert.Nil(t, ep.Int32)
}

func TestWriteEpisodeInt32(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	arr, err := sim.FromPayload(sim.Shape{4}, []int32{1, -2, 3, -4})
	require.NoError(t, err)
	require.NoError(t, w.WriteEpisode("actions", arr))

	ep, err := ReadEpisode(filepath.Join(w.Dir(), "actions.json"))
	require.NoError(t, err)
	assert.Equal(t, "int32", ep.DType)
	assert.Equal(t, []int32{1, -2, 3, -4}, ep.Int32)
}

func TestSeparateRunsGetSeparateDirs(t *testing.T) {
	base := t.TempDir()
	w1, err := NewWriter(base)
	require.NoError(t, err)
	w2, err := NewWriter(base)
	require.NoError(t, err)
	assert.NotEqual(t, w1.Dir(), w2.Dir())
}

func TestReadEpisodeMissingFile(t *testing.T) {
	_, err := ReadEpisode(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
