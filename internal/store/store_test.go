package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampede-rl/stampede/internal/backend/cpu"
	"github.com/stampede-rl/stampede/internal/sim"
)

func newTestStore(t *testing.T, numEnvs, episodeLength int) *Store {
	t.Helper()
	b := cpu.New()
	t.Cleanup(func() { b.Close() })
	s, err := New(b, numEnvs, episodeLength)
	require.NoError(t, err)
	return s
}

func TestPushPullRoundTrip(t *testing.T) {
	s := newTestStore(t, 2, 4)

	err := s.Push(Descriptor{
		Name:    "obs",
		Shape:   sim.Shape{2, 3},
		Payload: []float64{0.5, 1.5, 2.5, 3.5, 4.5, 5.5},
	})
	require.NoError(t, err)

	got, err := s.Pull("obs")
	require.NoError(t, err)
	assert.Equal(t, sim.Float32, got.DType())
	assert.True(t, got.Shape().Equal(sim.Shape{2, 3}))
	assert.Equal(t, []float32{0.5, 1.5, 2.5, 3.5, 4.5, 5.5}, got.AsFloat32())
}

func TestPushNormalizesIntegers(t *testing.T) {
	s := newTestStore(t, 2, 4)

	require.NoError(t, s.Push(Descriptor{Name: "done", Shape: sim.Shape{2}, Payload: []int64{0, 1}}))
	got, err := s.Pull("done")
	require.NoError(t, err)
	assert.Equal(t, sim.Int32, got.DType())
	assert.Equal(t, []int32{0, 1}, got.AsInt32())
}

func TestPushRejectsDuplicateName(t *testing.T) {
	s := newTestStore(t, 2, 4)
	d := Descriptor{Name: "obs", Shape: sim.Shape{2}, Payload: []float32{1, 2}}
	require.NoError(t, s.Push(d))
	assert.ErrorIs(t, s.Push(d), ErrDuplicateName)
}

func TestPullUnknownName(t *testing.T) {
	s := newTestStore(t, 2, 4)
	_, err := s.Pull("nothing")
	assert.ErrorIs(t, err, ErrUnknownArray)
}

func TestReserveEnforcesShape(t *testing.T) {
	s := newTestStore(t, 2, 4)
	require.NoError(t, s.Reserve("obs", sim.Shape{2, 3}, sim.Float32))

	err := s.Push(Descriptor{Name: "obs", Shape: sim.Shape{2, 2}, Payload: []float32{1, 2, 3, 4}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	require.NoError(t, s.Push(Descriptor{
		Name: "obs", Shape: sim.Shape{2, 3}, Payload: []float32{1, 2, 3, 4, 5, 6},
	}))
}

func TestReserveEnforcesDType(t *testing.T) {
	s := newTestStore(t, 2, 4)
	require.NoError(t, s.Reserve("actions", sim.Shape{2}, sim.Int32))
	err := s.Push(Descriptor{Name: "actions", Shape: sim.Shape{2}, Payload: []float32{1, 2}})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSnapshotRequiresEnvLeadingDimension(t *testing.T) {
	s := newTestStore(t, 2, 4)
	err := s.Push(Descriptor{
		Name:                    "obs",
		Shape:                   sim.Shape{3, 2}, // leading dim != numEnvs
		Payload:                 []float32{1, 2, 3, 4, 5, 6},
		SaveCopyAndApplyAtReset: true,
	})
	assert.ErrorIs(t, err, ErrEnvDimension)
}

func TestSnapshotCapturedAtPush(t *testing.T) {
	s := newTestStore(t, 2, 4)
	require.NoError(t, s.Push(Descriptor{
		Name:                    "obs",
		Shape:                   sim.Shape{2, 2},
		Payload:                 []float32{1, 2, 3, 4},
		SaveCopyAndApplyAtReset: true,
	}))

	snap, err := s.Snapshot("obs")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, snap.AsFloat32())

	_, err = s.SnapshotPointer("obs")
	assert.NoError(t, err)

	targets := s.ResetTargets()
	require.Len(t, targets, 1)
	assert.Equal(t, "obs", targets[0].Name)
	assert.Equal(t, uint32(2), targets[0].WordsPerEnv)
}

func TestSnapshotAbsent(t *testing.T) {
	s := newTestStore(t, 2, 4)
	require.NoError(t, s.Push(Descriptor{Name: "obs", Shape: sim.Shape{2}, Payload: []float32{1, 2}}))
	_, err := s.Snapshot("obs")
	assert.Error(t, err)
	assert.Empty(t, s.ResetTargets())
}

func TestLoggedArrayLayout(t *testing.T) {
	s := newTestStore(t, 2, 3)
	require.NoError(t, s.Push(Descriptor{
		Name:                 "obs",
		Shape:                sim.Shape{2, 2},
		Payload:              []float32{1, 2, 3, 4},
		LogDataAcrossEpisode: true,
	}))

	// Pull returns only the live slice.
	live, err := s.Pull("obs")
	require.NoError(t, err)
	assert.True(t, live.Shape().Equal(sim.Shape{2, 2}))
	assert.Equal(t, []float32{1, 2, 3, 4}, live.AsFloat32())

	// PullEpisode returns the whole time axis, zero-filled past slice 0.
	ep, err := s.PullEpisode("obs")
	require.NoError(t, err)
	assert.True(t, ep.Shape().Equal(sim.Shape{3, 2, 2}))
	vals := ep.AsFloat32()
	assert.Equal(t, []float32{1, 2, 3, 4}, vals[:4])
	for _, v := range vals[4:] {
		assert.Equal(t, float32(0), v)
	}

	targets := s.LogTargets()
	require.Len(t, targets, 1)
	assert.Equal(t, uint32(2), targets[0].WordsPerEnv)
	assert.Equal(t, uint32(4), targets[0].WordsPerSlice)
	assert.Equal(t, uint32(3), targets[0].EpisodeLength)
}

func TestPullEpisodeRequiresLoggedArray(t *testing.T) {
	s := newTestStore(t, 2, 4)
	require.NoError(t, s.Push(Descriptor{Name: "obs", Shape: sim.Shape{2}, Payload: []float32{1, 2}}))
	_, err := s.PullEpisode("obs")
	assert.Error(t, err)
}

func TestHostViewAliasesLiveSlice(t *testing.T) {
	s := newTestStore(t, 2, 4)
	require.NoError(t, s.Push(Descriptor{
		Name:    "obs",
		Shape:   sim.Shape{2, 2},
		Payload: []float32{1, 2, 3, 4},
	}, WithHostVisible()))

	view, err := s.HostView("obs")
	require.NoError(t, err)
	require.Len(t, view, 16)

	sim.Float32View(view)[0] = 42
	got, err := s.Pull("obs")
	require.NoError(t, err)
	assert.Equal(t, float32(42), got.AsFloat32()[0])
}

func TestHostViewNotRequested(t *testing.T) {
	s := newTestStore(t, 2, 4)
	require.NoError(t, s.Push(Descriptor{Name: "obs", Shape: sim.Shape{2}, Payload: []float32{1, 2}}))
	_, err := s.HostView("obs")
	assert.ErrorIs(t, err, ErrNoHostView)
}

func TestDescribeAndList(t *testing.T) {
	s := newTestStore(t, 2, 4)
	require.NoError(t, s.Push(Descriptor{
		Name:                    "obs",
		Shape:                   sim.Shape{2, 3},
		Payload:                 []float32{1, 2, 3, 4, 5, 6},
		SaveCopyAndApplyAtReset: true,
	}))
	require.NoError(t, s.Push(Descriptor{Name: "done", Shape: sim.Shape{2}, Payload: []int32{0, 0}}))

	m, err := s.Describe("obs")
	require.NoError(t, err)
	assert.Equal(t, sim.Float32, m.DType)
	assert.True(t, m.HasSnapshot)
	assert.False(t, m.Logged)
	assert.Equal(t, uint64(48), m.DeviceBytes) // live + snapshot

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "obs", list[0].Name)
	assert.Equal(t, "done", list[1].Name)
	assert.Equal(t, uint64(56), s.ResidentBytes())
}

func TestPushHostArrayPayload(t *testing.T) {
	s := newTestStore(t, 2, 4)
	arr, err := sim.FromPayload(sim.Shape{2}, []int32{5, 6})
	require.NoError(t, err)

	require.NoError(t, s.Push(Descriptor{Name: "x", Payload: arr}))
	got, err := s.Pull("x")
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 6}, got.AsInt32())
}
