package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForGroupsCoversAllGroups(t *testing.T) {
	const groups = 100
	var visited [groups]int32
	ForGroups(groups, func(g int) {
		atomic.AddInt32(&visited[g], 1)
	}, Config{Enabled: true, NumWorkers: 8, MinGroups: 1})

	for g, n := range visited {
		assert.Equal(t, int32(1), n, "group %d visited %d times", g, n)
	}
}

func TestForGroupsSequentialBelowThreshold(t *testing.T) {
	var order []int
	// Appending without a lock is only safe if execution is sequential.
	ForGroups(3, func(g int) {
		order = append(order, g)
	}, Config{Enabled: true, NumWorkers: 8, MinGroups: 4})
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestForGroupsDisabled(t *testing.T) {
	var order []int
	ForGroups(8, func(g int) {
		order = append(order, g)
	}, Config{Enabled: false, NumWorkers: 8, MinGroups: 1})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestForGroupsZeroGroups(t *testing.T) {
	called := false
	ForGroups(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}
