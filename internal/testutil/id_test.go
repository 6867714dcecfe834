package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSequence_Sequential(t *testing.T) {
	s := NewIDSequence("run")

	assert.Equal(t, "run-1", s.Next())
	assert.Equal(t, "run-2", s.Next())
	assert.Equal(t, int64(2), s.Current())
}

func TestIDSequence_DefaultPrefix(t *testing.T) {
	s := NewIDSequence("")
	assert.Equal(t, "test-1", s.Next())
}

func TestIDSequence_Reset(t *testing.T) {
	s := NewIDSequence("run")
	s.Next()
	s.Next()

	s.Reset()
	assert.Equal(t, "run-1", s.Next())
}

func TestIDSequence_ConcurrentUnique(t *testing.T) {
	s := NewIDSequence("run")

	const n = 100
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = s.Next()
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, int64(n), s.Current())
}
