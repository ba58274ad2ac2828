package goid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetStableWithinGoroutine(t *testing.T) {
	id := Get()
	assert.Positive(t, id)
	assert.Equal(t, id, Get())
}

func TestGetDistinctAcrossGoroutines(t *testing.T) {
	const n = 16
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- Get()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{})
	for id := range ids {
		assert.Positive(t, id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}
