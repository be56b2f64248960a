package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRequestIDs_Sequence(t *testing.T) {
	gen := NewFixedRequestIDs("check")

	assert.Equal(t, "check-1", gen.Generate())
	assert.Equal(t, "check-2", gen.Generate())
}

func TestFixedRequestIDs_EmptyPrefixDefault(t *testing.T) {
	gen := NewFixedRequestIDs("")
	assert.Equal(t, "test-request-1", gen.Generate())
}

func TestFixedRequestIDs_ConcurrentUnique(t *testing.T) {
	gen := NewFixedRequestIDs("c")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 500)
}
