package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator_Order(t *testing.T) {
	g := NewSequenceGenerator("cmd")
	assert.Equal(t, "cmd-0001", g.Generate())
	assert.Equal(t, "cmd-0002", g.Generate())
	assert.Equal(t, "cmd-0003", g.Generate())
}

func TestSequenceGenerator_DefaultPrefix(t *testing.T) {
	g := NewSequenceGenerator("")
	assert.Equal(t, "tok-0001", g.Generate())
}

func TestSequenceGenerator_ConcurrentUnique(t *testing.T) {
	g := NewSequenceGenerator("cmd")

	const n = 100
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i] = g.Generate()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, tok := range tokens {
		seen[tok] = struct{}{}
	}
	assert.Len(t, seen, n)
}
