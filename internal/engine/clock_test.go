package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClock_Monotonic: Next yields strictly increasing values.
func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

// TestClock_ResumeAt continues from a persisted position.
func TestClock_ResumeAt(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(42), c.Next())
}

// TestClock_ConcurrentUnique: concurrent Next calls never collide.
func TestClock_ConcurrentUnique(t *testing.T) {
	c := NewClock()
	const n = 100
	seen := make(chan int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.Next()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]struct{}, n)
	for v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, n)
	assert.Equal(t, int64(n), c.Current())
}

// TestFixedGenerator_Order returns tokens in order and panics when spent.
func TestFixedGenerator_Order(t *testing.T) {
	gen := NewFixedGenerator("t-1", "t-2")
	assert.Equal(t, "t-1", gen.Generate())
	assert.Equal(t, "t-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

// TestUUIDv7Generator_Unique produces distinct well-formed tokens.
func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
