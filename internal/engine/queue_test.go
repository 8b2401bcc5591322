package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueue_FIFO preserves submission order exactly.
func TestQueue_FIFO(t *testing.T) {
	q := newCommandQueue()
	for _, item := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(&command{kind: cmdAddItem, item: item}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		cmd, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, cmd.item)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

// TestQueue_SignalCoalesces: multiple enqueues leave at most one pending
// signal, and a drain loop still sees every command.
func TestQueue_SignalCoalesces(t *testing.T) {
	q := newCommandQueue()
	for i := 0; i < 10; i++ {
		q.Enqueue(&command{kind: cmdPing})
	}

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("signal channel held more than one pending signal")
	default:
	}

	drained := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		drained++
	}
	assert.Equal(t, 10, drained)
}

// TestQueue_CloseRejectsAndWakes: Enqueue after Close fails, Wait fires.
func TestQueue_CloseRejectsAndWakes(t *testing.T) {
	q := newCommandQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(&command{kind: cmdPing}))

	select {
	case <-q.Wait():
	default:
		t.Fatal("closed queue did not wake waiters")
	}
}

// TestQueue_CloseKeepsPending: commands enqueued before Close still drain.
func TestQueue_CloseKeepsPending(t *testing.T) {
	q := newCommandQueue()
	require.True(t, q.Enqueue(&command{kind: cmdAddItem, item: "x"}))
	q.Close()

	cmd, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "x", cmd.item)
}
