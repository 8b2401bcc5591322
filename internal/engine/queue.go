package engine

import "sync"

// commandQueue is a thread-safe FIFO queue of pending commands.
//
// The queue is unbounded so a replay driver can enqueue a burst of checks
// without blocking. Thread-safety covers external producers (CLI, replay,
// websocket handlers) while the engine's Run loop is the only consumer.
//
// A size-1 signal channel coalesces wakeups and lets the Run loop select
// on queue availability and context cancellation at the same time.
type commandQueue struct {
	mu       sync.Mutex
	commands []*command
	closed   bool
	signal   chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]*command, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends a command. Returns false if the queue is closed.
func (q *commandQueue) Enqueue(c *command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.commands = append(q.commands, c)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front command without blocking.
func (q *commandQueue) TryDequeue() (*command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil, false
	}
	c := q.commands[0]

	// Nil the slot so the backing array does not retain the command after
	// it has been processed.
	q.commands[0] = nil
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}
	return c, true
}

// Wait returns the signal channel for use in a select alongside a context.
// The channel closes when the queue closes, waking all waiters.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close marks the queue closed and drains nothing: already-enqueued
// commands still run to completion.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
