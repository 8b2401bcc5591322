package engine

import "sync/atomic"

// Clock is the monotonic logical clock stamping snapshot versions.
//
// Every published snapshot carries a strictly increasing version from this
// clock, so readers can order snapshots without wall-clock comparisons and
// a replayed run reproduces the same version sequence.
//
// Clock is safe for concurrent use, though the engine's single-writer
// design means only the Run loop normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known version, used when an
// engine restarts on top of a persisted journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next version and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the clock position without advancing it.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
