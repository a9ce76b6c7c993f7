package engine

import "sync/atomic"

// Clock is the monotonic logical clock events are stamped with. All
// ordering in traces and the journal derives from it, never from wall
// time, so replay reproduces the original order exactly.
//
// Thread-safety: safe for concurrent use via atomics, though in
// practice only the engine loop calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a specific sequence
// number. Replay uses this to continue after the journal's last entry.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
