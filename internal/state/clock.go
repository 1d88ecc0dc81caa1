package state

import "sync/atomic"

// Clock is the monotonic logical clock stamped into State.Revision.
//
// The container advances it once per applied change. Revisions are local to
// one instance and never replicated.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific revision.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next revision and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current revision without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
