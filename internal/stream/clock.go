package stream

import "sync/atomic"

// Clock hands out event sequence numbers. Streams that share a Clock get a
// single total order over all their events, independent of wall time.
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first tick is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first tick is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current reports the last value handed out, or the start value if Next was
// never called.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
