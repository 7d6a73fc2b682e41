package engine

import "sync/atomic"

// Clock is a monotonic logical clock.
//
// Applied mutations are stamped with Next. Seq values never come from wall
// time, so a journaled session replays in exactly the recorded order.
//
// Clock is safe for concurrent use, although only the Run goroutine calls
// Next in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
