package ledgergate

import "sync/atomic"

// Clock is the engine's monotonic logical clock.
//
// Every audit row and record write is stamped with a strictly increasing seq
// from this clock, never wall time. Logical ordering keeps replays and
// golden traces identical regardless of when they run.
//
// Thread-safety: atomic; in practice only the single-writer Run loop calls
// Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number, for
// resuming over an existing ledger.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
