package session

import "sync/atomic"

// Clock hands out journal sequence numbers.
//
// Every commit a session journals is stamped with a strictly increasing seq.
// Journal reads order by seq, never by wall time, so:
//   - a journal lists the same way every time it is read, on any host
//   - scenarios without a journal_path produce byte-identical transcripts
//
// Clock is safe for concurrent use, though only the session's control
// goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first commit gets seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start. A session opened on
// an existing journal resumes from store.LastSeq so its commits sort after
// every earlier session's.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value. Each call returns a
// unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// AdvanceTo moves the clock forward to at least v. It never moves back.
// The journal calls it after another session sharing the file took the seq
// this one was about to use.
func (c *Clock) AdvanceTo(v int64) {
	for {
		cur := c.seq.Load()
		if cur >= v || c.seq.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Current returns the last value handed out without advancing, 0 for a
// fresh clock.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
