package graph

import (
	"sync"
	"time"
)

// Clock hands out field states. A state is unix milliseconds scaled by 1000
// plus a counter, so it stays monotonic even when many writes share a millisecond
// and roughly comparable between relays.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewClock creates a clock backed by time.Now
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAt creates a clock with a custom time source (tests)
func NewClockAt(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Next returns a state strictly greater than every state seen so far
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.now().UnixMilli() * 1000
	if s <= c.last {
		s = c.last + 1
	}
	c.last = s
	return s
}

// Observe moves the clock forward past a state assigned elsewhere (peer relay, journal)
func (c *Clock) Observe(state int64) {
	c.mu.Lock()
	if state > c.last {
		c.last = state
	}
	c.mu.Unlock()
}
