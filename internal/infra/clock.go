package infra

import (
	"sync"
	"time"
)

// SystemClock reads wall time in unix seconds and never reports a value
// lower than one it already returned.
type SystemClock struct {
	mu   sync.Mutex
	last int64
}

// Now returns the current unix time in seconds.
func (c *SystemClock) Now() int64 {
	now := time.Now().Unix()

	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock starts a manual clock at now.
func NewManualClock(now int64) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the current manual time.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Earlier values are ignored.
func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d int64) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
