// Package clock provides the second-resolution time base used for tag
// timestamps and aging. Tag ages are compared in whole seconds, matching the
// granularity of the age threshold in device profiles.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time in whole seconds. The source can be
// replaced with a manual one for deterministic aging.
type Clock struct {
	mu     sync.Mutex
	nowFn  func() uint32
	manual bool
	fixed  uint32
}

// New creates a Clock that follows the system clock.
func New() *Clock {
	return &Clock{
		nowFn: func() uint32 {
			return uint32(time.Now().Unix())
		},
	}
}

// NewManual creates a Clock that stays at start until Set or Advance is
// called.
func NewManual(start uint32) *Clock {
	return &Clock{manual: true, fixed: start}
}

// Now returns the current time in seconds.
func (c *Clock) Now() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manual {
		return c.fixed
	}
	return c.nowFn()
}

// Set pins the clock to t. The clock stays there until the next Set or
// Advance.
func (c *Clock) Set(t uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = true
	c.fixed = t
}

// Advance moves the clock forward by d seconds and returns the new time. A
// system clock is pinned at its current reading first.
func (c *Clock) Advance(d uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.manual {
		c.fixed = c.nowFn()
		c.manual = true
	}
	c.fixed += d
	return c.fixed
}

// Time converts a reading in seconds to a time.Time.
func Time(sec uint32) time.Time {
	return time.Unix(int64(sec), 0)
}
