/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"time"

	"go.uber.org/atomic"
)

// ManualClock is a clock that moves only when it's told to. It's safe for concurrent use.
// Its Now method may be passed to ratelimit.WithClock.
type ManualClock struct {
	start  time.Time
	offset atomic.Int64
}

// NewManualClock creates a new clock that shows the start time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{start: start}
}

// Now returns the current time of the clock.
func (c *ManualClock) Now() time.Time {
	return c.start.Add(time.Duration(c.offset.Load()))
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

// Set moves the clock to the given time that is measured from the start time of the clock.
func (c *ManualClock) Set(elapsed time.Duration) {
	c.offset.Store(int64(elapsed))
}
