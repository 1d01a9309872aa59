// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import "time"

// Clock is a manually advanced clock for deterministic reactor tests.
type Clock struct {
	now time.Time
}

// NewClock returns a clock frozen at a fixed epoch.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the simulated time.
func (c *Clock) Now() time.Time { return c.now }

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// Set jumps to t.
func (c *Clock) Set(t time.Time) { c.now = t }
