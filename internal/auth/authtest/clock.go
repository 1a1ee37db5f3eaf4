// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package authtest provides in-memory repositories and a controllable clock
// for exercising the auth package without a database.
package authtest

import (
	"sync"
	"time"

	"github.com/wardenauth/warden/internal/auth"
)

// Clock is a manually advanced auth.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var _ auth.Clock = (*Clock)(nil)
