/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts wall time and blocking waits so the scheduler and
// executor can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time in the clock's location.
	Now() time.Time

	// Sleep blocks for d or until ctx is done, whichever comes first.
	// It returns ctx.Err() when interrupted. Non-positive durations return
	// immediately.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real implements Clock using the system time.
type Real struct {
	loc *time.Location
}

// NewReal creates a system clock reporting times in loc. A nil loc means
// time.Local.
func NewReal(loc *time.Location) *Real {
	if loc == nil {
		loc = time.Local
	}
	return &Real{loc: loc}
}

// Now returns the current system time.
func (c *Real) Now() time.Time {
	return time.Now().In(c.loc)
}

// Sleep waits on a timer selected against ctx.Done().
func (c *Real) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fake implements Clock with a manually controlled time. Sleep advances
// the fake time instead of blocking and records every requested duration.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	sleeps  []time.Duration

	// OnSleep, when set, runs after each Sleep has advanced the clock.
	OnSleep func(d time.Duration)
}

// NewFake creates a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the fake time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set replaces the fake time.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the fake time forward by d.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Sleep records d and advances the fake time by it.
func (c *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.current = c.current.Add(d)
	}
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Sleeps returns a copy of every duration passed to Sleep.
func (c *Fake) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
