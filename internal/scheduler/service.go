/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler decides when each action of a shift is due and blocks
// until then.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/clock"
	"github.com/friendsincode/nightshift/internal/telemetry"
)

// ErrNoSlot is returned when no slot is due and none lies in the future.
var ErrNoSlot = errors.New("no current or upcoming slot")

// Config holds the timing policy.
type Config struct {
	ToleranceMinutes     int
	ClockOutHour         int
	ClockOutMinute       int
	ClockOutRolloverHour int
}

// Service performs the blocking waits of a shift.
type Service struct {
	clock  clock.Clock
	cfg    Config
	intn   func(n int) int
	logger zerolog.Logger
}

// New constructs the scheduler service.
func New(clk clock.Clock, cfg Config, logger zerolog.Logger) *Service {
	if cfg.ToleranceMinutes < 0 {
		cfg.ToleranceMinutes = 0
	}
	return &Service{
		clock:  clk,
		cfg:    cfg,
		intn:   rand.Intn,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// ResolveDue finds the slot to act on at now. A slot is due while now is
// within [target - tolerance, HH:59] of its target hour; the wait is zero
// then. Otherwise the earliest future slot is chosen with the exact time
// remaining until its target.
func ResolveDue(now time.Time, slots []clock.Slot, tolerance time.Duration) (int, time.Duration, error) {
	for i, s := range slots {
		if !now.Before(s.At.Add(-tolerance)) && !now.After(windowEnd(s.At)) {
			return i, 0, nil
		}
	}
	for i, s := range slots {
		if s.At.After(now) {
			return i, s.At.Sub(now), nil
		}
	}
	return -1, 0, ErrNoSlot
}

// windowEnd is minute 59 of the target's hour.
func windowEnd(target time.Time) time.Time {
	y, m, d := target.Date()
	return time.Date(y, m, d, target.Hour(), 59, 0, 0, target.Location())
}

// ClockOutTarget returns hour:minute today, or tomorrow once the current
// hour has reached the rollover hour.
func ClockOutTarget(now time.Time, hour, minute, rolloverHour int) time.Time {
	y, m, d := now.Date()
	target := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if now.Hour() >= rolloverHour {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// Tolerance is the configured window as a duration.
func (s *Service) Tolerance() time.Duration {
	return time.Duration(s.cfg.ToleranceMinutes) * time.Minute
}

// WaitForDue blocks until a slot is due and returns its index.
func (s *Service) WaitForDue(ctx context.Context, slots []clock.Slot) (int, error) {
	now := s.clock.Now()
	idx, wait, err := ResolveDue(now, slots, s.Tolerance())
	if err != nil {
		return -1, err
	}

	if wait > 0 {
		s.logger.Info().
			Int("hour", slots[idx].Hour).
			Time("target", slots[idx].At).
			Msgf("次の報告まで待機 %s", formatWait(wait))
		if err := s.sleep(ctx, wait); err != nil {
			return -1, err
		}
	}
	return idx, nil
}

// Jitter returns a random whole number of minutes in
// [-tolerance, +tolerance].
func (s *Service) Jitter() time.Duration {
	tol := s.cfg.ToleranceMinutes
	if tol == 0 {
		return 0
	}
	return time.Duration(s.intn(2*tol+1)-tol) * time.Minute
}

// WaitUntil sleeps until target shifted by a fresh jitter. Targets already
// passed return at once. label only feeds the log line.
func (s *Service) WaitUntil(ctx context.Context, target time.Time, label string) error {
	jitter := s.Jitter()
	telemetry.SchedulerJitterSeconds.Observe(jitter.Seconds())

	wait := target.Sub(s.clock.Now()) + jitter
	if wait < 0 {
		wait = 0
	}

	s.logger.Info().
		Str("next", label).
		Time("target", target).
		Dur("jitter", jitter).
		Msgf("%sまで待機 %s", label, formatWait(wait))
	return s.sleep(ctx, wait)
}

// ClockOutTarget applies the configured clock-out time to the current time.
func (s *Service) ClockOutTarget() time.Time {
	return ClockOutTarget(s.clock.Now(), s.cfg.ClockOutHour, s.cfg.ClockOutMinute, s.cfg.ClockOutRolloverHour)
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	telemetry.SchedulerWaitSeconds.Set(d.Seconds())
	defer telemetry.SchedulerWaitSeconds.Set(0)

	if err := s.clock.Sleep(ctx, d); err != nil {
		s.logger.Info().Err(err).Msg("wait interrupted")
		return fmt.Errorf("wait interrupted: %w", err)
	}
	return nil
}

// formatWait renders d as "12分34秒".
func formatWait(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d分%d秒", total/60, total%60)
}
