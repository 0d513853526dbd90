/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package shift drives one overnight run: clock-in, the hourly status
// reports and clock-out.
package shift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/clock"
	"github.com/friendsincode/nightshift/internal/models"
	"github.com/friendsincode/nightshift/internal/notifications"
	"github.com/friendsincode/nightshift/internal/scheduler"
	"github.com/friendsincode/nightshift/internal/telemetry"
)

// Executor performs a single action with its own retry policy.
type Executor interface {
	Execute(ctx context.Context, req models.ActionRequest) models.ActionResult
}

// Runner owns the ShiftRun aggregate. Run is called once; Snapshot may be
// called from any goroutine.
type Runner struct {
	clock    clock.Clock
	sched    *scheduler.Service
	exec     Executor
	notifier notifications.Gateway
	logger   zerolog.Logger

	mu  sync.RWMutex
	run models.ShiftRun
}

// New plans the slots of the shift containing the current time. They are
// never recomputed.
func New(runID string, clk clock.Clock, sched *scheduler.Service, exec Executor, notifier notifications.Gateway, targetMinute int, logger zerolog.Logger) *Runner {
	return &Runner{
		clock:    clk,
		sched:    sched,
		exec:     exec,
		notifier: notifier,
		logger:   logger.With().Str("component", "shift").Str("run_id", runID).Logger(),
		run: models.ShiftRun{
			ID:     runID,
			Slots:  clock.NightSlots(clk.Now(), targetMinute),
			Status: models.RunStatusPending,
		},
	}
}

// Snapshot returns a copy of the run state.
func (r *Runner) Snapshot() models.ShiftRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run.Snapshot()
}

// Run executes the whole shift and returns the final state. Failed actions
// do not stop the run; cancellation does.
func (r *Runner) Run(ctx context.Context) models.ShiftRun {
	r.mu.Lock()
	r.run.Status = models.RunStatusRunning
	r.run.StartedAt = r.clock.Now()
	slots := append([]clock.Slot(nil), r.run.Slots...)
	r.mu.Unlock()

	r.logger.Info().
		Str("first_slot", slots[0].String()).
		Str("last_slot", slots[len(slots)-1].String()).
		Msg("shift run started")
	r.notifier.Send(ctx, "処理開始")

	r.execute(ctx, r.nowRequest(models.ModeClockIn))
	if ctx.Err() != nil {
		return r.cancelled()
	}

	idx, err := r.sched.WaitForDue(ctx, slots)
	if err != nil {
		if errors.Is(err, scheduler.ErrNoSlot) {
			r.logger.Error().Err(err).Msg("no night slot left to report")
			r.notifier.Send(ctx, "夜勤時間帯の算出に失敗")
			return r.finish(models.RunStatusAborted)
		}
		return r.cancelled()
	}

	for i := idx; i < len(slots); i++ {
		if i > idx {
			label := fmt.Sprintf("%d時の報告", slots[i].Hour)
			if err := r.sched.WaitUntil(ctx, slots[i].At, label); err != nil {
				return r.cancelled()
			}
		}

		r.setPosition(i)
		r.execute(ctx, models.ActionRequest{Slot: slots[i], Mode: models.ModeStatusReport})
		r.setPosition(i + 1)
		if ctx.Err() != nil {
			return r.cancelled()
		}
	}

	if err := r.sched.WaitUntil(ctx, r.sched.ClockOutTarget(), "退勤"); err != nil {
		return r.cancelled()
	}
	r.execute(ctx, r.nowRequest(models.ModeClockOut))
	if ctx.Err() != nil {
		return r.cancelled()
	}

	r.notifier.Send(ctx, "全処理完了")

	status := models.RunStatusCompleted
	r.mu.RLock()
	if r.run.Failures() > 0 {
		status = models.RunStatusDegraded
	}
	r.mu.RUnlock()
	return r.finish(status)
}

// nowRequest labels an unscheduled action with the current display hour.
func (r *Runner) nowRequest(mode models.Mode) models.ActionRequest {
	now := r.clock.Now()
	return models.ActionRequest{
		Slot: clock.Slot{Hour: clock.DisplayHour(now), At: now},
		Mode: mode,
	}
}

func (r *Runner) execute(ctx context.Context, req models.ActionRequest) models.ActionResult {
	res := r.exec.Execute(ctx, req)

	r.mu.Lock()
	r.run.Record(req, res, r.clock.Now())
	r.mu.Unlock()
	return res
}

func (r *Runner) setPosition(i int) {
	r.mu.Lock()
	r.run.Position = i
	r.mu.Unlock()
}

func (r *Runner) cancelled() models.ShiftRun {
	r.logger.Warn().Msg("shift run cancelled")
	r.notifier.Send(context.Background(), "処理中断")
	return r.finish(models.RunStatusCancelled)
}

func (r *Runner) finish(status models.RunStatus) models.ShiftRun {
	finished := r.clock.Now()

	r.mu.Lock()
	r.run.Status = status
	r.run.FinishedAt = &finished
	snap := r.run.Snapshot()
	r.mu.Unlock()

	telemetry.ShiftRunsTotal.WithLabelValues(string(status)).Inc()
	r.logger.Info().
		Str("status", string(status)).
		Int("actions", len(snap.Actions)).
		Int("failures", snap.Failures()).
		Dur("duration", finished.Sub(snap.StartedAt).Round(time.Second)).
		Msg("shift run finished")
	return snap
}
