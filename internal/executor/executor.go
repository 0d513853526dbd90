/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package executor performs one reporting action through a bounded retry
// loop. Every attempt gets a fresh session that is closed before the
// attempt returns.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/clock"
	"github.com/friendsincode/nightshift/internal/models"
	"github.com/friendsincode/nightshift/internal/notifications"
	"github.com/friendsincode/nightshift/internal/session"
	"github.com/friendsincode/nightshift/internal/storage"
	"github.com/friendsincode/nightshift/internal/telemetry"
)

const tracerName = "nightshift/executor"

// Config holds the site parameters and retry policy.
type Config struct {
	RunID        string
	LoginURL     string
	Credentials  session.Credentials
	TenantText   string
	MaxAttempts  int
	StepTimeout  time.Duration
	Backoff      time.Duration
	PollInterval time.Duration
}

// Recorder persists one row per attempt.
type Recorder interface {
	Record(ctx context.Context, rec *models.ActionRecord) error
}

// Executor runs ActionRequests against the site.
type Executor struct {
	driver   session.Driver
	notifier notifications.Gateway
	clock    clock.Clock
	detector *CompletionDetector
	cfg      Config

	journal  Recorder
	evidence storage.ObjectStore

	logger zerolog.Logger
}

// Option configures optional collaborators.
type Option func(*Executor)

// WithJournal records every attempt.
func WithJournal(r Recorder) Option {
	return func(e *Executor) { e.journal = r }
}

// WithEvidence stores a screenshot of every failed attempt.
func WithEvidence(store storage.ObjectStore) Option {
	return func(e *Executor) { e.evidence = store }
}

// New creates an executor. MaxAttempts below one is raised to one.
func New(driver session.Driver, notifier notifications.Gateway, clk clock.Clock, cfg Config, logger zerolog.Logger, opts ...Option) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	logger = logger.With().Str("component", "executor").Logger()
	e := &Executor{
		driver:   driver,
		notifier: notifier,
		clock:    clk,
		detector: NewCompletionDetector(clk, cfg.PollInterval, logger),
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs req, retrying failed attempts after the backoff. It
// sends a success alert for clock-in and clock-out and exactly one alert
// when the action finally fails.
func (e *Executor) Execute(ctx context.Context, req models.ActionRequest) models.ActionResult {
	logger := e.logger.With().
		Int("hour", req.Slot.Hour).
		Str("mode", string(req.Mode)).
		Logger()

	var lastErr error
	attempts := 0

loop:
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		out := e.attempt(ctx, req, attempt, logger)

		switch out.Kind {
		case OutcomeSuccess:
			logger.Info().Int("attempt", attempt).Msgf("%d時：%s完了", req.Slot.Hour, req.Mode.Label())
			telemetry.ActionResultsTotal.WithLabelValues(string(req.Mode), "success").Inc()
			if req.Mode.NotifiesOnSuccess() {
				e.notifier.Send(ctx, fmt.Sprintf("%d時：%s 完了", req.Slot.Hour, req.Mode.Label()))
			}
			return models.ActionResult{Success: true, Attempts: attempt}

		case OutcomeFatal:
			lastErr = out.Err
			logger.Warn().Err(out.Err).Int("attempt", attempt).Msg("attempt aborted")
			break loop
		}

		lastErr = out.Err
		logger.Warn().
			Err(out.Err).
			Int("attempt", attempt).
			Int("max_attempts", e.cfg.MaxAttempts).
			Msgf("%d時：%sでエラー", req.Slot.Hour, req.Mode.Label())

		if attempt < e.cfg.MaxAttempts {
			if err := e.clock.Sleep(ctx, e.cfg.Backoff); err != nil {
				lastErr = fmt.Errorf("%w (retry interrupted: %v)", lastErr, err)
				break loop
			}
		}
	}

	logger.Error().Err(lastErr).Int("attempts", attempts).Msg("action failed")
	telemetry.ActionResultsTotal.WithLabelValues(string(req.Mode), "failure").Inc()
	e.notifier.Send(ctx, fmt.Sprintf("%d時：%s 失敗（最終）\n%v", req.Slot.Hour, req.Mode.Label(), lastErr))

	return models.ActionResult{Success: false, Attempts: attempts, Err: lastErr}
}

// attempt runs one full UI sequence on a fresh session.
func (e *Executor) attempt(ctx context.Context, req models.ActionRequest, n int, logger zerolog.Logger) (out Outcome) {
	started := e.clock.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "executor.attempt")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"shift.hour":    req.Slot.Hour,
		"shift.mode":    string(req.Mode),
		"shift.attempt": n,
	})

	var evidenceKey string
	defer func() {
		finished := e.clock.Now()
		telemetry.ActionAttemptsTotal.WithLabelValues(string(req.Mode), out.metricLabel()).Inc()
		telemetry.ActionAttemptDuration.WithLabelValues(string(req.Mode)).Observe(finished.Sub(started).Seconds())
		telemetry.RecordError(span, out.Err)
		e.record(ctx, req, n, out, evidenceKey, started, finished)
	}()

	// A panicking session must not take the whole run down.
	defer func() {
		if r := recover(); r != nil {
			out = Retryable(fmt.Errorf("unexpected failure: %v", r))
			logger.Error().Interface("panic", r).Int("attempt", n).Msg("attempt panicked")
		}
	}()

	if err := ctx.Err(); err != nil {
		return Fatal(err)
	}

	sess, err := e.driver.Open(ctx, e.cfg.StepTimeout)
	if err != nil {
		return e.classify(ctx, err)
	}
	defer sess.Close()

	out = e.drive(ctx, sess, req, logger)
	if out.Kind != OutcomeSuccess {
		evidenceKey = e.captureEvidence(ctx, sess, req, n, started, logger)
	}
	return out
}

func (e *Executor) drive(ctx context.Context, sess session.Session, req models.ActionRequest, logger zerolog.Logger) Outcome {
	if err := sess.NavigateAndLogin(ctx, e.cfg.LoginURL, e.cfg.Credentials); err != nil {
		return e.classify(ctx, err)
	}
	if err := sess.SelectTenant(ctx, e.cfg.TenantText); err != nil {
		return e.classify(ctx, err)
	}
	logger.Debug().Str("tenant", e.cfg.TenantText).Msg("tenant selected")

	if err := sess.ClickControl(ctx, req.Mode); err != nil {
		return e.classify(ctx, err)
	}
	logger.Info().Msgf("%d時：%sボタンをクリック", req.Slot.Hour, req.Mode.Label())

	if err := sess.ConfirmAndSubmit(ctx); err != nil {
		return e.classify(ctx, err)
	}
	logger.Debug().Msg("report submitted")

	if !e.detector.Check(ctx, sess, e.cfg.StepTimeout) {
		if err := ctx.Err(); err != nil {
			return Fatal(err)
		}
		return Retryable(ErrCompletionTimeout)
	}
	return Success()
}

// classify turns a session error into an outcome. Only cancellation of the
// run itself is fatal; step deadlines stay retryable.
func (e *Executor) classify(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return Fatal(err)
	}
	return Retryable(err)
}

func (e *Executor) captureEvidence(ctx context.Context, sess session.Session, req models.ActionRequest, n int, at time.Time, logger zerolog.Logger) string {
	if e.evidence == nil {
		return ""
	}
	shooter, ok := sess.(session.Screenshotter)
	if !ok {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	data, err := shooter.Screenshot(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("screenshot failed")
		return ""
	}

	key := storage.EvidenceKey(e.cfg.RunID, req.Slot.Hour, req.Mode, n, at)
	if err := e.evidence.Put(ctx, key, data); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to store evidence")
		return ""
	}
	logger.Info().Str("key", key).Msg("failure evidence stored")
	return key
}

func (e *Executor) record(ctx context.Context, req models.ActionRequest, n int, out Outcome, evidenceKey string, started, finished time.Time) {
	if e.journal == nil {
		return
	}

	rec := &models.ActionRecord{
		RunID:       e.cfg.RunID,
		Hour:        req.Slot.Hour,
		Mode:        req.Mode,
		Attempt:     n,
		Outcome:     out.journalOutcome(),
		EvidenceKey: evidenceKey,
		SlotAt:      req.Slot.At,
		StartedAt:   started,
		FinishedAt:  finished,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.journal.Record(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Msg("failed to journal attempt")
	}
}
