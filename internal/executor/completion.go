/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/clock"
	"github.com/friendsincode/nightshift/internal/session"
)

// ErrCompletionTimeout means the completion marker never appeared.
var ErrCompletionTimeout = errors.New("completion marker not observed before timeout")

// CompletionDetector polls a session for the post-submission marker.
type CompletionDetector struct {
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger
}

// NewCompletionDetector creates a detector probing every interval.
func NewCompletionDetector(clk clock.Clock, interval time.Duration, logger zerolog.Logger) *CompletionDetector {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &CompletionDetector{
		clock:    clk,
		interval: interval,
		logger:   logger.With().Str("component", "completion").Logger(),
	}
}

// Check reports whether the marker shows up within timeout. A probe error
// counts as "not yet"; the last probe happens at the deadline.
func (d *CompletionDetector) Check(ctx context.Context, sess session.Session, timeout time.Duration) bool {
	deadline := d.clock.Now().Add(timeout)
	for {
		found, err := sess.MarkerPresent(ctx)
		if err != nil {
			d.logger.Debug().Err(err).Msg("marker probe failed")
		}
		if found {
			return true
		}

		remaining := deadline.Sub(d.clock.Now())
		if remaining <= 0 {
			return false
		}
		if err := d.clock.Sleep(ctx, min(d.interval, remaining)); err != nil {
			return false
		}
	}
}
