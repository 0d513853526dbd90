/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"github.com/friendsincode/nightshift/internal/models"
)

// OutcomeKind classifies one attempt. The zero value is retryable so an
// outcome that was never set cannot count as a success.
type OutcomeKind int

const (
	OutcomeRetryable OutcomeKind = iota
	OutcomeSuccess
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome is the result of a single attempt. Err is nil only for success.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Success is a confirmed attempt.
func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

// Retryable is a failed attempt that may be repeated.
func Retryable(err error) Outcome { return Outcome{Kind: OutcomeRetryable, Err: err} }

// Fatal stops the retry loop at once.
func Fatal(err error) Outcome { return Outcome{Kind: OutcomeFatal, Err: err} }

func (o Outcome) journalOutcome() models.AttemptOutcome {
	switch o.Kind {
	case OutcomeSuccess:
		return models.AttemptSucceeded
	case OutcomeFatal:
		return models.AttemptFatal
	}
	return models.AttemptRetryable
}

func (o Outcome) metricLabel() string {
	return string(o.journalOutcome())
}
