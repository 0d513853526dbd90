/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/nightshift/internal/clock"
)

// Mode is the category of reporting action.
type Mode string

const (
	ModeClockIn      Mode = "clock_in"
	ModeStatusReport Mode = "status_report"
	ModeClockOut     Mode = "clock_out"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeClockIn, ModeStatusReport, ModeClockOut:
		return true
	}
	return false
}

// Label is the site's name for the mode, used in logs and alerts.
func (m Mode) Label() string {
	switch m {
	case ModeClockIn:
		return "出勤"
	case ModeStatusReport:
		return "勤務状況報告"
	case ModeClockOut:
		return "退勤"
	}
	return string(m)
}

// NotifiesOnSuccess reports whether a successful action of this mode is
// announced. Routine status reports stay silent.
func (m Mode) NotifiesOnSuccess() bool {
	return m == ModeClockIn || m == ModeClockOut
}

// ActionRequest asks the executor to perform one action for a slot.
type ActionRequest struct {
	Slot clock.Slot `json:"slot"`
	Mode Mode       `json:"mode"`
}

// ActionResult is the terminal outcome of an ActionRequest.
type ActionResult struct {
	Success  bool  `json:"success"`
	Attempts int   `json:"attempts"`
	Err      error `json:"-"`
}

// RunStatus is the overall state of a shift run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusDegraded  RunStatus = "degraded"  // finished, at least one action failed
	RunStatusAborted   RunStatus = "aborted"   // no resolvable slot
	RunStatusCancelled RunStatus = "cancelled" // context cancelled mid-run
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusDegraded, RunStatusAborted, RunStatusCancelled:
		return true
	}
	return false
}

// ActionOutcome is one entry of a run's action history.
type ActionOutcome struct {
	Hour       int       `json:"hour"`
	Mode       Mode      `json:"mode"`
	Success    bool      `json:"success"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// ShiftRun is the aggregate driving a whole overnight sequence. Slots are
// fixed at creation.
type ShiftRun struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Slots      []clock.Slot    `json:"slots"`
	Position   int             `json:"position"` // index of the next slot to process
	Status     RunStatus       `json:"status"`
	Actions    []ActionOutcome `json:"actions"`
}

// Record appends an action outcome to the run history.
func (r *ShiftRun) Record(req ActionRequest, res ActionResult, at time.Time) {
	out := ActionOutcome{
		Hour:       req.Slot.Hour,
		Mode:       req.Mode,
		Success:    res.Success,
		Attempts:   res.Attempts,
		FinishedAt: at,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	r.Actions = append(r.Actions, out)
}

// Failures counts recorded actions that did not succeed.
func (r *ShiftRun) Failures() int {
	n := 0
	for _, a := range r.Actions {
		if !a.Success {
			n++
		}
	}
	return n
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (r *ShiftRun) Snapshot() ShiftRun {
	cp := *r
	cp.Slots = append([]clock.Slot(nil), r.Slots...)
	cp.Actions = append([]ActionOutcome(nil), r.Actions...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}
