/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AttemptOutcome labels a single attempt in the journal.
type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "succeeded"
	AttemptRetryable AttemptOutcome = "retryable"
	AttemptFatal     AttemptOutcome = "fatal"
)

// ActionRecord journals one executor attempt.
type ActionRecord struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	RunID       string         `gorm:"type:varchar(36);index:idx_action_records_run;not null" json:"run_id"`
	Hour        int            `gorm:"not null" json:"hour"`
	Mode        Mode           `gorm:"type:varchar(32);not null" json:"mode"`
	Attempt     int            `gorm:"not null" json:"attempt"`
	Outcome     AttemptOutcome `gorm:"type:varchar(16);not null;index:idx_action_records_outcome" json:"outcome"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	EvidenceKey string         `gorm:"type:varchar(255)" json:"evidence_key,omitempty"`
	SlotAt      time.Time      `json:"slot_at"`
	StartedAt   time.Time      `gorm:"index" json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (ActionRecord) TableName() string {
	return "action_records"
}
