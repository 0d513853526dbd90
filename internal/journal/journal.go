/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/nightshift/internal/models"
)

// Journal writes attempt records.
type Journal struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New wraps an open, migrated database.
func New(db *gorm.DB, logger zerolog.Logger) *Journal {
	return &Journal{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

// Record inserts rec, assigning an ID when empty. Failures are returned
// for the caller to log; the journal never blocks a run.
func (j *Journal) Record(ctx context.Context, rec *models.ActionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := j.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert action record: %w", err)
	}
	j.logger.Debug().
		Str("run_id", rec.RunID).
		Int("hour", rec.Hour).
		Str("mode", string(rec.Mode)).
		Int("attempt", rec.Attempt).
		Str("outcome", string(rec.Outcome)).
		Msg("attempt journaled")
	return nil
}

// ListRun returns every record of a run in attempt order.
func (j *Journal) ListRun(ctx context.Context, runID string) ([]models.ActionRecord, error) {
	var records []models.ActionRecord
	err := j.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("started_at ASC").
		Order("attempt ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list action records: %w", err)
	}
	return records, nil
}

// CountByOutcome tallies a run's records per attempt outcome.
func (j *Journal) CountByOutcome(ctx context.Context, runID string) (map[models.AttemptOutcome]int, error) {
	var rows []struct {
		Outcome models.AttemptOutcome
		Count   int
	}
	err := j.db.WithContext(ctx).
		Model(&models.ActionRecord{}).
		Select("outcome, COUNT(*) AS count").
		Where("run_id = ?", runID).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count action records: %w", err)
	}
	counts := make(map[models.AttemptOutcome]int, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.Count
	}
	return counts, nil
}
