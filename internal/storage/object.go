/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage keeps failure evidence such as screenshots.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/friendsincode/nightshift/internal/models"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// EvidenceKey names the screenshot of one failed attempt, e.g.
// "<run>/20260101T231700-h23-status_report-a2.png".
func EvidenceKey(runID string, hour int, mode models.Mode, attempt int, at time.Time) string {
	name := fmt.Sprintf("%s-h%d-%s-a%d.png", at.UTC().Format("20060102T150405"), hour, mode, attempt)
	return path.Join(sanitize(runID), name)
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
