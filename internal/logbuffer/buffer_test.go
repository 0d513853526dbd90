/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Add(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	all := b.GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll() returned %d entries, want 3", len(all))
	}
	for i, want := range []string{"m2", "m3", "m4"} {
		if all[i].Message != want {
			t.Errorf("entry %d = %q, want %q", i, all[i].Message, want)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	b := New(10)
	base := time.Date(2026, 10, 17, 23, 0, 0, 0, time.UTC)
	b.Add(LogEntry{Timestamp: base, Level: "info", Message: "run started", Component: "shift", Fields: map[string]any{"run_id": "r1"}})
	b.Add(LogEntry{Timestamp: base.Add(time.Minute), Level: "warn", Message: "Attempt failed", Component: "executor", Fields: map[string]any{"run_id": "r1"}})
	b.Add(LogEntry{Timestamp: base.Add(2 * time.Minute), Level: "info", Message: "attempt succeeded", Component: "executor", Fields: map[string]any{"run_id": "r2"}})

	tests := []struct {
		name   string
		params QueryParams
		want   int
	}{
		{"no filter", QueryParams{}, 3},
		{"level", QueryParams{Level: "warn"}, 1},
		{"component", QueryParams{Component: "executor"}, 2},
		{"run", QueryParams{RunID: "r1"}, 2},
		{"search is case insensitive", QueryParams{Search: "attempt"}, 2},
		{"since", QueryParams{Since: base}, 2},
		{"limit keeps newest", QueryParams{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Query(tt.params); len(got) != tt.want {
				t.Errorf("Query() returned %d entries, want %d", len(got), tt.want)
			}
		})
	}

	if got := b.Query(QueryParams{Limit: 1}); got[0].Message != "attempt succeeded" {
		t.Errorf("Limit kept %q, want newest entry", got[0].Message)
	}
}

func TestWriterCapturesZerolog(t *testing.T) {
	b := New(10)
	var out bytes.Buffer
	logger := zerolog.New(NewWriter(b, &out)).With().Timestamp().Logger()

	logger.Info().Str("component", "scheduler").Str("run_id", "abc").Msg("waiting")

	entries := b.GetAll()
	if len(entries) != 1 {
		t.Fatalf("captured %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != "info" || e.Message != "waiting" || e.Component != "scheduler" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Fields["run_id"] != "abc" {
		t.Errorf("run_id field = %v, want abc", e.Fields["run_id"])
	}
	if out.Len() == 0 {
		t.Error("fallback writer received nothing")
	}
}

func TestWriterIgnoresNonJSON(t *testing.T) {
	b := New(10)
	if _, err := NewWriter(b, nil).Write([]byte("plain text\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("buffer captured %d entries from non-JSON input", b.Len())
	}
}
