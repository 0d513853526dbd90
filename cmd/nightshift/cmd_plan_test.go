package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/nightshift/internal/config"
)

func TestPrintPlan(t *testing.T) {
	cfg := config.Defaults()
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	if err := printPlan(&buf, cfg, now); err != nil {
		t.Fatalf("printPlan() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"2026-03-01 23:20",
		"2026-03-02 06:20",
		"<- next (in 1h20m0s)",
		"clock-out target: 2026-03-02 09:05",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintPlanAfterShift(t *testing.T) {
	cfg := config.Defaults()
	// 06:59:30 is past the last window, which closes at 06:59:00
	now := time.Date(2026, 3, 2, 6, 59, 30, 0, time.UTC)

	var buf bytes.Buffer
	if err := printPlan(&buf, cfg, now); err != nil {
		t.Fatalf("printPlan() error = %v", err)
	}
	if !strings.Contains(buf.String(), "no slot left") {
		t.Fatalf("expected no-slot notice:\n%s", buf.String())
	}
}
