/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/nightshift/internal/clock"
	"github.com/friendsincode/nightshift/internal/config"
	"github.com/friendsincode/nightshift/internal/scheduler"
)

func runPlan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	return printPlan(cmd.OutOrStdout(), cfg, time.Now().In(loc))
}

// printPlan writes the slots of the shift containing now, marking the one
// a run started now would report first.
func printPlan(w io.Writer, cfg *config.Config, now time.Time) error {
	slots := clock.NightSlots(now, cfg.TargetMinute)
	idx, wait, err := scheduler.ResolveDue(now, slots, cfg.Tolerance())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "HOUR\tTARGET\tWINDOW\t\n")
	for i, s := range slots {
		mark := ""
		if err == nil && i == idx {
			if wait > 0 {
				mark = fmt.Sprintf("<- next (in %s)", wait.Round(time.Second))
			} else {
				mark = "<- due now"
			}
		}
		from := s.At.Add(-cfg.Tolerance()).Format("15:04")
		fmt.Fprintf(tw, "%d\t%s\t%s-%02d:59\t%s\n", s.Hour, s.At.Format("2006-01-02 15:04"), from, s.At.Hour(), mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if err != nil {
		fmt.Fprintf(w, "\nno slot left in this shift: %v\n", err)
	}
	out := scheduler.ClockOutTarget(now, cfg.ClockOutHour, cfg.ClockOutMinute, cfg.ClockOutRolloverHour)
	fmt.Fprintf(w, "\nclock-out target: %s (±%d min)\n", out.Format("2006-01-02 15:04"), cfg.ToleranceMinutes)
	return nil
}
