/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/nightshift/internal/config"
	"github.com/friendsincode/nightshift/internal/logbuffer"
	"github.com/friendsincode/nightshift/internal/logging"
	"github.com/friendsincode/nightshift/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	logBuf = logbuffer.New(2000)
)

var rootCmd = &cobra.Command{
	Use:   "nightshift",
	Short: "nightshift - unattended overnight shift reporting",
	Long:  "nightshift clocks in, files the hourly status reports of a night shift and clocks out on the reporting site, alerting on failures.",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full shift",
	Long:  "Clock in now, file every remaining status report of the shift and clock out in the morning. Always exits 0; problems are logged and notified.",
	RunE:  runShift,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the report slots of the current shift",
	RunE:  runPlan,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and sets up logging (called by commands
// that need it).
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		logger = logging.Setup("production", "info")
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.SetupWithWriter(cfg.Environment, cfg.LogLevel, logbuffer.NewWriter(logBuf, nil))
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}
	return nil
}
