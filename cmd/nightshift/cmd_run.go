/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/nightshift/internal/clock"
	"github.com/friendsincode/nightshift/internal/config"
	"github.com/friendsincode/nightshift/internal/executor"
	"github.com/friendsincode/nightshift/internal/journal"
	"github.com/friendsincode/nightshift/internal/notifications"
	"github.com/friendsincode/nightshift/internal/runlock"
	"github.com/friendsincode/nightshift/internal/scheduler"
	"github.com/friendsincode/nightshift/internal/server"
	"github.com/friendsincode/nightshift/internal/session"
	"github.com/friendsincode/nightshift/internal/shift"
	"github.com/friendsincode/nightshift/internal/storage"
	"github.com/friendsincode/nightshift/internal/telemetry"
	"github.com/friendsincode/nightshift/internal/version"
)

// runShift never returns an error: the scheduler that starts this command
// must see exit code 0 whatever happens.
func runShift(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loadConfig(); err != nil {
		logger.Error().Err(err).Msg("configuration could not be loaded")
		return nil
	}

	runID := uuid.NewString()
	logger = logger.With().Str("run_id", runID).Logger()

	notifier, closeNotifier := buildNotifier(cfg)
	defer closeNotifier()

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		notifier.Send(ctx, fmt.Sprintf("設定エラー\n%v", err))
		return nil
	}
	loc, _ := cfg.Location()

	logger.Info().Str("version", version.Version).Str("timezone", loc.String()).Msg("nightshift starting")

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "nightshift",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	var lock *runlock.Lock
	if cfg.LockEnabled {
		lock, err = runlock.New(runlock.Config{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			TTL:           cfg.LockTTL,
			Owner:         runID,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("run lock unavailable")
			notifier.Send(ctx, fmt.Sprintf("ロック取得失敗\n%v", err))
			return nil
		}
		if err := lock.Acquire(ctx); err != nil {
			if errors.Is(err, runlock.ErrHeld) {
				logger.Warn().Err(err).Msg("another shift run is active, exiting")
			} else {
				logger.Error().Err(err).Msg("failed to acquire run lock")
				notifier.Send(ctx, fmt.Sprintf("ロック取得失敗\n%v", err))
			}
			_ = lock.Release(context.Background())
			return nil
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Error().Err(err).Msg("failed to release run lock")
			}
		}()

		// Another host may report once the lease is gone, so stop ours.
		var cancelRun context.CancelFunc
		ctx, cancelRun = context.WithCancel(ctx)
		defer cancelRun()
		go func(lost <-chan struct{}) {
			select {
			case <-lost:
				logger.Error().Msg("run lock lost, stopping shift")
				cancelRun()
			case <-ctx.Done():
			}
		}(lock.Lost())
	}

	clk := clock.NewReal(loc)
	opts := buildExecutorOptions(ctx, cfg)
	var jr *journal.Journal
	if db, err := journalDB(cfg); err != nil {
		logger.Warn().Err(err).Msg("action journal disabled")
	} else if db != nil {
		defer func() { _ = journal.Close(db) }()
		jr = journal.New(db, logger)
		opts = append(opts, executor.WithJournal(jr))
	}

	driver := session.NewRodDriver(session.RodOptions{
		Bin:        cfg.BrowserBin,
		Headless:   cfg.Headless,
		WindowSize: "1200,900",
		Locators:   session.DefaultLocators(),
	}, logger)

	exec := executor.New(driver, notifier, clk, executor.Config{
		RunID:        runID,
		LoginURL:     cfg.LoginURL,
		Credentials:  session.Credentials{StaffID: cfg.StaffID, Password: cfg.Password},
		TenantText:   cfg.TenantText,
		MaxAttempts:  cfg.MaxRetries,
		StepTimeout:  cfg.StepTimeout,
		Backoff:      cfg.RetryBackoff,
		PollInterval: cfg.MarkerPollInterval,
	}, logger, opts...)

	sched := scheduler.New(clk, scheduler.Config{
		ToleranceMinutes:     cfg.ToleranceMinutes,
		ClockOutHour:         cfg.ClockOutHour,
		ClockOutMinute:       cfg.ClockOutMinute,
		ClockOutRolloverHour: cfg.ClockOutRolloverHour,
	}, logger)

	runner := shift.New(runID, clk, sched, exec, notifier, cfg.TargetMinute, logger)

	if cfg.StatusBind != "" {
		var srvOpts []server.Option
		if lock != nil {
			srvOpts = append(srvOpts, server.WithLockStatus(lock.Held))
		}
		if jr != nil {
			srvOpts = append(srvOpts, server.WithAttempts(jr))
		}
		srv := server.New(cfg.StatusBind, runner, logBuf, logger, srvOpts...)
		srv.Start()
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("status server shutdown failed")
			}
		}()
	}

	result := runner.Run(ctx)
	event := logger.Info().
		Str("status", string(result.Status)).
		Int("failures", result.Failures())
	if jr != nil {
		counts, err := jr.CountByOutcome(context.Background(), runID)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to summarise attempt journal")
		}
		for outcome, n := range counts {
			event = event.Int("attempts_"+string(outcome), n)
		}
	}
	event.Msg("nightshift finished")
	return nil
}

// buildNotifier wires every configured channel. The returned func closes
// connections.
func buildNotifier(cfg *config.Config) (*notifications.Service, func()) {
	channels := []notifications.Channel{
		notifications.NewLINEChannel(cfg.LINEChannelAccessToken, cfg.LINEUserID, cfg.LINEEndpoint),
		notifications.NewEmailChannel(notifications.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.SMTPRecipients(),
		}),
		notifications.NewWebhookChannel(cfg.WebhookURL, cfg.WebhookSecret),
	}

	var natsCh *notifications.NATSChannel
	if cfg.NATSURL != "" {
		host, _ := os.Hostname()
		ch, err := notifications.NewNATSChannel(cfg.NATSURL, cfg.NATSSubject, host)
		if err != nil {
			logger.Warn().Err(err).Msg("NATS notifications disabled")
		} else {
			natsCh = ch
			channels = append(channels, ch)
		}
	}

	svc := notifications.NewService(channels, logger).WithPrefix("【夜勤】")
	return svc, func() {
		if err := natsCh.Close(); err != nil {
			logger.Debug().Err(err).Msg("nats drain failed")
		}
	}
}

// buildExecutorOptions selects the evidence store: S3 when a bucket is
// set, otherwise a local directory.
func buildExecutorOptions(ctx context.Context, cfg *config.Config) []executor.Option {
	var opts []executor.Option

	switch {
	case cfg.S3Bucket != "":
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			Prefix:          cfg.S3Prefix,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("S3 evidence store disabled")
			break
		}
		opts = append(opts, executor.WithEvidence(store))
	case cfg.EvidenceDir != "":
		store, err := storage.NewFilesystemStore(cfg.EvidenceDir)
		if err != nil {
			logger.Warn().Err(err).Msg("evidence store disabled")
			break
		}
		opts = append(opts, executor.WithEvidence(store))
	}
	return opts
}

// journalDB opens the journal when a DSN is configured; nil means off.
func journalDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DBDSN == "" {
		return nil, nil
	}
	return journal.Connect(cfg)
}
