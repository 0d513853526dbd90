/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package runlock keeps two shift runs from overlapping across hosts.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/telemetry"
)

const (
	// Default lock key in Redis
	defaultKey = "nightshift:lock:run"

	// Default lease; the holder renews at a third of it
	defaultTTL = 30 * time.Second
)

// ErrHeld is returned by Acquire when another owner holds the lock.
var ErrHeld = errors.New("run lock held by another owner")

// Config configures the lock.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Key is the Redis key guarding the run
	Key string

	// TTL is how long the lease survives without renewal
	TTL time.Duration

	// Owner uniquely identifies this process
	Owner string
}

func (c *Config) applyDefaults() {
	if c.Key == "" {
		c.Key = defaultKey
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.Owner == "" {
		c.Owner = uuid.New().String()
	}
}

// Lock is a Redis lease renewed in the background while held.
type Lock struct {
	client *redis.Client
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	held   bool
	lost   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New connects to Redis.
func New(cfg Config, logger zerolog.Logger) (*Lock, error) {
	cfg.applyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().
		Str("redis_addr", cfg.RedisAddr).
		Str("owner", cfg.Owner).
		Msg("connected to Redis for run lock")

	return &Lock{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "runlock").Logger(),
	}, nil
}

// Acquire takes the lease or fails with ErrHeld. While held, the lease is
// renewed until Release.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.cfg.Key, l.cfg.Owner, l.cfg.TTL).Result()
	if err != nil {
		return fmt.Errorf("set lock: %w", err)
	}
	if !ok {
		holder, err := l.client.Get(ctx, l.cfg.Key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get lock holder: %w", err)
		}
		return fmt.Errorf("%w: %s", ErrHeld, holder)
	}

	renewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.mu.Lock()
	l.held = true
	l.lost = make(chan struct{})
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	telemetry.RunLockHeld.Set(1)
	l.logger.Info().Str("key", l.cfg.Key).Dur("ttl", l.cfg.TTL).Msg("run lock acquired")

	go l.renewLoop(renewCtx, done)
	return nil
}

// Held reports whether this process still owns the lease.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Lost is closed when renewal finds the lease gone or taken over. It is
// nil before the first Acquire.
func (l *Lock) Lost() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

func (l *Lock) renewLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.renew(ctx); err != nil {
				l.logger.Warn().Err(err).Msg("failed to renew run lock")
			}
		}
	}
}

// renew extends the lease if we still own it.
func (l *Lock) renew(ctx context.Context) error {
	owner, err := l.client.Get(ctx, l.cfg.Key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && owner != l.cfg.Owner) {
		l.markLost()
		return fmt.Errorf("lease lost to %q", owner)
	}
	if err != nil {
		return fmt.Errorf("get lock: %w", err)
	}
	if err := l.client.PExpire(ctx, l.cfg.Key, l.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("renew lock: %w", err)
	}
	return nil
}

func (l *Lock) markLost() {
	l.mu.Lock()
	wasHeld := l.held
	l.held = false
	lost := l.lost
	l.mu.Unlock()
	if wasHeld {
		close(lost)
		telemetry.RunLockHeld.Set(0)
		l.logger.Error().Msg("run lock lost")
	}
}

// Release stops renewal, deletes the key if still ours and closes the
// Redis client.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var releaseErr error
	if l.Held() {
		// Only delete if we still own it
		script := `
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			else
				return 0
			end
		`
		if err := l.client.Eval(ctx, script, []string{l.cfg.Key}, l.cfg.Owner).Err(); err != nil {
			releaseErr = fmt.Errorf("release lock: %w", err)
		} else {
			l.logger.Info().Msg("run lock released")
		}
		l.markReleased()
	}

	if err := l.client.Close(); err != nil && releaseErr == nil {
		releaseErr = err
	}
	return releaseErr
}

func (l *Lock) markReleased() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	telemetry.RunLockHeld.Set(0)
}
