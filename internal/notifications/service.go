/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/telemetry"
)

// MaxTextLength bounds an outgoing message in runes. It matches the LINE
// text message limit.
const MaxTextLength = 2000

// Gateway delivers best-effort alerts. Send reports whether at least one
// channel accepted the message; failures are logged, never returned.
type Gateway interface {
	Send(ctx context.Context, text string) bool
}

// Channel is one delivery transport.
type Channel interface {
	Name() string
	// Enabled reports whether the channel has the configuration it needs.
	Enabled() bool
	Deliver(ctx context.Context, text string) error
}

// DeliveryError is the NotificationError of the taxonomy. It is only ever
// logged.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Service fans a message out to every enabled channel.
type Service struct {
	channels []Channel
	timeout  time.Duration
	prefix   string
	logger   zerolog.Logger
}

// NewService creates a notification service. Channels that report
// Enabled() == false are skipped silently.
func NewService(channels []Channel, logger zerolog.Logger) *Service {
	return &Service{
		channels: channels,
		timeout:  20 * time.Second,
		logger:   logger.With().Str("component", "notifications").Logger(),
	}
}

// WithPrefix sets a tag prepended to every message, e.g. "[night shift] ".
func (s *Service) WithPrefix(prefix string) *Service {
	s.prefix = prefix
	return s
}

// Send delivers text to all enabled channels. Delivery is detached from
// ctx cancellation so a final alert still goes out during shutdown.
func (s *Service) Send(ctx context.Context, text string) bool {
	text = Truncate(s.prefix+text, MaxTextLength)

	enabled := 0
	delivered := 0
	for _, ch := range s.channels {
		if ch == nil || !ch.Enabled() {
			continue
		}
		enabled++

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		err := ch.Deliver(sendCtx, text)
		cancel()

		if err != nil {
			derr := &DeliveryError{Channel: ch.Name(), Err: err}
			s.logger.Warn().Err(derr).Str("channel", ch.Name()).Msg("notification delivery failed")
			telemetry.NotificationsTotal.WithLabelValues(ch.Name(), "failed").Inc()
			continue
		}
		delivered++
		telemetry.NotificationsTotal.WithLabelValues(ch.Name(), "sent").Inc()
		s.logger.Info().Str("channel", ch.Name()).Msg("notification sent")
	}

	if enabled == 0 {
		s.logger.Debug().Msg("no notification channel configured, skipping")
		return false
	}
	return delivered > 0
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
