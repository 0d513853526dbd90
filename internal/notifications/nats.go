/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSChannel publishes alerts to a subject for other systems to relay.
type NATSChannel struct {
	conn    *nats.Conn
	subject string
	source  string
}

type natsAlert struct {
	MessageID string    `json:"message_id"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNATSChannel connects to url. source identifies this process in the
// published payload.
func NewNATSChannel(url, subject, source string) (*NATSChannel, error) {
	conn, err := nats.Connect(url,
		nats.Name("nightshift"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSChannel{conn: conn, subject: subject, source: source}, nil
}

func (c *NATSChannel) Name() string { return "nats" }

func (c *NATSChannel) Enabled() bool {
	return c != nil && c.conn != nil && c.subject != ""
}

// Deliver publishes and flushes so an error surfaces before returning.
func (c *NATSChannel) Deliver(ctx context.Context, text string) error {
	data, err := json.Marshal(natsAlert{
		MessageID: uuid.NewString(),
		Source:    c.source,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := c.conn.Publish(c.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", c.subject, err)
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close drains the connection.
func (c *NATSChannel) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}
