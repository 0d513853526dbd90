/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookPayload is the JSON body posted to a webhook endpoint.
type WebhookPayload struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// WebhookChannel posts alerts to an arbitrary HTTP endpoint, signed with
// HMAC-SHA256 when a secret is set.
type WebhookChannel struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel, disabled without a URL.
func NewWebhookChannel(url, secret string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Enabled() bool { return c.url != "" }

func (c *WebhookChannel) Deliver(ctx context.Context, text string) error {
	body, err := json.Marshal(WebhookPayload{
		ID:        uuid.NewString(),
		Event:     "alert",
		Timestamp: time.Now().UTC(),
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Nightshift-Webhook/1.0")
	req.Header.Set("X-Nightshift-Event", "alert")
	req.Header.Set("X-Nightshift-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))

	// Add HMAC signature if secret is configured
	if c.secret != "" {
		req.Header.Set("X-Nightshift-Signature", signPayload(body, c.secret))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// signPayload creates an HMAC-SHA256 signature.
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
