/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultLINEEndpoint is the LINE Messaging API push endpoint.
const DefaultLINEEndpoint = "https://api.line.me/v2/bot/message/push"

// LINEChannel pushes text messages to one LINE user.
type LINEChannel struct {
	token    string
	userID   string
	endpoint string
	client   *http.Client
}

// NewLINEChannel creates a LINE push channel. It is disabled unless both
// token and userID are set.
func NewLINEChannel(token, userID, endpoint string) *LINEChannel {
	if endpoint == "" {
		endpoint = DefaultLINEEndpoint
	}
	return &LINEChannel{
		token:    token,
		userID:   userID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *LINEChannel) Name() string { return "line" }

func (c *LINEChannel) Enabled() bool {
	return c.token != "" && c.userID != ""
}

// Deliver posts one text message. Any non-2xx status is an error carrying
// the response body.
func (c *LINEChannel) Deliver(ctx context.Context, text string) error {
	body, err := json.Marshal(linePushRequest{
		To:       c.userID,
		Messages: []lineMessage{{Type: "text", Text: Truncate(text, MaxTextLength)}},
	})
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("push status=%d body=%s", resp.StatusCode, respBody)
	}
	return nil
}
