/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailChannel sends alerts as plain-text mail.
type EmailChannel struct {
	config   EmailConfig
	sendMail func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates an SMTP channel. It is disabled without a host,
// sender and at least one recipient.
func NewEmailChannel(config EmailConfig) *EmailChannel {
	return &EmailChannel{config: config, sendMail: sendMailContext}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Enabled() bool {
	return c.config.Host != "" && c.config.From != "" && len(c.config.To) > 0
}

func (c *EmailChannel) Deliver(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := text
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}
	subject = Truncate(subject, 120)

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", c.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(c.config.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(text)

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	var auth smtp.Auth
	if c.config.Username != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	if err := c.sendMail(ctx, addr, auth, c.config.From, c.config.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("SMTP send failed: %w", err)
	}
	return nil
}

// sendMailContext is smtp.SendMail bounded by ctx: the dial honours it and
// the connection deadline follows its deadline or cancellation.
func sendMailContext(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
