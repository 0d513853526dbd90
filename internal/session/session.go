/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package session drives the remote reporting site. Everything that knows
// about page structure lives here; callers only speak in modes.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/nightshift/internal/models"
)

// Credentials authenticate one login.
type Credentials struct {
	StaffID  string
	Password string
}

// Driver opens fresh sessions. stepTimeout bounds each operation of the
// returned session, including every wait for a page or element inside it.
type Driver interface {
	Open(ctx context.Context, stepTimeout time.Duration) (Session, error)
}

// Session is one authenticated interactive connection, owned by a single
// attempt.
type Session interface {
	NavigateAndLogin(ctx context.Context, url string, creds Credentials) error
	SelectTenant(ctx context.Context, label string) error
	ClickControl(ctx context.Context, mode models.Mode) error
	ConfirmAndSubmit(ctx context.Context) error

	// MarkerPresent reports whether the post-submission marker is on the
	// page right now. It does not wait.
	MarkerPresent(ctx context.Context) (bool, error)

	// Close releases the session. It is idempotent and never fails.
	Close()
}

// Screenshotter is implemented by sessions that can capture the page.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// ErrUnknownMode is returned by ClickControl for modes without a control.
var ErrUnknownMode = errors.New("unknown action mode")

// Error is the SessionError of the executor's taxonomy: any failure while
// launching, navigating, interacting or submitting.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap returns nil for a nil err, otherwise an *Error for op.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}
