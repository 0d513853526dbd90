/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/models"
)

// RodOptions configures the headless browser behind each session.
type RodOptions struct {
	Bin        string // browser binary; empty lets rod locate or download one
	Headless   bool
	WindowSize string // "1200,900"
	Locators   Locators
}

// RodDriver launches a dedicated Chromium process per session so no state
// survives between attempts.
type RodDriver struct {
	opts   RodOptions
	logger zerolog.Logger
}

// NewRodDriver creates a go-rod backed Driver.
func NewRodDriver(opts RodOptions, logger zerolog.Logger) *RodDriver {
	if opts.WindowSize == "" {
		opts.WindowSize = "1200,900"
	}
	if opts.Locators == (Locators{}) {
		opts.Locators = DefaultLocators()
	}
	return &RodDriver{
		opts:   opts,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Open launches a browser, connects to it and opens a blank page. The
// browser lives as long as ctx or until Close, whichever comes first.
func (d *RodDriver) Open(ctx context.Context, stepTimeout time.Duration) (Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(d.opts.Headless).
		NoSandbox(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("disable-software-rasterizer").
		Set("window-size", d.opts.WindowSize)
	if d.opts.Bin != "" {
		l = l.Bin(d.opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, wrap("launch", err)
	}

	s := &rodSession{
		launcher:    l,
		stepTimeout: stepTimeout,
		locators:    d.opts.Locators,
		logger:      d.logger,
	}

	s.browser = rod.New().Context(ctx).ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		s.Close()
		return nil, wrap("connect", err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, wrap("open page", err)
	}
	s.page = page

	d.logger.Debug().Str("control_url", controlURL).Msg("browser session opened")
	return s, nil
}

type rodSession struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	page        *rod.Page
	stepTimeout time.Duration
	locators    Locators
	logger      zerolog.Logger
	closeOnce   sync.Once
}

// step runs fn against the page bound to a context limited by the step
// timeout.
func (s *rodSession) step(ctx context.Context, op string, fn func(p *rod.Page) error) error {
	if s.page == nil {
		return &Error{Op: op, Err: fmt.Errorf("no page")}
	}
	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()
	return wrap(op, fn(s.page.Context(stepCtx)))
}

func clickX(p *rod.Page, xpath string) error {
	el, err := p.ElementX(xpath)
	if err != nil {
		return fmt.Errorf("find %s: %w", xpath, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", xpath, err)
	}
	return nil
}

func (s *rodSession) NavigateAndLogin(ctx context.Context, url string, creds Credentials) error {
	return s.step(ctx, "login", func(p *rod.Page) error {
		if err := p.Navigate(url); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		if err := p.WaitLoad(); err != nil {
			return fmt.Errorf("wait load: %w", err)
		}
		s.logger.Debug().Str("url", url).Msg("login page loaded")

		staff, err := p.Element(s.locators.StaffIDField)
		if err != nil {
			return fmt.Errorf("find staff id field: %w", err)
		}
		if err := staff.Input(creds.StaffID); err != nil {
			return fmt.Errorf("input staff id: %w", err)
		}
		pw, err := p.Element(s.locators.PasswordField)
		if err != nil {
			return fmt.Errorf("find password field: %w", err)
		}
		if err := pw.Input(creds.Password); err != nil {
			return fmt.Errorf("input password: %w", err)
		}
		btn, err := p.Element(s.locators.LoginButton)
		if err != nil {
			return fmt.Errorf("find login button: %w", err)
		}
		return btn.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (s *rodSession) SelectTenant(ctx context.Context, label string) error {
	return s.step(ctx, "select tenant", func(p *rod.Page) error {
		sel, err := p.ElementX(TenantSelect(label))
		if err != nil {
			return fmt.Errorf("find tenant %q: %w", label, err)
		}
		if err := sel.Select([]string{label}, true, rod.SelectorTypeText); err != nil {
			return fmt.Errorf("select tenant %q: %w", label, err)
		}
		return clickX(p, s.locators.DecideButton)
	})
}

func (s *rodSession) ClickControl(ctx context.Context, mode models.Mode) error {
	xpath, err := s.locators.Control(mode)
	if err != nil {
		return wrap("click control", err)
	}
	return s.step(ctx, "click control", func(p *rod.Page) error {
		return clickX(p, xpath)
	})
}

func (s *rodSession) ConfirmAndSubmit(ctx context.Context) error {
	return s.step(ctx, "confirm and submit", func(p *rod.Page) error {
		if err := clickX(p, s.locators.ConfirmButton); err != nil {
			return err
		}
		return clickX(p, s.locators.SubmitButton)
	})
}

func (s *rodSession) MarkerPresent(ctx context.Context) (bool, error) {
	var found bool
	err := s.step(ctx, "check marker", func(p *rod.Page) error {
		has, _, err := p.HasX(s.locators.DoneMarker)
		found = has
		return err
	})
	return found, err
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.step(ctx, "screenshot", func(p *rod.Page) error {
		var err error
		data, err = p.Screenshot(true, nil)
		return err
	})
	return data, err
}

// Close tears down the browser process and its profile directory.
func (s *rodSession) Close() {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				s.logger.Debug().Err(err).Msg("browser close failed, killing process")
			}
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
	})
}
