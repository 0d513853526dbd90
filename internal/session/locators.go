/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import (
	"fmt"
	"strings"

	"github.com/friendsincode/nightshift/internal/models"
)

// Locators names the page elements of the reporting site.
type Locators struct {
	StaffIDField  string // CSS
	PasswordField string // CSS
	LoginButton   string // CSS
	DecideButton  string // XPath
	ClockIn       string // XPath
	ClockOut      string // XPath
	StatusReport  string // XPath
	ConfirmButton string // XPath
	SubmitButton  string // XPath
	DoneMarker    string // XPath
}

// DefaultLocators matches the ADAMS staff reporting pages.
func DefaultLocators() Locators {
	return Locators{
		StaffIDField:  "input[name='staff_id']",
		PasswordField: "input[name='password']",
		LoginButton:   "[name='send']",
		DecideButton:  "//input[@value='決定']",
		ClockIn:       "//input[@value='出勤']",
		ClockOut:      "//input[@value='退勤']",
		StatusReport:  "//input[contains(@value,'勤務状況報告')]",
		ConfirmButton: "//input[@value='内容確認']",
		SubmitButton:  "//input[@value='報告']",
		DoneMarker:    "//a[@href='/adams/logout.php' and text()='終了する']",
	}
}

// Control returns the XPath of the control that starts mode.
func (l Locators) Control(mode models.Mode) (string, error) {
	switch mode {
	case models.ModeClockIn:
		return l.ClockIn, nil
	case models.ModeClockOut:
		return l.ClockOut, nil
	case models.ModeStatusReport:
		return l.StatusReport, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// TenantSelect returns the XPath of the <select> offering an option whose
// text contains label.
func TenantSelect(label string) string {
	return fmt.Sprintf("//select[option[contains(normalize-space(.), %s)]]", xpathLiteral(label))
}

// xpathLiteral quotes s for use inside an XPath expression, falling back to
// concat() when s contains both quote characters.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
