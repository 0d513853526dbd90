/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"fmt"
	"time"
)

// Shift layout. Hour labels past 23 belong to the calendar day after the
// anchor date (label 26 is 02:xx the next morning).
const (
	FirstHour        = 23
	LastHour         = 30
	SlotCount        = LastHour - FirstHour + 1
	AnchorCutoffHour = 7
)

// Slot is one scheduled report target.
type Slot struct {
	Hour int       `json:"hour"`
	At   time.Time `json:"at"`
}

// String formats the slot as "23h@2026-10-17T23:20:00+09:00".
func (s Slot) String() string {
	return fmt.Sprintf("%dh@%s", s.Hour, s.At.Format(time.RFC3339))
}

// AnchorDate returns the calendar date the shift started on: yesterday
// when now is in the early morning, today otherwise. The result is
// midnight in now's location.
func AnchorDate(now time.Time) time.Time {
	y, m, d := now.Date()
	anchor := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if now.Hour() < AnchorCutoffHour {
		anchor = anchor.AddDate(0, 0, -1)
	}
	return anchor
}

// NightSlots computes the eight report targets of the shift containing now.
// It is pure: the same inputs always produce the same slots.
func NightSlots(now time.Time, targetMinute int) []Slot {
	anchor := AnchorDate(now)
	slots := make([]Slot, 0, SlotCount)
	for label := FirstHour; label <= LastHour; label++ {
		day, hour := anchor, label
		if label >= 24 {
			day, hour = anchor.AddDate(0, 0, 1), label-24
		}
		y, m, d := day.Date()
		slots = append(slots, Slot{
			Hour: label,
			At:   time.Date(y, m, d, hour, targetMinute, 0, 0, now.Location()),
		})
	}
	return slots
}

// DisplayHour is the shift-relative hour label for t (03:10 reads as 27).
func DisplayHour(t time.Time) int {
	if t.Hour() < AnchorCutoffHour {
		return t.Hour() + 24
	}
	return t.Hour()
}
