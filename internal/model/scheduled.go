package model

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledOrder is a deferred, possibly recurring order definition executed
// by the timer-driven executor rather than a live signal. Created and edited
// by the management surface; consumed under a per-account lock so two
// executor instances never process the same account's schedule concurrently.
type ScheduledOrder struct {
	ID           uuid.UUID      `json:"id"`
	AccountAlias string         `json:"account_alias"`
	Ticker       string         `json:"ticker"`
	Exchange     string         `json:"exchange"`
	Currency     Currency       `json:"currency"`
	Action       Action         `json:"action"`
	Qty          int64          `json:"qty,omitempty"`           // explicit quantity; 0 means size from TargetAmount
	TargetAmount float64        `json:"target_amount,omitempty"` // sized at execution time when Qty == 0
	ScheduledAt  time.Time      `json:"scheduled_at"`            // next execution instant, UTC
	Recurring    bool           `json:"recurring"`
	Days         []time.Weekday `json:"days,omitempty"` // recurrence pattern; empty with Recurring=false is one-shot
	LastExecuted time.Time      `json:"last_executed,omitempty"`
	Active       bool           `json:"active"`
}

// Due reports whether the order should execute at now: it must be active,
// its scheduled instant reached, and (when recurring) not already executed
// in the current recurrence window.
func (so *ScheduledOrder) Due(now time.Time) bool {
	if !so.Active || so.ScheduledAt.IsZero() || now.Before(so.ScheduledAt) {
		return false
	}
	if so.Recurring && !so.LastExecuted.Before(so.ScheduledAt) {
		return false
	}
	return true
}

// NextOccurrence returns the next instant after `after` that falls on one of
// the configured weekdays at the same UTC time-of-day as ScheduledAt.
// Returns the zero time when no recurrence days are configured.
func (so *ScheduledOrder) NextOccurrence(after time.Time) time.Time {
	if len(so.Days) == 0 {
		return time.Time{}
	}
	h, m, s := so.ScheduledAt.Clock()
	day := after.UTC().Truncate(24 * time.Hour)
	for i := 0; i < 14; i++ {
		d := day.AddDate(0, 0, i)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, time.UTC)
		if !candidate.After(after) {
			continue
		}
		for _, wd := range so.Days {
			if candidate.Weekday() == wd {
				return candidate
			}
		}
	}
	return time.Time{}
}
