package models

import (
	"time"

	"github.com/google/uuid"
)

// GreetingTime is the user's stated preference for when they like to be
// greeted. Informational only; the gate does not enforce it.
type GreetingTime string

const (
	GreetingMorning   GreetingTime = "morning"
	GreetingAfternoon GreetingTime = "afternoon"
	GreetingEvening   GreetingTime = "evening"
)

// GreetingPreference is the per-user proactive messaging policy. One row
// per user, created with defaults at user creation; read-only to this
// subsystem.
type GreetingPreference struct {
	UserID                uuid.UUID    `json:"user_id"`
	PreferProactive       bool         `json:"prefer_proactive"`
	PreferredGreetingTime GreetingTime `json:"preferred_greeting_time"`
	DndStartHour          *int         `json:"dnd_start_hour"`
	DndEndHour            *int         `json:"dnd_end_hour"`
	MaxProactivePerDay    int          `json:"max_proactive_per_day"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// DefaultGreetingPreference is the policy applied when a user has no row:
// proactive on, quiet from 22:00 to 06:00, at most 3 messages a day.
func DefaultGreetingPreference(userID uuid.UUID) *GreetingPreference {
	start, end := 22, 6
	return &GreetingPreference{
		UserID:                userID,
		PreferProactive:       true,
		PreferredGreetingTime: GreetingMorning,
		DndStartHour:          &start,
		DndEndHour:            &end,
		MaxProactivePerDay:    3,
	}
}

// InQuietHours reports whether the local hour falls in [dnd_start, dnd_end).
// A window with start > end wraps past midnight. Malformed hours (outside
// 0-23) disable the window rather than erroring; the gate is best effort.
func (p *GreetingPreference) InQuietHours(localHour int) bool {
	if p.DndStartHour == nil || p.DndEndHour == nil {
		return false
	}
	start, end := *p.DndStartHour, *p.DndEndHour
	if start < 0 || start > 23 || end < 0 || end > 23 {
		return false
	}
	if start > end {
		// Window spans midnight, e.g. 22 -> 6
		return localHour >= start || localHour < end
	}
	return localHour >= start && localHour < end
}
