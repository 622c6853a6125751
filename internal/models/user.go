package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Timezone     string     `json:"timezone"`
	TelegramID   *int64     `json:"telegram_id"`
	LastActiveAt *time.Time `json:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Location resolves the user's stored timezone, falling back to UTC when
// the name is missing or invalid.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ActiveWithin reports whether the user sent a message within d of now.
func (u *User) ActiveWithin(now time.Time, d time.Duration) bool {
	if u.LastActiveAt == nil {
		return false
	}
	return now.Sub(*u.LastActiveAt) < d
}
