package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionType classifies one proactive outbound interaction.
type SessionType string

const (
	SessionMeetingPrepReminder     SessionType = "meeting_prep_reminder"
	SessionMeetingCompletion       SessionType = "meeting_completion"
	SessionMeetingFollowupGreeting SessionType = "meeting_followup_greeting"
	SessionMorningGreeting         SessionType = "morning_greeting"
	SessionAfternoonGreeting       SessionType = "afternoon_greeting"
	SessionEveningGreeting         SessionType = "evening_greeting"
	SessionNightGreeting           SessionType = "night_greeting"
)

// ProactiveSession records one proactive message actually sent. Rows are
// created exactly once per successful send and are immutable afterwards,
// except acknowledged_at which a later user reply may set. Greeting rows
// are inserted before the send as the uniqueness claim; a failed send
// deletes the row again.
type ProactiveSession struct {
	ID             uuid.UUID   `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	BotID          *uuid.UUID  `json:"bot_id"`
	SessionType    SessionType `json:"session_type"`
	ReferenceID    *uuid.UUID  `json:"reference_id"`
	MessageContent string      `json:"message_content"`
	Channel        Channel     `json:"channel"`
	SentAt         time.Time   `json:"sent_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at"`
	// DedupKey, when set, enforces at-most-one row per key. The greeting
	// path keys on user, greeting type and local calendar day.
	DedupKey  string    `json:"dedup_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GreetingDedupKey builds the uniqueness key that caps one greeting of a
// given type per user per local calendar day.
func GreetingDedupKey(userID uuid.UUID, sessionType SessionType, localDay time.Time) string {
	return userID.String() + ":" + string(sessionType) + ":" + localDay.Format("2006-01-02")
}
