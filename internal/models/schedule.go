package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies the messaging surface a conversation happened on.
// Proactive messages for a schedule always go back out on the channel the
// meeting was mentioned on.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelTelegram Channel = "telegram"
)

func (c Channel) Valid() bool {
	return c == ChannelWeb || c == ChannelTelegram
}

// NotificationState is the conceptual lifecycle of a schedule's proactive
// notifications. It is derived from the persisted booleans, never stored.
type NotificationState string

const (
	StatePending   NotificationState = "pending"
	StatePrepSent  NotificationState = "prep_sent"
	StateCompleted NotificationState = "completed"
)

// Schedule is a meeting or event a user mentioned in conversation.
// start_time/end_time are stored in UTC; all sent-flags only ever
// transition false -> true.
type Schedule struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	BotID       *uuid.UUID `json:"bot_id"`
	EventName   string     `json:"event_name"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Channel     Channel    `json:"channel"`

	// RFC 5545 RRULE for recurring mentions ("standup every Monday");
	// empty for one-off meetings.
	RecurrenceRule string `json:"recurrence_rule"`

	PreparationReminderSent   bool       `json:"preparation_reminder_sent"`
	PreparationReminderSentAt *time.Time `json:"preparation_reminder_sent_at"`
	EventCompletedSent        bool       `json:"event_completed_sent"`
	EventCompletedSentAt      *time.Time `json:"event_completed_sent_at"`
	FollowupSent              bool       `json:"followup_sent"`
	FollowupSentAt            *time.Time `json:"followup_sent_at"`

	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsRecurring returns true if this schedule has a recurrence rule.
func (s *Schedule) IsRecurring() bool {
	return s.RecurrenceRule != ""
}

// HasEndTime reports whether the mention carried an explicit end or
// duration. Schedules without one take the reactive follow-up path
// instead of the completion path.
func (s *Schedule) HasEndTime() bool {
	return s.EndTime != nil
}

// State collapses the persisted flags into the conceptual lifecycle:
// pending -> prep_sent -> completed. Completion and follow-up are mutually
// exclusive terminal transitions, decided by end-time presence.
func (s *Schedule) State() NotificationState {
	if s.IsCompleted || s.EventCompletedSent || s.FollowupSent {
		return StateCompleted
	}
	if s.PreparationReminderSent {
		return StatePrepSent
	}
	return StatePending
}
