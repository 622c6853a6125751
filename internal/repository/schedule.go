package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mirelabs/companion/internal/database"
	"github.com/mirelabs/companion/internal/models"
)

type ScheduleRepository struct {
	db *database.DB
}

func NewScheduleRepository(db *database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, user_id, bot_id, event_name, description, start_time, end_time, channel,
	 recurrence_rule, preparation_reminder_sent, preparation_reminder_sent_at,
	 event_completed_sent, event_completed_sent_at, followup_sent, followup_sent_at,
	 is_completed, created_at, updated_at`

func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO user_schedules (id, user_id, bot_id, event_name, description, start_time, end_time, channel, recurrence_rule)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		schedule.ID, schedule.UserID, schedule.BotID, schedule.EventName, schedule.Description,
		schedule.StartTime, schedule.EndTime, schedule.Channel, schedule.RecurrenceRule,
	).Scan(&schedule.CreatedAt, &schedule.UpdatedAt)
}

func (r *ScheduleRepository) GetByID(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM user_schedules WHERE id = $1`,
		scheduleID,
	)
	return scanSchedule(row)
}

// ExistsNear reports whether the user already has a non-completed schedule
// whose start falls within the window around start. This is the anti-spam
// dedup guard against re-extracting the same meeting from consecutive
// messages.
func (r *ScheduleRepository) ExistsNear(ctx context.Context, userID uuid.UUID, start time.Time, window time.Duration) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM user_schedules
			WHERE user_id = $1
			AND start_time >= $2 AND start_time <= $3
			AND is_completed = FALSE
		 )`,
		userID, start.Add(-window), start.Add(window),
	).Scan(&exists)
	return exists, err
}

// DueForPreparation returns schedules whose start falls inside the
// reminder window and whose preparation reminder has not gone out.
func (r *ScheduleRepository) DueForPreparation(ctx context.Context, from, to time.Time) ([]*models.Schedule, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM user_schedules
		 WHERE start_time >= $1 AND start_time <= $2
		 AND preparation_reminder_sent = FALSE
		 AND is_completed = FALSE
		 ORDER BY start_time ASC`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// DueForCompletion returns schedules with an explicit end time that has
// passed without a completion message.
func (r *ScheduleRepository) DueForCompletion(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM user_schedules
		 WHERE end_time IS NOT NULL AND end_time <= $1
		 AND event_completed_sent = FALSE
		 AND is_completed = FALSE
		 ORDER BY end_time ASC`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// OpenEndedForFollowup returns the user's open-ended schedules (no end
// time) on the given channel whose nominal start passed at least delay
// ago but within the horizon, most recent first. The follow-up greeting
// references the meeting the user just came out of.
func (r *ScheduleRepository) OpenEndedForFollowup(ctx context.Context, userID uuid.UUID, channel models.Channel, now time.Time, delay, horizon time.Duration) ([]*models.Schedule, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM user_schedules
		 WHERE user_id = $1 AND channel = $2
		 AND end_time IS NULL
		 AND followup_sent = FALSE
		 AND is_completed = FALSE
		 AND start_time <= $3
		 AND start_time > $4
		 ORDER BY start_time DESC`,
		userID, channel, now.Add(-delay), now.Add(-horizon),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// Upcoming returns the user's non-completed schedules starting within the
// next window, soonest first.
func (r *ScheduleRepository) Upcoming(ctx context.Context, userID uuid.UUID, now time.Time, window time.Duration) ([]*models.Schedule, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM user_schedules
		 WHERE user_id = $1
		 AND start_time >= $2 AND start_time <= $3
		 AND is_completed = FALSE
		 ORDER BY start_time ASC`,
		userID, now, now.Add(window),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// ClaimPreparation flips preparation_reminder_sent via a conditional
// update. The returned bool is false when another poller already claimed
// this schedule; a race loser must not send.
func (r *ScheduleRepository) ClaimPreparation(ctx context.Context, scheduleID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE user_schedules
		 SET preparation_reminder_sent = TRUE, preparation_reminder_sent_at = $2, updated_at = $2
		 WHERE id = $1 AND preparation_reminder_sent = FALSE`,
		scheduleID, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleasePreparation undoes a claim after a failed send so the next poll
// retries the reminder.
func (r *ScheduleRepository) ReleasePreparation(ctx context.Context, scheduleID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_schedules
		 SET preparation_reminder_sent = FALSE, preparation_reminder_sent_at = NULL, updated_at = NOW()
		 WHERE id = $1`,
		scheduleID,
	)
	return err
}

// ClaimCompletion flips event_completed_sent and closes the schedule in
// one conditional update.
func (r *ScheduleRepository) ClaimCompletion(ctx context.Context, scheduleID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE user_schedules
		 SET event_completed_sent = TRUE, event_completed_sent_at = $2, is_completed = TRUE, updated_at = $2
		 WHERE id = $1 AND event_completed_sent = FALSE`,
		scheduleID, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ScheduleRepository) ReleaseCompletion(ctx context.Context, scheduleID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_schedules
		 SET event_completed_sent = FALSE, event_completed_sent_at = NULL, is_completed = FALSE, updated_at = NOW()
		 WHERE id = $1`,
		scheduleID,
	)
	return err
}

// ClaimFollowup flips followup_sent and closes the schedule in one
// conditional update.
func (r *ScheduleRepository) ClaimFollowup(ctx context.Context, scheduleID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE user_schedules
		 SET followup_sent = TRUE, followup_sent_at = $2, is_completed = TRUE, updated_at = $2
		 WHERE id = $1 AND followup_sent = FALSE`,
		scheduleID, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ScheduleRepository) ReleaseFollowup(ctx context.Context, scheduleID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_schedules
		 SET followup_sent = FALSE, followup_sent_at = NULL, is_completed = FALSE, updated_at = NOW()
		 WHERE id = $1`,
		scheduleID,
	)
	return err
}

// MarkCompleted closes a schedule on explicit user confirmation.
func (r *ScheduleRepository) MarkCompleted(ctx context.Context, scheduleID, userID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_schedules SET is_completed = TRUE, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2`,
		scheduleID, userID,
	)
	return err
}

type scheduleRow interface {
	Scan(dest ...any) error
}

func scanSchedule(row scheduleRow) (*models.Schedule, error) {
	schedule := &models.Schedule{}
	err := row.Scan(
		&schedule.ID, &schedule.UserID, &schedule.BotID, &schedule.EventName, &schedule.Description,
		&schedule.StartTime, &schedule.EndTime, &schedule.Channel, &schedule.RecurrenceRule,
		&schedule.PreparationReminderSent, &schedule.PreparationReminderSentAt,
		&schedule.EventCompletedSent, &schedule.EventCompletedSentAt,
		&schedule.FollowupSent, &schedule.FollowupSentAt,
		&schedule.IsCompleted, &schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

func scanSchedules(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}
