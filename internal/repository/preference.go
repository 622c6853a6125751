package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mirelabs/companion/internal/database"
	"github.com/mirelabs/companion/internal/models"
)

type PreferenceRepository struct {
	db *database.DB
}

func NewPreferenceRepository(db *database.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// GetByUserID returns the user's greeting preference, falling back to the
// defaults when no row exists. The subsystem never writes this table.
func (r *PreferenceRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.GreetingPreference, error) {
	pref := &models.GreetingPreference{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT user_id, prefer_proactive, preferred_greeting_time, dnd_start_hour, dnd_end_hour,
		        max_proactive_per_day, updated_at
		 FROM greeting_preferences WHERE user_id = $1`,
		userID,
	).Scan(
		&pref.UserID, &pref.PreferProactive, &pref.PreferredGreetingTime,
		&pref.DndStartHour, &pref.DndEndHour, &pref.MaxProactivePerDay, &pref.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultGreetingPreference(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return pref, nil
}
