package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mirelabs/companion/internal/database"
	"github.com/mirelabs/companion/internal/models"
)

type BotSettingsRepository struct {
	db *database.DB
}

func NewBotSettingsRepository(db *database.DB) *BotSettingsRepository {
	return &BotSettingsRepository{db: db}
}

// GetPrimaryForUser returns the user's primary active bot, falling back
// to any active one. Returns nil without error when the user has none.
func (r *BotSettingsRepository) GetPrimaryForUser(ctx context.Context, userID uuid.UUID) (*models.BotSettings, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, user_id, bot_name, is_active, is_primary, created_at
		 FROM bot_settings
		 WHERE user_id = $1 AND is_active = TRUE
		 ORDER BY is_primary DESC
		 LIMIT 1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	bot := &models.BotSettings{}
	if err := rows.Scan(&bot.ID, &bot.UserID, &bot.BotName, &bot.IsActive, &bot.IsPrimary, &bot.CreatedAt); err != nil {
		return nil, err
	}
	return bot, nil
}
