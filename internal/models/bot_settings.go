package models

import (
	"time"

	"github.com/google/uuid"
)

type BotSettings struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	BotName   string    `json:"bot_name"`
	IsActive  bool      `json:"is_active"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}
