package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mirelabs/companion/internal/database"
	"github.com/mirelabs/companion/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, timezone, telegram_id, last_active_at, created_at`

func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Name, &user.Timezone, &user.TelegramID, &user.LastActiveAt, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetOrCreateByTelegram upserts a user keyed by telegram id, refreshing
// the display name on every contact.
func (r *UserRepository) GetOrCreateByTelegram(ctx context.Context, telegramID int64, name string) (*models.User, error) {
	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO users (id, name, telegram_id) VALUES ($1, $2, $3)
		 ON CONFLICT (telegram_id) WHERE telegram_id IS NOT NULL
		 DO UPDATE SET name = EXCLUDED.name
		 RETURNING `+userColumns,
		uuid.New(), name, telegramID,
	).Scan(&user.ID, &user.Name, &user.Timezone, &user.TelegramID, &user.LastActiveAt, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// TouchLastActive records an inbound message from the user; the greeting
// checks use this to avoid interrupting active conversations.
func (r *UserRepository) TouchLastActive(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET last_active_at = $1 WHERE id = $2`,
		at, userID,
	)
	return err
}

// ListProactiveCandidates returns users who have not opted out of
// proactive messages (no preference row counts as opted in).
func (r *UserRepository) ListProactiveCandidates(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT u.id, u.name, u.timezone, u.telegram_id, u.last_active_at, u.created_at
		 FROM users u
		 LEFT JOIN greeting_preferences p ON p.user_id = u.id
		 WHERE p.prefer_proactive IS DISTINCT FROM FALSE`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Timezone, &user.TelegramID, &user.LastActiveAt, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
