package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mirelabs/companion/internal/database"
	"github.com/mirelabs/companion/internal/models"
)

type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.ProactiveSession) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO proactive_sessions (id, user_id, bot_id, session_type, reference_id, message_content, channel, sent_at, dedup_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		 RETURNING created_at`,
		session.ID, session.UserID, session.BotID, session.SessionType, session.ReferenceID,
		session.MessageContent, session.Channel, session.SentAt, session.DedupKey,
	).Scan(&session.CreatedAt)
}

// CreateUnique inserts the session only if its dedup key is not taken.
// Returns true when this call won the insert; false means another poller
// already holds the key. The insert acts as the claim in the greeting
// path's claim-then-send sequence.
func (r *SessionRepository) CreateUnique(ctx context.Context, session *models.ProactiveSession) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`INSERT INTO proactive_sessions (id, user_id, bot_id, session_type, reference_id, message_content, channel, sent_at, dedup_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		 ON CONFLICT (dedup_key) WHERE dedup_key IS NOT NULL DO NOTHING`,
		session.ID, session.UserID, session.BotID, session.SessionType, session.ReferenceID,
		session.MessageContent, session.Channel, session.SentAt, session.DedupKey,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a session row. Only the greeting path uses it, to give
// back a claimed dedup key after a failed send.
func (r *SessionRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM proactive_sessions WHERE id = $1`,
		sessionID,
	)
	return err
}

// CountSentBetween counts proactive messages sent to the user in
// [from, to); the gate uses the user's local calendar day as the range.
func (r *SessionRepository) CountSentBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM proactive_sessions
		 WHERE user_id = $1 AND sent_at >= $2 AND sent_at < $3`,
		userID, from, to,
	).Scan(&count)
	return count, err
}

// TypeSentBetween reports whether a session of the given type was sent to
// the user within [from, to). Deduplicates day-part greetings.
func (r *SessionRepository) TypeSentBetween(ctx context.Context, userID uuid.UUID, sessionType models.SessionType, from, to time.Time) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM proactive_sessions
			WHERE user_id = $1 AND session_type = $2 AND sent_at >= $3 AND sent_at < $4
		 )`,
		userID, sessionType, from, to,
	).Scan(&exists)
	return exists, err
}

// Acknowledge records the first user reply correlated to this session.
// Only the first acknowledgement sticks.
func (r *SessionRepository) Acknowledge(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE proactive_sessions SET acknowledged_at = $2
		 WHERE id = $1 AND acknowledged_at IS NULL`,
		sessionID, at,
	)
	return err
}

// AcknowledgeLatest marks the user's most recent unacknowledged session
// within the window as replied to. Inbound messages call this so the
// session feed can tell which proactive messages actually landed.
func (r *SessionRepository) AcknowledgeLatest(ctx context.Context, userID uuid.UUID, at time.Time, window time.Duration) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE proactive_sessions SET acknowledged_at = $2
		 WHERE id = (
			SELECT id FROM proactive_sessions
			WHERE user_id = $1 AND acknowledged_at IS NULL AND sent_at >= $3
			ORDER BY sent_at DESC
			LIMIT 1
		 )`,
		userID, at, at.Add(-window),
	)
	return err
}

// LatestForReference returns the most recent session referencing the
// given schedule, or nil if none exists.
func (r *SessionRepository) LatestForReference(ctx context.Context, referenceID uuid.UUID) (*models.ProactiveSession, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, user_id, bot_id, session_type, reference_id, message_content, channel, sent_at, acknowledged_at, created_at
		 FROM proactive_sessions
		 WHERE reference_id = $1
		 ORDER BY sent_at DESC
		 LIMIT 1`,
		referenceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	session := &models.ProactiveSession{}
	if err := rows.Scan(
		&session.ID, &session.UserID, &session.BotID, &session.SessionType, &session.ReferenceID,
		&session.MessageContent, &session.Channel, &session.SentAt, &session.AcknowledgedAt, &session.CreatedAt,
	); err != nil {
		return nil, err
	}
	return session, nil
}
