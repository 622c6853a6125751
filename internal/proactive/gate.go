package proactive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mirelabs/companion/internal/models"
)

// PreferenceStore reads per-user proactive policy.
type PreferenceStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.GreetingPreference, error)
}

// SessionStore records and counts proactive sends. CreateUnique is a
// conditional insert on the session's dedup key; the greeting path uses
// it as the claim in its claim-then-send sequence, with Delete as the
// compensating release after a failed send.
type SessionStore interface {
	Create(ctx context.Context, session *models.ProactiveSession) error
	CreateUnique(ctx context.Context, session *models.ProactiveSession) (bool, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
	CountSentBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
	TypeSentBetween(ctx context.Context, userID uuid.UUID, sessionType models.SessionType, from, to time.Time) (bool, error)
}

// Gate is the per-user policy check consulted before every proactive
// send: master switch, quiet hours in the user's local time, and the
// daily cap. Checks short-circuit on the first denial.
type Gate struct {
	prefs    PreferenceStore
	sessions SessionStore
	log      zerolog.Logger
}

func NewGate(prefs PreferenceStore, sessions SessionStore, log zerolog.Logger) *Gate {
	return &Gate{
		prefs:    prefs,
		sessions: sessions,
		log:      log.With().Str("component", "preference_gate").Logger(),
	}
}

// Allowed reports whether a proactive message may go to the user at the
// given instant. The gate is best effort: lookup failures fall back to
// default policy rather than blocking the caller with an error.
func (g *Gate) Allowed(ctx context.Context, user *models.User, now time.Time) bool {
	pref, err := g.prefs.GetByUserID(ctx, user.ID)
	if err != nil {
		g.log.Warn().Err(err).Stringer("user_id", user.ID).Msg("Failed to load preferences, using defaults")
		pref = models.DefaultGreetingPreference(user.ID)
	}

	if !pref.PreferProactive {
		return false
	}

	local := now.In(user.Location())
	if pref.InQuietHours(local.Hour()) {
		return false
	}

	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	count, err := g.sessions.CountSentBetween(ctx, user.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		g.log.Warn().Err(err).Stringer("user_id", user.ID).Msg("Failed to count today's sends, allowing")
		return true
	}
	if pref.MaxProactivePerDay > 0 && count >= pref.MaxProactivePerDay {
		return false
	}

	return true
}
