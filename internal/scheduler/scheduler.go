// Package scheduler runs the periodic proactive checks. It owns no
// business logic; each tick it asks the proactive handler to do the
// actual work.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mirelabs/companion/internal/proactive"
)

type Scheduler struct {
	handler       *proactive.Handler
	checkInterval time.Duration
	notifyCh      chan struct{}
	log           zerolog.Logger
}

func New(handler *proactive.Handler, checkInterval time.Duration, log zerolog.Logger) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = 5 * time.Minute
	}
	return &Scheduler{
		handler:       handler,
		checkInterval: checkInterval,
		notifyCh:      make(chan struct{}, 1),
		log:           log.With().Str("component", "scheduler").Logger(),
	}
}

// Notify triggers an immediate check. Non-blocking if a check is already
// pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Start runs the polling loop until ctx is cancelled. Blocks; run it in
// its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.checkInterval).Msg("Scheduler started")
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Let startup (migrations, bot connect) settle before the first
	// check.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	s.check(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			s.check(ctx)
		case <-s.notifyCh:
			s.log.Debug().Msg("Scheduler triggered by notification")
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	prep := s.handler.CheckAndSendPreparationReminders(ctx)
	done := s.handler.CheckAndSendCompletionMessages(ctx)
	greet := s.handler.CheckAndSendTimeGreetings(ctx)
	if prep+done+greet > 0 {
		s.log.Info().
			Int("preparation", prep).
			Int("completion", done).
			Int("greetings", greet).
			Msg("Proactive check cycle sent messages")
	}
}
