package proactive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mirelabs/companion/internal/models"
	"github.com/mirelabs/companion/internal/rrule"
)

// Clock abstracts the current time so the polling checks are testable
// and schedulable by any external trigger.
type Clock func() time.Time

// Sender delivers one outbound message on a channel. Implementations are
// transport adapters; the handler never talks to a transport directly.
type Sender interface {
	Send(ctx context.Context, user *models.User, channel models.Channel, text string) error
}

// ScheduleStore is the persistence surface the handler drives. The Claim*
// methods are conditional updates that only succeed while the flag is
// still false: the claim winner sends, everyone else skips.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *models.Schedule) error
	DueForPreparation(ctx context.Context, from, to time.Time) ([]*models.Schedule, error)
	DueForCompletion(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	OpenEndedForFollowup(ctx context.Context, userID uuid.UUID, channel models.Channel, now time.Time, delay, horizon time.Duration) ([]*models.Schedule, error)
	Upcoming(ctx context.Context, userID uuid.UUID, now time.Time, window time.Duration) ([]*models.Schedule, error)
	ClaimPreparation(ctx context.Context, scheduleID uuid.UUID, at time.Time) (bool, error)
	ReleasePreparation(ctx context.Context, scheduleID uuid.UUID) error
	ClaimCompletion(ctx context.Context, scheduleID uuid.UUID, at time.Time) (bool, error)
	ReleaseCompletion(ctx context.Context, scheduleID uuid.UUID) error
	ClaimFollowup(ctx context.Context, scheduleID uuid.UUID, at time.Time) (bool, error)
	ReleaseFollowup(ctx context.Context, scheduleID uuid.UUID) error
}

type UserStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	ListProactiveCandidates(ctx context.Context) ([]*models.User, error)
}

// Config are the notification scheduler tunables.
type Config struct {
	// PrepLeadTime is how long before a meeting the reminder becomes
	// eligible; PrepJitter widens the window to absorb polling delay.
	PrepLeadTime time.Duration
	PrepJitter   time.Duration
	// FollowupDelay is how long after an open-ended meeting's nominal
	// start a follow-up becomes eligible; FollowupHorizon bounds how far
	// back the check reaches.
	FollowupDelay   time.Duration
	FollowupHorizon time.Duration
	// ActiveWindow suppresses greetings while the user was recently
	// chatting.
	ActiveWindow time.Duration
	// SendTimeout bounds one outbound send so a hung adapter cannot
	// stall the whole batch.
	SendTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PrepLeadTime:    30 * time.Minute,
		PrepJitter:      5 * time.Minute,
		FollowupDelay:   5 * time.Minute,
		FollowupHorizon: 8 * time.Hour,
		ActiveWindow:    30 * time.Minute,
		SendTimeout:     20 * time.Second,
	}
}

// Handler drives proactive reminders, completion messages, follow-up
// greetings and time-based greetings for scheduled meetings. All check
// methods are idempotent batch operations safe to run on any interval;
// per-item failures are logged and never abort the rest of the batch.
type Handler struct {
	schedules ScheduleStore
	sessions  SessionStore
	users     UserStore
	gate      *Gate
	sender    Sender
	cfg       Config
	now       Clock
	log       zerolog.Logger
}

func NewHandler(
	schedules ScheduleStore,
	sessions SessionStore,
	users UserStore,
	gate *Gate,
	sender Sender,
	cfg Config,
	clock Clock,
	log zerolog.Logger,
) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{
		schedules: schedules,
		sessions:  sessions,
		users:     users,
		gate:      gate,
		sender:    sender,
		cfg:       cfg,
		now:       clock,
		log:       log.With().Str("component", "proactive_handler").Logger(),
	}
}

// CheckAndSendPreparationReminders sends a reminder for every meeting
// starting inside the lead window. Returns the number of reminders sent.
func (h *Handler) CheckAndSendPreparationReminders(ctx context.Context) int {
	now := h.now().UTC()
	due, err := h.schedules.DueForPreparation(ctx, now, now.Add(h.cfg.PrepLeadTime+h.cfg.PrepJitter))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query schedules due for preparation")
		return 0
	}

	sent := 0
	for _, schedule := range due {
		user, ok := h.userFor(ctx, schedule)
		if !ok {
			continue
		}
		if !h.gate.Allowed(ctx, user, now) {
			continue
		}

		message := preparationMessage(schedule.EventName, formatLocalTime(schedule.StartTime, user))
		if session := h.deliver(ctx, schedule, user, models.SessionMeetingPrepReminder, message,
			h.schedules.ClaimPreparation, h.schedules.ReleasePreparation); session != nil {
			sent++
			h.log.Info().
				Stringer("schedule_id", schedule.ID).
				Stringer("user_id", schedule.UserID).
				Str("event", schedule.EventName).
				Msg("Sent preparation reminder")
		}
	}
	return sent
}

// CheckAndSendCompletionMessages sends a wrap-up message for every
// meeting whose explicit end time has passed. A completion message
// implicitly closes the schedule. Returns the number sent.
func (h *Handler) CheckAndSendCompletionMessages(ctx context.Context) int {
	now := h.now().UTC()
	due, err := h.schedules.DueForCompletion(ctx, now)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query schedules due for completion")
		return 0
	}

	sent := 0
	for _, schedule := range due {
		user, ok := h.userFor(ctx, schedule)
		if !ok {
			continue
		}
		if !h.gate.Allowed(ctx, user, now) {
			continue
		}

		message := completionMessage(schedule.EventName)
		if session := h.deliver(ctx, schedule, user, models.SessionMeetingCompletion, message,
			h.schedules.ClaimCompletion, h.schedules.ReleaseCompletion); session != nil {
			sent++
			h.rollForwardRecurring(ctx, schedule, now)
			h.log.Info().
				Stringer("schedule_id", schedule.ID).
				Stringer("user_id", schedule.UserID).
				Str("event", schedule.EventName).
				Msg("Sent completion message")
		}
	}
	return sent
}

// CheckFirstInteractionAfterMeeting runs on every inbound user message.
// When the user comes back after an open-ended meeting's nominal start,
// it sends a "how did it go" greeting on the same channel and closes the
// schedule. Returns the created session, or nil when nothing applied.
func (h *Handler) CheckFirstInteractionAfterMeeting(ctx context.Context, userID uuid.UUID, channel models.Channel) *models.ProactiveSession {
	now := h.now().UTC()
	candidates, err := h.schedules.OpenEndedForFollowup(ctx, userID, channel, now, h.cfg.FollowupDelay, h.cfg.FollowupHorizon)
	if err != nil {
		h.log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to query open-ended schedules")
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	schedule := candidates[0]
	user, ok := h.userFor(ctx, schedule)
	if !ok {
		return nil
	}
	if !h.gate.Allowed(ctx, user, now) {
		return nil
	}

	message := followupMessage(schedule.EventName)
	session := h.deliver(ctx, schedule, user, models.SessionMeetingFollowupGreeting, message,
		h.schedules.ClaimFollowup, h.schedules.ReleaseFollowup)
	if session == nil {
		return nil
	}
	h.rollForwardRecurring(ctx, schedule, now)
	h.log.Info().
		Stringer("schedule_id", schedule.ID).
		Stringer("user_id", userID).
		Str("event", schedule.EventName).
		Msg("Sent follow-up greeting")

	return session
}

// CheckAndSendTimeGreetings sends at most one day-part greeting per user
// per local day, skipping users who are mid-conversation. Returns the
// number sent.
func (h *Handler) CheckAndSendTimeGreetings(ctx context.Context) int {
	now := h.now().UTC()
	users, err := h.users.ListProactiveCandidates(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list greeting candidates")
		return 0
	}

	sent := 0
	for _, user := range users {
		if user.ActiveWithin(now, h.cfg.ActiveWindow) {
			continue
		}
		if !h.gate.Allowed(ctx, user, now) {
			continue
		}

		local := now.In(user.Location())
		greetingType := greetingTypeForHour(local.Hour())

		dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
		already, err := h.sessions.TypeSentBetween(ctx, user.ID, greetingType, dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			h.log.Error().Err(err).Stringer("user_id", user.ID).Msg("Failed to check greeting dedup")
			continue
		}
		if already {
			continue
		}

		channel := models.ChannelWeb
		if user.TelegramID != nil {
			channel = models.ChannelTelegram
		}

		// The unique dedup key decides the race between overlapping poll
		// cycles: the insert is the claim, the delete below the release.
		message := greetingMessage(greetingType, user.Name)
		session := &models.ProactiveSession{
			ID:             uuid.New(),
			UserID:         user.ID,
			SessionType:    greetingType,
			MessageContent: message,
			Channel:        channel,
			SentAt:         now,
			DedupKey:       models.GreetingDedupKey(user.ID, greetingType, dayStart),
		}
		claimed, err := h.sessions.CreateUnique(ctx, session)
		if err != nil {
			h.log.Error().Err(err).Stringer("user_id", user.ID).Msg("Greeting claim insert failed")
			continue
		}
		if !claimed {
			// Another poller is greeting this user today.
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
		err = h.sender.Send(sendCtx, user, channel, message)
		cancel()
		if err != nil {
			h.log.Warn().Err(err).Stringer("user_id", user.ID).Msg("Failed to send greeting, releasing claim")
			if derr := h.sessions.Delete(ctx, session.ID); derr != nil {
				h.log.Error().Err(derr).Stringer("user_id", user.ID).Msg("Failed to release greeting claim; today's greeting is lost")
			}
			continue
		}
		sent++
		h.log.Info().Stringer("user_id", user.ID).Str("greeting", string(greetingType)).Msg("Sent time greeting")
	}
	return sent
}

// GetUpcomingMeetings lists the user's non-completed meetings starting in
// the next hours, soonest first.
func (h *Handler) GetUpcomingMeetings(ctx context.Context, userID uuid.UUID, hours int) ([]*models.Schedule, error) {
	if hours <= 0 {
		hours = 24
	}
	return h.schedules.Upcoming(ctx, userID, h.now().UTC(), time.Duration(hours)*time.Hour)
}

// deliver performs one schedule's claim-then-send critical section and
// returns the recorded session, or nil when nothing went out. The
// conditional claim decides the race between overlapping poll cycles; a
// failed send releases the claim so the next poll retries. A crash
// between claim and release loses the notification, which is the
// accepted trade against double-sending.
func (h *Handler) deliver(
	ctx context.Context,
	schedule *models.Schedule,
	user *models.User,
	sessionType models.SessionType,
	message string,
	claim func(context.Context, uuid.UUID, time.Time) (bool, error),
	release func(context.Context, uuid.UUID) error,
) *models.ProactiveSession {
	now := h.now().UTC()

	claimed, err := claim(ctx, schedule.ID, now)
	if err != nil {
		h.log.Error().Err(err).Stringer("schedule_id", schedule.ID).Msg("Claim update failed")
		return nil
	}
	if !claimed {
		// Another poller won this schedule.
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	err = h.sender.Send(sendCtx, user, schedule.Channel, message)
	cancel()
	if err != nil {
		h.log.Warn().Err(err).
			Stringer("schedule_id", schedule.ID).
			Str("channel", string(schedule.Channel)).
			Msg("Send failed, releasing claim for retry")
		if rerr := release(ctx, schedule.ID); rerr != nil {
			h.log.Error().Err(rerr).Stringer("schedule_id", schedule.ID).Msg("Failed to release claim; notification is lost")
		}
		return nil
	}

	session := &models.ProactiveSession{
		ID:             uuid.New(),
		UserID:         schedule.UserID,
		BotID:          schedule.BotID,
		SessionType:    sessionType,
		ReferenceID:    &schedule.ID,
		MessageContent: message,
		Channel:        schedule.Channel,
		SentAt:         now,
	}
	if err := h.sessions.Create(ctx, session); err != nil {
		// The message is already out; keep the flag so it cannot repeat.
		h.log.Error().Err(err).Stringer("schedule_id", schedule.ID).Msg("Message sent but session insert failed")
	}
	return session
}

// rollForwardRecurring creates the next occurrence of a recurring
// schedule after its current one terminated. The fresh row starts with
// clean flags, so the append-only flag invariant holds per row.
func (h *Handler) rollForwardRecurring(ctx context.Context, schedule *models.Schedule, now time.Time) {
	if !schedule.IsRecurring() {
		return
	}

	next, err := rrule.Next(schedule.RecurrenceRule, schedule.StartTime, now)
	if err != nil {
		h.log.Error().Err(err).Stringer("schedule_id", schedule.ID).Msg("Failed to compute next occurrence")
		return
	}
	if next == nil {
		return
	}

	successor := &models.Schedule{
		ID:             uuid.New(),
		UserID:         schedule.UserID,
		BotID:          schedule.BotID,
		EventName:      schedule.EventName,
		Description:    schedule.Description,
		StartTime:      *next,
		Channel:        schedule.Channel,
		RecurrenceRule: schedule.RecurrenceRule,
	}
	if schedule.EndTime != nil {
		end := next.Add(schedule.EndTime.Sub(schedule.StartTime))
		successor.EndTime = &end
	}

	if err := h.schedules.Create(ctx, successor); err != nil {
		h.log.Error().Err(err).Stringer("schedule_id", schedule.ID).Msg("Failed to create next occurrence")
		return
	}
	h.log.Info().
		Stringer("schedule_id", schedule.ID).
		Stringer("next_id", successor.ID).
		Time("next_start", *next).
		Msg("Rolled recurring schedule forward")
}

func (h *Handler) userFor(ctx context.Context, schedule *models.Schedule) (*models.User, bool) {
	user, err := h.users.GetByID(ctx, schedule.UserID)
	if err != nil {
		h.log.Error().Err(err).
			Stringer("schedule_id", schedule.ID).
			Stringer("user_id", schedule.UserID).
			Msg("Failed to load schedule owner")
		return nil, false
	}
	return user, true
}
