// Package bot runs the Telegram long-polling loop. Every inbound message
// goes through the same pipeline: resolve the user, record activity,
// acknowledge any pending proactive session, fire the post-meeting
// follow-up check, then scan the text for new meetings.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/mirelabs/companion/internal/analyzer"
	"github.com/mirelabs/companion/internal/models"
	"github.com/mirelabs/companion/internal/proactive"
	"github.com/mirelabs/companion/internal/repository"
)

// Notifier wakes the polling scheduler early, so a freshly registered
// meeting that is already inside the reminder window is not missed.
type Notifier interface {
	Notify()
}

type Bot struct {
	api         *tgbotapi.BotAPI
	users       *repository.UserRepository
	botSettings *repository.BotSettingsRepository
	sessions    *repository.SessionRepository
	analyzer    *analyzer.Analyzer
	proactive   *proactive.Handler
	notifier    Notifier
	ackWindow   time.Duration
	log         zerolog.Logger
}

func New(
	api *tgbotapi.BotAPI,
	users *repository.UserRepository,
	botSettings *repository.BotSettingsRepository,
	sessions *repository.SessionRepository,
	an *analyzer.Analyzer,
	handler *proactive.Handler,
	notifier Notifier,
	log zerolog.Logger,
) *Bot {
	return &Bot{
		api:         api,
		users:       users,
		botSettings: botSettings,
		sessions:    sessions,
		analyzer:    an,
		proactive:   handler,
		notifier:    notifier,
		ackWindow:   24 * time.Hour,
		log:         log.With().Str("component", "bot").Logger(),
	}
}

func (b *Bot) Start(ctx context.Context) error {
	b.log.Info().Str("username", b.api.Self.UserName).Msg("Authorized on Telegram")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	now := time.Now().UTC()

	user, err := b.users.GetOrCreateByTelegram(ctx, msg.Chat.ID, displayName(msg.From))
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to resolve user")
		return
	}

	if err := b.users.TouchLastActive(ctx, user.ID, now); err != nil {
		b.log.Warn().Err(err).Stringer("user_id", user.ID).Msg("Failed to record activity")
	}
	if err := b.sessions.AcknowledgeLatest(ctx, user.ID, now, b.ackWindow); err != nil {
		b.log.Warn().Err(err).Stringer("user_id", user.ID).Msg("Failed to acknowledge session")
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, user, msg)
		return
	}

	// Reactive follow-up first: "how did X go" reads better before any
	// reply about newly mentioned meetings.
	b.proactive.CheckFirstInteractionAfterMeeting(ctx, user.ID, models.ChannelTelegram)

	b.handleMessage(ctx, user, msg)
}

func (b *Bot) handleCommand(ctx context.Context, user *models.User, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, fmt.Sprintf(
			"Hi %s! Tell me about your meetings and I'll remind you before they start. Try /schedule to see what's coming up.",
			user.Name))
	case "schedule":
		b.replySchedule(ctx, user, msg.Chat.ID)
	case "help":
		b.reply(msg.Chat.ID,
			"Mention a meeting in plain language (\"standup tomorrow at 9:30\") and I'll track it.\n"+
				"/schedule - your next 24 hours\n"+
				"/help - this message")
	default:
		b.reply(msg.Chat.ID, "I don't know that command. Try /help.")
	}
}

func (b *Bot) handleMessage(ctx context.Context, user *models.User, msg *tgbotapi.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	botSettings, err := b.botSettings.GetPrimaryForUser(ctx, user.ID)
	if err != nil {
		b.log.Warn().Err(err).Stringer("user_id", user.ID).Msg("Failed to load bot settings")
	}

	created := b.analyzer.AnalyzeForSchedules(ctx, msg.Text, user, botSettings, models.ChannelTelegram)
	if len(created) == 0 {
		return
	}

	loc := user.Location()
	var sb strings.Builder
	sb.WriteString("Got it! I'll keep track of:\n")
	for _, s := range created {
		sb.WriteString(fmt.Sprintf("• %s — %s", s.EventName, s.StartTime.In(loc).Format("Mon Jan 2, 3:04 PM")))
		if s.IsRecurring() {
			sb.WriteString(" (recurring)")
		}
		sb.WriteString("\n")
	}
	b.reply(msg.Chat.ID, sb.String())

	if b.notifier != nil {
		b.notifier.Notify()
	}
}

func (b *Bot) replySchedule(ctx context.Context, user *models.User, chatID int64) {
	schedules, err := b.proactive.GetUpcomingMeetings(ctx, user.ID, 24)
	if err != nil {
		b.log.Error().Err(err).Stringer("user_id", user.ID).Msg("Failed to list upcoming meetings")
		b.reply(chatID, "Sorry, I couldn't load your schedule right now.")
		return
	}
	if len(schedules) == 0 {
		b.reply(chatID, "Nothing on your schedule for the next 24 hours.")
		return
	}

	loc := user.Location()
	var sb strings.Builder
	sb.WriteString("Your next 24 hours:\n")
	for _, s := range schedules {
		marker := "⏳"
		if s.State() == models.StateCompleted {
			marker = "✅"
		}
		sb.WriteString(fmt.Sprintf("%s %s — %s", marker, s.StartTime.In(loc).Format("3:04 PM"), s.EventName))
		if s.EndTime != nil {
			sb.WriteString(fmt.Sprintf(" (until %s)", s.EndTime.In(loc).Format("3:04 PM")))
		}
		sb.WriteString("\n")
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

func displayName(from *tgbotapi.User) string {
	if from.FirstName != "" {
		return from.FirstName
	}
	if from.UserName != "" {
		return from.UserName
	}
	return "there"
}
