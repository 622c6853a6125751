// Package telegram adapts the Telegram Bot API to the proactive sender
// interface.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/mirelabs/companion/internal/models"
)

type Sender struct {
	api *tgbotapi.BotAPI
	log zerolog.Logger
}

func NewSender(api *tgbotapi.BotAPI, log zerolog.Logger) *Sender {
	return &Sender{
		api: api,
		log: log.With().Str("component", "telegram_sender").Logger(),
	}
}

// Send delivers one message to the user's Telegram chat. The Bot API
// client has no context support, so cancellation is checked up front
// only.
func (s *Sender) Send(ctx context.Context, user *models.User, _ models.Channel, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.TelegramID == nil {
		return fmt.Errorf("user %s has no linked telegram account", user.ID)
	}

	msg := tgbotapi.NewMessage(*user.TelegramID, text)
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	s.log.Debug().Stringer("user_id", user.ID).Int64("chat_id", *user.TelegramID).Msg("Delivered message")
	return nil
}
