package proactive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mirelabs/companion/internal/models"
)

// Router fans each send out to the adapter registered for its channel.
type Router struct {
	senders map[models.Channel]Sender
}

func NewRouter() *Router {
	return &Router{senders: make(map[models.Channel]Sender)}
}

func (r *Router) Register(channel models.Channel, sender Sender) {
	r.senders[channel] = sender
}

func (r *Router) Send(ctx context.Context, user *models.User, channel models.Channel, text string) error {
	sender, ok := r.senders[channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %q", channel)
	}
	return sender.Send(ctx, user, channel, text)
}

// FeedSender handles channels whose clients pull messages rather than
// receive pushes: the session row written after a successful "send" is
// the message, and the web frontend renders the session feed. Send
// therefore only has to succeed.
type FeedSender struct {
	log zerolog.Logger
}

func NewFeedSender(log zerolog.Logger) *FeedSender {
	return &FeedSender{log: log.With().Str("component", "feed_sender").Logger()}
}

func (s *FeedSender) Send(_ context.Context, user *models.User, channel models.Channel, _ string) error {
	s.log.Debug().Stringer("user_id", user.ID).Str("channel", string(channel)).Msg("Queued message to session feed")
	return nil
}
