// Package analyzer turns inbound chat messages into registered
// schedules. It sits between the chat transports and the extraction
// pipeline so that both Telegram and web messages go through the same
// path.
package analyzer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mirelabs/companion/internal/extractor"
	"github.com/mirelabs/companion/internal/models"
)

// ScheduleStore is the subset of schedule persistence the analyzer
// needs.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *models.Schedule) error
	ExistsNear(ctx context.Context, userID uuid.UUID, start time.Time, window time.Duration) (bool, error)
}

// Analyzer extracts meetings from free text and registers the confident
// ones as schedules.
type Analyzer struct {
	extractor   extractor.Extractor
	schedules   ScheduleStore
	threshold   float64
	dedupWindow time.Duration
	log         zerolog.Logger
}

func New(ex extractor.Extractor, schedules ScheduleStore, threshold float64, dedupWindow time.Duration, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		extractor:   ex,
		schedules:   schedules,
		threshold:   threshold,
		dedupWindow: dedupWindow,
		log:         log.With().Str("component", "analyzer").Logger(),
	}
}

// AnalyzeForSchedules scans one inbound message and registers every
// meeting that clears the confidence threshold, skipping near-duplicate
// start times. It never returns an error: extraction is best effort and
// must not break the surrounding conversation flow.
func (a *Analyzer) AnalyzeForSchedules(ctx context.Context, text string, user *models.User, bot *models.BotSettings, channel models.Channel) []*models.Schedule {
	if text == "" || user == nil {
		return nil
	}
	if !channel.Valid() {
		a.log.Warn().Str("channel", string(channel)).Msg("Unknown channel, skipping extraction")
		return nil
	}

	loc := user.Location()
	now := time.Now().In(loc)

	meetings, err := a.extractor.Extract(ctx, text, now, loc)
	if err != nil {
		a.log.Error().Err(err).Stringer("user_id", user.ID).Msg("Meeting extraction failed")
		return nil
	}

	var created []*models.Schedule
	for _, meeting := range meetings {
		if meeting.Confidence < a.threshold {
			a.log.Debug().
				Str("event", meeting.EventName).
				Float64("confidence", meeting.Confidence).
				Msg("Discarding low-confidence candidate")
			continue
		}
		if meeting.StartTime == nil {
			continue
		}

		exists, err := a.schedules.ExistsNear(ctx, user.ID, *meeting.StartTime, a.dedupWindow)
		if err != nil {
			a.log.Error().Err(err).Stringer("user_id", user.ID).Msg("Duplicate check failed")
			continue
		}
		if exists {
			a.log.Debug().
				Str("event", meeting.EventName).
				Time("start", *meeting.StartTime).
				Msg("Skipping near-duplicate schedule")
			continue
		}

		schedule := &models.Schedule{
			ID:             uuid.New(),
			UserID:         user.ID,
			EventName:      meeting.EventName,
			Description:    meeting.Description,
			StartTime:      meeting.StartTime.UTC(),
			Channel:        channel,
			RecurrenceRule: meeting.RecurrenceRule,
		}
		if bot != nil {
			schedule.BotID = &bot.ID
		}
		if meeting.EndTime != nil {
			end := meeting.EndTime.UTC()
			schedule.EndTime = &end
		}

		if err := a.schedules.Create(ctx, schedule); err != nil {
			a.log.Error().Err(err).Stringer("user_id", user.ID).Str("event", schedule.EventName).Msg("Failed to create schedule")
			continue
		}
		created = append(created, schedule)
		a.log.Info().
			Stringer("schedule_id", schedule.ID).
			Stringer("user_id", user.ID).
			Str("event", schedule.EventName).
			Time("start", schedule.StartTime).
			Float64("confidence", meeting.Confidence).
			Msg("Registered schedule from message")
	}
	return created
}
