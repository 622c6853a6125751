package analyzer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirelabs/companion/internal/extractor"
	"github.com/mirelabs/companion/internal/models"
)

type stubExtractor struct {
	meetings []extractor.MeetingInfo
	err      error
}

func (s *stubExtractor) Extract(_ context.Context, _ string, _ time.Time, _ *time.Location) ([]extractor.MeetingInfo, error) {
	return s.meetings, s.err
}

type memoryScheduleStore struct {
	mu        sync.Mutex
	schedules []*models.Schedule
}

func (m *memoryScheduleStore) Create(_ context.Context, schedule *models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = append(m.schedules, schedule)
	return nil
}

func (m *memoryScheduleStore) ExistsNear(_ context.Context, userID uuid.UUID, start time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.schedules {
		if s.UserID != userID || s.IsCompleted {
			continue
		}
		diff := s.StartTime.Sub(start)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return true, nil
		}
	}
	return false, nil
}

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Name: "Dana", Timezone: "UTC"}
}

func meetingAt(start time.Time, confidence float64) extractor.MeetingInfo {
	return extractor.MeetingInfo{
		EventName:  "Meeting",
		StartTime:  &start,
		Confidence: confidence,
	}
}

func TestAnalyzeRegistersConfidentMeeting(t *testing.T) {
	start := time.Now().Add(2 * time.Hour).UTC()
	store := &memoryScheduleStore{}
	a := New(&stubExtractor{meetings: []extractor.MeetingInfo{meetingAt(start, 0.7)}},
		store, 0.5, 5*time.Minute, zerolog.Nop())

	created := a.AnalyzeForSchedules(context.Background(), "meeting tomorrow at 2pm", testUser(), nil, models.ChannelTelegram)

	require.Len(t, created, 1)
	assert.Equal(t, "Meeting", created[0].EventName)
	assert.Equal(t, models.ChannelTelegram, created[0].Channel)
	assert.True(t, created[0].StartTime.Equal(start))
	require.Len(t, store.schedules, 1)
}

func TestAnalyzeDiscardsBelowThreshold(t *testing.T) {
	start := time.Now().Add(2 * time.Hour).UTC()
	store := &memoryScheduleStore{}
	a := New(&stubExtractor{meetings: []extractor.MeetingInfo{meetingAt(start, 0.4)}},
		store, 0.5, 5*time.Minute, zerolog.Nop())

	created := a.AnalyzeForSchedules(context.Background(), "maybe a meeting", testUser(), nil, models.ChannelWeb)

	assert.Empty(t, created)
	assert.Empty(t, store.schedules)
}

func TestAnalyzeDiscardsTimelessCandidate(t *testing.T) {
	store := &memoryScheduleStore{}
	a := New(&stubExtractor{meetings: []extractor.MeetingInfo{{EventName: "Meeting", Confidence: 0.9}}},
		store, 0.5, 5*time.Minute, zerolog.Nop())

	created := a.AnalyzeForSchedules(context.Background(), "we should have a meeting", testUser(), nil, models.ChannelWeb)

	assert.Empty(t, created)
	assert.Empty(t, store.schedules)
}

func TestAnalyzeSkipsNearDuplicate(t *testing.T) {
	start := time.Now().Add(2 * time.Hour).UTC()
	store := &memoryScheduleStore{}
	user := testUser()
	a := New(&stubExtractor{meetings: []extractor.MeetingInfo{meetingAt(start, 0.7)}},
		store, 0.5, 5*time.Minute, zerolog.Nop())

	first := a.AnalyzeForSchedules(context.Background(), "meeting at 2pm tomorrow", user, nil, models.ChannelTelegram)
	second := a.AnalyzeForSchedules(context.Background(), "meeting at 2pm tomorrow", user, nil, models.ChannelTelegram)

	require.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Len(t, store.schedules, 1)
}

func TestAnalyzeSwallowsExtractorError(t *testing.T) {
	store := &memoryScheduleStore{}
	a := New(&stubExtractor{err: assert.AnError}, store, 0.5, 5*time.Minute, zerolog.Nop())

	created := a.AnalyzeForSchedules(context.Background(), "meeting tomorrow", testUser(), nil, models.ChannelWeb)

	assert.Empty(t, created)
}

func TestAnalyzeStampsBotID(t *testing.T) {
	start := time.Now().Add(time.Hour).UTC()
	store := &memoryScheduleStore{}
	bot := &models.BotSettings{ID: uuid.New(), BotName: "Mira"}
	a := New(&stubExtractor{meetings: []extractor.MeetingInfo{meetingAt(start, 0.8)}},
		store, 0.5, 5*time.Minute, zerolog.Nop())

	created := a.AnalyzeForSchedules(context.Background(), "call at 3pm", testUser(), bot, models.ChannelWeb)

	require.Len(t, created, 1)
	require.NotNil(t, created[0].BotID)
	assert.Equal(t, bot.ID, *created[0].BotID)
}
