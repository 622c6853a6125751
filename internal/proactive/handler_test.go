package proactive

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirelabs/companion/internal/models"
)

// --- in-memory fakes ---

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*models.Schedule
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{schedules: make(map[uuid.UUID]*models.Schedule)}
}

func (f *fakeScheduleStore) add(s *models.Schedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[s.ID] = s
}

func (f *fakeScheduleStore) get(id uuid.UUID) *models.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules[id]
}

func (f *fakeScheduleStore) Create(_ context.Context, s *models.Schedule) error {
	f.add(s)
	return nil
}

func (f *fakeScheduleStore) DueForPreparation(_ context.Context, from, to time.Time) ([]*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Schedule
	for _, s := range f.schedules {
		if s.IsCompleted || s.PreparationReminderSent {
			continue
		}
		if !s.StartTime.Before(from) && !s.StartTime.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) DueForCompletion(_ context.Context, now time.Time) ([]*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Schedule
	for _, s := range f.schedules {
		if s.IsCompleted || s.EventCompletedSent || s.EndTime == nil {
			continue
		}
		if !s.EndTime.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) OpenEndedForFollowup(_ context.Context, userID uuid.UUID, channel models.Channel, now time.Time, delay, horizon time.Duration) ([]*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Schedule
	for _, s := range f.schedules {
		if s.UserID != userID || s.Channel != channel {
			continue
		}
		if s.IsCompleted || s.FollowupSent || s.EndTime != nil {
			continue
		}
		if s.StartTime.Add(delay).After(now) || s.StartTime.Before(now.Add(-horizon)) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (f *fakeScheduleStore) Upcoming(_ context.Context, userID uuid.UUID, now time.Time, window time.Duration) ([]*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Schedule
	for _, s := range f.schedules {
		if s.UserID != userID || s.IsCompleted {
			continue
		}
		if !s.StartTime.Before(now) && !s.StartTime.After(now.Add(window)) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeScheduleStore) ClaimPreparation(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok || s.PreparationReminderSent {
		return false, nil
	}
	s.PreparationReminderSent = true
	s.PreparationReminderSentAt = &at
	return true, nil
}

func (f *fakeScheduleStore) ReleasePreparation(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[id]; ok {
		s.PreparationReminderSent = false
		s.PreparationReminderSentAt = nil
	}
	return nil
}

func (f *fakeScheduleStore) ClaimCompletion(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok || s.EventCompletedSent {
		return false, nil
	}
	s.EventCompletedSent = true
	s.EventCompletedSentAt = &at
	s.IsCompleted = true
	return true, nil
}

func (f *fakeScheduleStore) ReleaseCompletion(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[id]; ok {
		s.EventCompletedSent = false
		s.EventCompletedSentAt = nil
		s.IsCompleted = false
	}
	return nil
}

func (f *fakeScheduleStore) ClaimFollowup(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok || s.FollowupSent {
		return false, nil
	}
	s.FollowupSent = true
	s.FollowupSentAt = &at
	s.IsCompleted = true
	return true, nil
}

func (f *fakeScheduleStore) ReleaseFollowup(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[id]; ok {
		s.FollowupSent = false
		s.FollowupSentAt = nil
		s.IsCompleted = false
	}
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions []*models.ProactiveSession
}

func (f *fakeSessionStore) Create(_ context.Context, s *models.ProactiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeSessionStore) CreateUnique(_ context.Context, s *models.ProactiveSession) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.DedupKey != "" {
		for _, existing := range f.sessions {
			if existing.DedupKey == s.DedupKey {
				return false, nil
			}
		}
	}
	f.sessions = append(f.sessions, s)
	return true, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.sessions {
		if s.ID == id {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeSessionStore) CountSentBetween(_ context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.sessions {
		if s.UserID == userID && !s.SentAt.Before(from) && s.SentAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) TypeSentBetween(_ context.Context, userID uuid.UUID, sessionType models.SessionType, from, to time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.SessionType == sessionType && !s.SentAt.Before(from) && s.SentAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSessionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (f *fakeUserStore) ListProactiveCandidates(_ context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

type fakePrefStore struct {
	mu    sync.Mutex
	prefs map[uuid.UUID]*models.GreetingPreference
}

func (f *fakePrefStore) set(p *models.GreetingPreference) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prefs == nil {
		f.prefs = make(map[uuid.UUID]*models.GreetingPreference)
	}
	f.prefs[p.UserID] = p
}

func (f *fakePrefStore) GetByUserID(_ context.Context, userID uuid.UUID) (*models.GreetingPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.prefs[userID]; ok {
		return p, nil
	}
	return models.DefaultGreetingPreference(userID), nil
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	failures int
}

func (f *fakeSender) Send(_ context.Context, _ *models.User, _ models.Channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("send failed")
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// --- fixture ---

type fixture struct {
	handler   *Handler
	schedules *fakeScheduleStore
	sessions  *fakeSessionStore
	users     *fakeUserStore
	prefs     *fakePrefStore
	sender    *fakeSender
	now       time.Time
	user      *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	tgID := int64(1001)
	user := &models.User{ID: uuid.New(), Name: "Dana", Timezone: "UTC", TelegramID: &tgID}

	schedules := newFakeScheduleStore()
	sessions := &fakeSessionStore{}
	users := newFakeUserStore(user)
	prefs := &fakePrefStore{}
	sender := &fakeSender{}
	gate := NewGate(prefs, sessions, zerolog.Nop())

	h := NewHandler(schedules, sessions, users, gate, sender, DefaultConfig(),
		func() time.Time { return now }, zerolog.Nop())

	return &fixture{
		handler:   h,
		schedules: schedules,
		sessions:  sessions,
		users:     users,
		prefs:     prefs,
		sender:    sender,
		now:       now,
		user:      user,
	}
}

func (fx *fixture) addSchedule(start time.Time, end *time.Time) *models.Schedule {
	s := &models.Schedule{
		ID:        uuid.New(),
		UserID:    fx.user.ID,
		EventName: "Design Review",
		StartTime: start,
		EndTime:   end,
		Channel:   models.ChannelTelegram,
	}
	fx.schedules.add(s)
	return s
}

func ptrTime(t time.Time) *time.Time { return &t }

// --- preparation reminders ---

func TestPreparationReminderSentOnce(t *testing.T) {
	fx := newFixture(t)
	s := fx.addSchedule(fx.now.Add(20*time.Minute), nil)

	sent := fx.handler.CheckAndSendPreparationReminders(context.Background())
	assert.Equal(t, 1, sent)
	assert.True(t, fx.schedules.get(s.ID).PreparationReminderSent)
	assert.Equal(t, 1, fx.sessions.count())

	sent = fx.handler.CheckAndSendPreparationReminders(context.Background())
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, fx.sender.sentCount())
}

func TestPreparationSkipsOutsideLeadWindow(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(2*time.Hour), nil)

	sent := fx.handler.CheckAndSendPreparationReminders(context.Background())
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, fx.sender.sentCount())
}

func TestConcurrentPollersSendOnce(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(15*time.Minute), nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.handler.CheckAndSendPreparationReminders(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fx.sender.sentCount())
	assert.Equal(t, 1, fx.sessions.count())
}

func TestSendFailureReleasesClaimForRetry(t *testing.T) {
	fx := newFixture(t)
	s := fx.addSchedule(fx.now.Add(20*time.Minute), nil)
	fx.sender.failures = 1

	sent := fx.handler.CheckAndSendPreparationReminders(context.Background())
	assert.Equal(t, 0, sent)
	assert.False(t, fx.schedules.get(s.ID).PreparationReminderSent)
	assert.Equal(t, 0, fx.sessions.count())

	sent = fx.handler.CheckAndSendPreparationReminders(context.Background())
	assert.Equal(t, 1, sent)
	assert.True(t, fx.schedules.get(s.ID).PreparationReminderSent)
	assert.Equal(t, 1, fx.sessions.count())
}

func TestPreparationRespectsQuietHours(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(20*time.Minute), nil)
	start, end := 14, 18
	fx.prefs.set(&models.GreetingPreference{
		UserID:          fx.user.ID,
		PreferProactive: true,
		DndStartHour:    &start,
		DndEndHour:      &end,
	})

	sent := fx.handler.CheckAndSendPreparationReminders(context.Background())
	assert.Equal(t, 0, sent)
}

func TestPreparationRespectsOptOut(t *testing.T) {
	fx := newFixture(t)
	s := fx.addSchedule(fx.now.Add(20*time.Minute), nil)
	fx.prefs.set(&models.GreetingPreference{UserID: fx.user.ID, PreferProactive: false})

	sent := fx.handler.CheckAndSendPreparationReminders(context.Background())
	assert.Equal(t, 0, sent)
	// The claim never ran, so the schedule stays eligible.
	assert.False(t, fx.schedules.get(s.ID).PreparationReminderSent)
}

func TestDailyCapBlocksFurtherSends(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(20*time.Minute), nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, fx.sessions.Create(context.Background(), &models.ProactiveSession{
			UserID:      fx.user.ID,
			SessionType: models.SessionMorningGreeting,
			SentAt:      fx.now.Add(-time.Duration(i+1) * time.Hour),
		}))
	}

	sent := fx.handler.CheckAndSendPreparationReminders(context.Background())
	assert.Equal(t, 0, sent)
}

// --- completion messages ---

func TestCompletionSentAfterEndTime(t *testing.T) {
	fx := newFixture(t)
	s := fx.addSchedule(fx.now.Add(-2*time.Hour), ptrTime(fx.now.Add(-10*time.Minute)))

	sent := fx.handler.CheckAndSendCompletionMessages(context.Background())
	assert.Equal(t, 1, sent)
	got := fx.schedules.get(s.ID)
	assert.True(t, got.EventCompletedSent)
	assert.True(t, got.IsCompleted)

	sent = fx.handler.CheckAndSendCompletionMessages(context.Background())
	assert.Equal(t, 0, sent)
}

func TestCompletionNotDueBeforeEndTime(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(-time.Hour), ptrTime(fx.now.Add(30*time.Minute)))

	sent := fx.handler.CheckAndSendCompletionMessages(context.Background())
	assert.Equal(t, 0, sent)
}

func TestCompletionRollsRecurringForward(t *testing.T) {
	fx := newFixture(t)
	s := fx.addSchedule(fx.now.Add(-2*time.Hour), ptrTime(fx.now.Add(-10*time.Minute)))
	s.RecurrenceRule = "FREQ=WEEKLY"

	sent := fx.handler.CheckAndSendCompletionMessages(context.Background())
	require.Equal(t, 1, sent)

	fx.schedules.mu.Lock()
	defer fx.schedules.mu.Unlock()
	require.Len(t, fx.schedules.schedules, 2)
	for id, next := range fx.schedules.schedules {
		if id == s.ID {
			continue
		}
		assert.Equal(t, s.EventName, next.EventName)
		assert.Equal(t, s.StartTime.AddDate(0, 0, 7), next.StartTime)
		require.NotNil(t, next.EndTime)
		assert.Equal(t, s.EndTime.AddDate(0, 0, 7), *next.EndTime)
		assert.False(t, next.EventCompletedSent)
		assert.False(t, next.IsCompleted)
	}
}

// --- follow-up greetings ---

func TestFollowupOnFirstInteraction(t *testing.T) {
	fx := newFixture(t)
	s := fx.addSchedule(fx.now.Add(-time.Hour), nil)

	session := fx.handler.CheckFirstInteractionAfterMeeting(context.Background(), fx.user.ID, models.ChannelTelegram)
	require.NotNil(t, session)
	assert.Equal(t, models.SessionMeetingFollowupGreeting, session.SessionType)
	got := fx.schedules.get(s.ID)
	assert.True(t, got.FollowupSent)
	assert.True(t, got.IsCompleted)

	again := fx.handler.CheckFirstInteractionAfterMeeting(context.Background(), fx.user.ID, models.ChannelTelegram)
	assert.Nil(t, again)
	assert.Equal(t, 1, fx.sender.sentCount())
}

func TestFollowupStaysOnOriginChannel(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(-time.Hour), nil)

	session := fx.handler.CheckFirstInteractionAfterMeeting(context.Background(), fx.user.ID, models.ChannelWeb)
	assert.Nil(t, session)
	assert.Equal(t, 0, fx.sender.sentCount())
}

func TestFollowupWaitsForDelay(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(-2*time.Minute), nil)

	session := fx.handler.CheckFirstInteractionAfterMeeting(context.Background(), fx.user.ID, models.ChannelTelegram)
	assert.Nil(t, session)
}

func TestFollowupSkipsBeyondHorizon(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(-9*time.Hour), nil)

	session := fx.handler.CheckFirstInteractionAfterMeeting(context.Background(), fx.user.ID, models.ChannelTelegram)
	assert.Nil(t, session)
}

func TestFollowupSkipsMeetingsWithEndTime(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(-time.Hour), ptrTime(fx.now.Add(-30*time.Minute)))

	session := fx.handler.CheckFirstInteractionAfterMeeting(context.Background(), fx.user.ID, models.ChannelTelegram)
	assert.Nil(t, session)
}

// --- time greetings ---

func TestGreetingSentOncePerDayPart(t *testing.T) {
	fx := newFixture(t)

	sent := fx.handler.CheckAndSendTimeGreetings(context.Background())
	assert.Equal(t, 1, sent)

	sent = fx.handler.CheckAndSendTimeGreetings(context.Background())
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, fx.sender.sentCount())
}

func TestGreetingSkipsActiveUser(t *testing.T) {
	fx := newFixture(t)
	recent := fx.now.Add(-5 * time.Minute)
	fx.user.LastActiveAt = &recent

	sent := fx.handler.CheckAndSendTimeGreetings(context.Background())
	assert.Equal(t, 0, sent)
}

func TestConcurrentGreetingPollsSendOnce(t *testing.T) {
	fx := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.handler.CheckAndSendTimeGreetings(context.Background())
		}()
	}
	wg.Wait()

	// The unique session insert is the claim: only one poll cycle wins it.
	assert.Equal(t, 1, fx.sender.sentCount())
	assert.Equal(t, 1, fx.sessions.count())
}

func TestGreetingSendFailureRetries(t *testing.T) {
	fx := newFixture(t)
	fx.sender.failures = 1

	sent := fx.handler.CheckAndSendTimeGreetings(context.Background())
	assert.Equal(t, 0, sent)
	// The failed send gave the claim back, so nothing blocks a retry.
	assert.Equal(t, 0, fx.sessions.count())

	sent = fx.handler.CheckAndSendTimeGreetings(context.Background())
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, fx.sender.sentCount())
	assert.Equal(t, 1, fx.sessions.count())
}

func TestGreetingMatchesDayPart(t *testing.T) {
	fx := newFixture(t) // 15:00 UTC, user in UTC

	fx.handler.CheckAndSendTimeGreetings(context.Background())

	fx.sessions.mu.Lock()
	defer fx.sessions.mu.Unlock()
	require.Len(t, fx.sessions.sessions, 1)
	assert.Equal(t, models.SessionAfternoonGreeting, fx.sessions.sessions[0].SessionType)
}

// --- upcoming listing ---

func TestGetUpcomingMeetings(t *testing.T) {
	fx := newFixture(t)
	later := fx.addSchedule(fx.now.Add(5*time.Hour), nil)
	sooner := fx.addSchedule(fx.now.Add(time.Hour), nil)
	fx.addSchedule(fx.now.Add(48*time.Hour), nil) // outside window

	got, err := fx.handler.GetUpcomingMeetings(context.Background(), fx.user.ID, 24)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sooner.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)
}

func TestGetUpcomingMeetingsDefaultsWindow(t *testing.T) {
	fx := newFixture(t)
	fx.addSchedule(fx.now.Add(2*time.Hour), nil)

	got, err := fx.handler.GetUpcomingMeetings(context.Background(), fx.user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
