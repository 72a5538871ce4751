package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-automation/internal/calendar"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/models"
)

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *calendar.MemoryProvider) {
	t.Helper()
	provider := calendar.NewMemoryProvider()
	s := New(provider, DefaultPolicy(), logging.GetGlobalLogger())
	s.now = func() time.Time { return now }
	return s, provider
}

// Monday 2026-03-02, 07:00 UTC, before working hours.
var monday7am = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func TestAutoScheduleEmptyCalendar(t *testing.T) {
	s, _ := newTestScheduler(t, monday7am)

	event, err := s.AutoScheduleEvent(context.Background(), "user1", EventRequest{
		Title:           "Dentist",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.NotNil(t, event)

	// first candidate is the start of the working day
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), event.Start)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), event.End)
}

func TestAutoScheduleSkipsBusySlots(t *testing.T) {
	s, provider := newTestScheduler(t, monday7am)

	// 08:00-09:30 is busy
	_, err := provider.CreateEvent(context.Background(), &models.CalendarEvent{
		UserID: "user1",
		Title:  "Standup",
		Start:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	event, err := s.AutoScheduleEvent(context.Background(), "user1", EventRequest{
		Title:           "Dentist",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), event.Start)
}

func TestAutoScheduleBackToBackAllowed(t *testing.T) {
	s, provider := newTestScheduler(t, monday7am)

	_, err := provider.CreateEvent(context.Background(), &models.CalendarEvent{
		UserID: "user1",
		Title:  "Standup",
		Start:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// half-open intervals: an event ending at 09:00 does not block one
	// starting at 09:00
	event, err := s.AutoScheduleEvent(context.Background(), "user1", EventRequest{
		Title:           "Review",
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), event.Start)
}

func TestAutoScheduleStartsAfterNow(t *testing.T) {
	// 10:10 rounds up to the next half-hour boundary
	s, _ := newTestScheduler(t, time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC))

	event, err := s.AutoScheduleEvent(context.Background(), "user1", EventRequest{
		Title:           "Call",
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), event.Start)
}

func TestAutoScheduleRespectsWorkDayEnd(t *testing.T) {
	// 19:40: no 60-minute slot fits before 20:00, so the event lands on
	// the next morning
	s, _ := newTestScheduler(t, time.Date(2026, 3, 2, 19, 40, 0, 0, time.UTC))

	event, err := s.AutoScheduleEvent(context.Background(), "user1", EventRequest{
		Title:           "Dinner prep",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), event.Start)
}

func TestAutoScheduleExhaustion(t *testing.T) {
	s, provider := newTestScheduler(t, monday7am)

	// fill every working day of the lookahead window
	for day := 0; day <= DefaultPolicy().LookaheadDays; day++ {
		date := monday7am.AddDate(0, 0, day)
		_, err := provider.CreateEvent(context.Background(), &models.CalendarEvent{
			UserID: "user1",
			Title:  "Busy",
			Start:  time.Date(date.Year(), date.Month(), date.Day(), 8, 0, 0, 0, time.UTC),
			End:    time.Date(date.Year(), date.Month(), date.Day(), 20, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	event, err := s.AutoScheduleEvent(context.Background(), "user1", EventRequest{
		Title:           "Vacation planning",
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestAutoScheduleSeesFinalLookaheadDay(t *testing.T) {
	s, provider := newTestScheduler(t, monday7am)
	ctx := context.Background()
	lookahead := DefaultPolicy().LookaheadDays

	// every earlier day is fully booked
	for day := 0; day < lookahead; day++ {
		date := monday7am.AddDate(0, 0, day)
		_, err := provider.CreateEvent(ctx, &models.CalendarEvent{
			UserID: "user1",
			Title:  "Busy",
			Start:  time.Date(date.Year(), date.Month(), date.Day(), 8, 0, 0, 0, time.UTC),
			End:    time.Date(date.Year(), date.Month(), date.Day(), 20, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	// the last lookahead day is booked 08:00-10:00 and 10:30-11:30; both
	// events sit after now+lookahead and must still count as busy
	lastDay := monday7am.AddDate(0, 0, lookahead)
	at := func(hour, min int) time.Time {
		return time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), hour, min, 0, 0, time.UTC)
	}
	for _, span := range []struct{ start, end time.Time }{
		{at(8, 0), at(10, 0)},
		{at(10, 30), at(11, 30)},
	} {
		_, err := provider.CreateEvent(ctx, &models.CalendarEvent{
			UserID: "user1",
			Title:  "Busy",
			Start:  span.start,
			End:    span.end,
		})
		require.NoError(t, err)
	}

	event, err := s.AutoScheduleEvent(ctx, "user1", EventRequest{
		Title:           "Checkup",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.NotNil(t, event)

	// 10:00-11:00 collides with the 10:30 meeting; the first free hour is
	// 11:30
	assert.Equal(t, time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), 11, 30, 0, 0, time.UTC), event.Start)
}

func TestAutoScheduleRequiresTitle(t *testing.T) {
	s, _ := newTestScheduler(t, monday7am)

	_, err := s.AutoScheduleEvent(context.Background(), "user1", EventRequest{DurationMinutes: 30})
	assert.Error(t, err)
}

func TestAutoScheduleCreatedEventNeverOverlaps(t *testing.T) {
	s, provider := newTestScheduler(t, monday7am)
	ctx := context.Background()

	// schedule repeatedly; every new event must be disjoint from the rest
	for i := 0; i < 10; i++ {
		event, err := s.AutoScheduleEvent(ctx, "user1", EventRequest{
			Title:           "Block",
			DurationMinutes: 90,
		})
		require.NoError(t, err)
		require.NotNil(t, event)
	}

	events, err := provider.ListEvents(ctx, "user1", monday7am, monday7am.AddDate(0, 0, 15))
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, a := range events {
		for j, b := range events {
			if i == j {
				continue
			}
			assert.False(t, a.Overlaps(b.Start, b.End),
				"events %d and %d overlap", i, j)
		}
	}
}
