// Package scheduler places new events into free calendar slots. Candidate
// intervals are generated in chronological order inside working hours, so
// the first free candidate is always the earliest one.
package scheduler

import (
	"context"
	"time"

	"concierge-automation/internal/calendar"
	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/models"
)

// Policy bounds the slot search. Hours are local, WorkDayEnd exclusive.
type Policy struct {
	WorkDayStart  int
	WorkDayEnd    int
	Granularity   time.Duration
	LookaheadDays int
}

// DefaultPolicy searches 14 days of 08:00 to 20:00 working hours at a
// 30-minute granularity.
func DefaultPolicy() Policy {
	return Policy{
		WorkDayStart:  8,
		WorkDayEnd:    20,
		Granularity:   30 * time.Minute,
		LookaheadDays: 14,
	}
}

// EventRequest describes the event to place.
type EventRequest struct {
	Title           string   `json:"title"`
	DurationMinutes int      `json:"duration_minutes"`
	Type            string   `json:"type,omitempty"`
	Description     string   `json:"description,omitempty"`
	Location        string   `json:"location,omitempty"`
	Attendees       []string `json:"attendees,omitempty"`
}

// Scheduler finds the earliest free slot for a request and persists the
// resulting event through the calendar provider.
type Scheduler struct {
	provider calendar.Provider
	policy   Policy
	logger   logging.Logger
	now      func() time.Time
}

func New(provider calendar.Provider, policy Policy, logger logging.Logger) *Scheduler {
	return &Scheduler{
		provider: provider,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// AutoScheduleEvent returns the created event, or (nil, nil) when no free
// slot exists within the lookahead window. Exhaustion is a normal outcome,
// not an error.
func (s *Scheduler) AutoScheduleEvent(ctx context.Context, userID string, req EventRequest) (*models.CalendarEvent, error) {
	if req.Title == "" {
		return nil, errors.ValidationError("event title is required")
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = time.Hour
	}

	now := s.now()
	// fetch through the end of the last candidate day's working hours so
	// every generated candidate is tested against a visible event set
	last := now.AddDate(0, 0, s.policy.LookaheadDays)
	windowEnd := time.Date(last.Year(), last.Month(), last.Day(),
		s.policy.WorkDayEnd, 0, 0, 0, last.Location())

	existing, err := s.provider.ListEvents(ctx, userID, now, windowEnd)
	if err != nil {
		return nil, err
	}

	slot := s.findSlot(now, duration, existing)
	if slot == nil {
		s.logger.Info("no free slot within lookahead window",
			logging.String("user_id", userID),
			logging.String("title", req.Title),
			logging.Duration("duration", duration))
		return nil, nil
	}

	event := &models.CalendarEvent{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Start:       *slot,
		End:         slot.Add(duration),
		Status:      models.EventStatusConfirmed,
	}
	for _, email := range req.Attendees {
		event.Attendees = append(event.Attendees, models.Attendee{Email: email})
	}

	created, err := s.provider.CreateEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	s.logger.Info("event scheduled",
		logging.String("user_id", userID),
		logging.String("event_id", created.ID),
		logging.Time("start", created.Start))
	return created, nil
}

// findSlot walks candidate starts in chronological order and returns the
// first one whose half-open interval is free.
func (s *Scheduler) findSlot(now time.Time, duration time.Duration, existing []*models.CalendarEvent) *time.Time {
	earliest := alignUp(now, s.policy.Granularity)

	for day := 0; day <= s.policy.LookaheadDays; day++ {
		date := now.AddDate(0, 0, day)
		dayStart := time.Date(date.Year(), date.Month(), date.Day(),
			s.policy.WorkDayStart, 0, 0, 0, date.Location())
		dayEnd := time.Date(date.Year(), date.Month(), date.Day(),
			s.policy.WorkDayEnd, 0, 0, 0, date.Location())

		for candidate := dayStart; !candidate.Add(duration).After(dayEnd); candidate = candidate.Add(s.policy.Granularity) {
			if candidate.Before(earliest) {
				continue
			}
			if isFree(candidate, candidate.Add(duration), existing) {
				slot := candidate
				return &slot
			}
		}
	}
	return nil
}

func isFree(start, end time.Time, existing []*models.CalendarEvent) bool {
	for _, event := range existing {
		if event.Overlaps(start, end) {
			return false
		}
	}
	return true
}

func alignUp(t time.Time, granularity time.Duration) time.Time {
	rounded := t.Truncate(granularity)
	if rounded.Before(t) {
		rounded = rounded.Add(granularity)
	}
	return rounded
}
