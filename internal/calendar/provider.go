// Package calendar abstracts calendar backends behind a Provider interface.
// The scheduler reads busy intervals from a provider and writes new events
// through it, without caring whether the backend is in-process or CalDAV.
package calendar

import (
	"context"
	"time"

	"concierge-automation/internal/models"
)

// Provider is the calendar backend used for availability checks and event
// creation.
type Provider interface {
	// ListEvents returns the user's events that overlap [start, end).
	ListEvents(ctx context.Context, userID string, start, end time.Time) ([]*models.CalendarEvent, error)

	// CreateEvent persists the event and fills in its ID and URL.
	CreateEvent(ctx context.Context, event *models.CalendarEvent) (*models.CalendarEvent, error)
}
