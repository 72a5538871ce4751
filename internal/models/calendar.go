package models

import (
	"time"
)

// CalendarEvent represents a unified calendar event structure regardless
// of provider (internal, CalDAV, Google, Outlook)
type CalendarEvent struct {
	ID          string     `json:"id"`
	UID         string     `json:"uid,omitempty"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Status      string     `json:"status,omitempty"` // confirmed, tentative, cancelled
	Attendees   []Attendee `json:"attendees,omitempty"`
	URL         string     `json:"url,omitempty"`
	Source      string     `json:"source,omitempty"` // internal, caldav
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
}

// Overlaps reports whether the event's [Start, End) interval intersects
// [start, end)
func (e *CalendarEvent) Overlaps(start, end time.Time) bool {
	return start.Before(e.End) && e.Start.Before(end)
}

// Attendee represents an event attendee
type Attendee struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status,omitempty"` // accepted, declined, tentative, needs-action
	Required bool   `json:"required,omitempty"`
}

// CalendarEventStatus constants
const (
	EventStatusConfirmed = "confirmed"
	EventStatusTentative = "tentative"
	EventStatusCancelled = "cancelled"
)
