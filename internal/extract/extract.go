// Package extract turns free-form trigger text, such as an email body or a
// voicemail transcript, into structured event details the scheduler can act
// on. Two implementations exist: an LLM-backed extractor and a regex
// heuristic used as the default and as a fallback.
package extract

import (
	"context"
	"time"
)

// EventDetails is the structured output of an extraction.
type EventDetails struct {
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Attendees       []string   `json:"attendees,omitempty"`
	PreferredStart  *time.Time `json:"preferred_start,omitempty"`
}

// Duration returns the requested event length, defaulting to one hour when
// the text did not specify one.
func (d *EventDetails) Duration() time.Duration {
	if d.DurationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(d.DurationMinutes) * time.Minute
}

// Extractor produces event details from unstructured text.
type Extractor interface {
	Extract(ctx context.Context, text string) (*EventDetails, error)
}
