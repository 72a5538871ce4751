package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"concierge-automation/internal/common/errors"
)

var (
	durationMinutesRe = regexp.MustCompile(`(?i)(\d+)\s*(?:minutes|minute|mins|min)\b`)
	durationHoursRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:hours|hour|hrs|hr)\b`)
	emailRe           = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	locationRe        = regexp.MustCompile(`(?i)\b(?:at|in)\s+([A-Z][\w ]{2,40}?)(?:[.,\n]|$)`)
)

// HeuristicExtractor derives event details with regular expressions. It
// needs no network and serves as the default extractor.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (e *HeuristicExtractor) Extract(_ context.Context, text string) (*EventDetails, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.ExtractionError("no schedulable event found in text", nil)
	}

	details := &EventDetails{
		Title:       firstLine(trimmed),
		Description: trimmed,
	}

	if m := durationHoursRe.FindStringSubmatch(trimmed); m != nil {
		if hours, err := strconv.ParseFloat(m[1], 64); err == nil {
			details.DurationMinutes = int(hours * 60)
		}
	} else if m := durationMinutesRe.FindStringSubmatch(trimmed); m != nil {
		if minutes, err := strconv.Atoi(m[1]); err == nil {
			details.DurationMinutes = minutes
		}
	}

	for _, email := range emailRe.FindAllString(trimmed, -1) {
		if !containsString(details.Attendees, email) {
			details.Attendees = append(details.Attendees, email)
		}
	}

	if m := locationRe.FindStringSubmatch(trimmed); m != nil {
		details.Location = strings.TrimSpace(m[1])
	}

	return details, nil
}

func firstLine(text string) string {
	line := text
	if idx := strings.IndexAny(text, "\r\n"); idx >= 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	const maxTitle = 120
	if len(line) > maxTitle {
		line = line[:maxTitle]
	}
	return line
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
