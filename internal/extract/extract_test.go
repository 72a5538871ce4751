package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicExtract(t *testing.T) {
	extractor := NewHeuristicExtractor()

	details, err := extractor.Extract(context.Background(),
		"Dentist appointment\nPlease book 30 minutes with dr.smith@clinic.example at Main Street Clinic.")
	require.NoError(t, err)

	assert.Equal(t, "Dentist appointment", details.Title)
	assert.Equal(t, 30, details.DurationMinutes)
	assert.Equal(t, 30*time.Minute, details.Duration())
	assert.Equal(t, []string{"dr.smith@clinic.example"}, details.Attendees)
	assert.Equal(t, "Main Street Clinic", details.Location)
}

func TestHeuristicExtractHours(t *testing.T) {
	extractor := NewHeuristicExtractor()

	details, err := extractor.Extract(context.Background(), "Planning session for 2 hours next week")
	require.NoError(t, err)
	assert.Equal(t, 120, details.DurationMinutes)
}

func TestHeuristicExtractDefaultDuration(t *testing.T) {
	extractor := NewHeuristicExtractor()

	details, err := extractor.Extract(context.Background(), "Quick catch up")
	require.NoError(t, err)
	assert.Equal(t, 0, details.DurationMinutes)
	assert.Equal(t, time.Hour, details.Duration())
}

func TestHeuristicExtractEmptyText(t *testing.T) {
	extractor := NewHeuristicExtractor()

	_, err := extractor.Extract(context.Background(), "   ")
	assert.Error(t, err)
}

func TestParseDetailsJSON(t *testing.T) {
	details, err := parseDetailsJSON(`{"title":"Lunch","duration_minutes":45,"attendees":["a@b.example"]}`)
	require.NoError(t, err)
	assert.Equal(t, "Lunch", details.Title)
	assert.Equal(t, 45, details.DurationMinutes)
}

func TestParseDetailsJSONFenced(t *testing.T) {
	details, err := parseDetailsJSON("```json\n{\"title\":\"Lunch\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Lunch", details.Title)
}

func TestParseDetailsJSONInvalid(t *testing.T) {
	_, err := parseDetailsJSON("not json at all")
	assert.Error(t, err)
}
