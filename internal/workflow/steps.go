package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"concierge-automation/internal/calendar"
	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/extract"
	"concierge-automation/internal/models"
	"concierge-automation/internal/notify"
	"concierge-automation/internal/scheduler"
)

// StepExecutor runs one step type. State is the accumulated pipeline data:
// the execution's trigger data merged with every completed step's result,
// so later steps can consume earlier outputs.
type StepExecutor interface {
	Type() models.StepType
	Execute(ctx context.Context, userID string, step models.StepDefinition, state map[string]interface{}) (map[string]interface{}, error)
}

func stateString(state map[string]interface{}, key string) string {
	if value, ok := state[key].(string); ok {
		return value
	}
	return ""
}

func stateInt(state map[string]interface{}, key string) int {
	switch v := state[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func render(text string, state map[string]interface{}) string {
	for key, value := range state {
		placeholder := "{{" + key + "}}"
		if strings.Contains(text, placeholder) {
			text = strings.ReplaceAll(text, placeholder, fmt.Sprintf("%v", value))
		}
	}
	return text
}

// ExtractStep turns free text from the trigger into structured event
// details. An unparseable text is a step failure, not a crash.
type ExtractStep struct {
	extractor extract.Extractor
}

func NewExtractStep(extractor extract.Extractor) *ExtractStep {
	return &ExtractStep{extractor: extractor}
}

func (s *ExtractStep) Type() models.StepType {
	return models.StepExtract
}

func (s *ExtractStep) Execute(ctx context.Context, _ string, step models.StepDefinition, state map[string]interface{}) (map[string]interface{}, error) {
	text := stateString(state, "text")
	if text == "" {
		text = stateString(state, "transcript")
	}
	if text == "" {
		text = stateString(state, "body")
	}
	if override, ok := step.Config["text"].(string); ok && override != "" {
		text = override
	}
	if text == "" {
		return nil, errors.ExtractionError("no text available to extract from", nil)
	}

	details, err := s.extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"title":            details.Title,
		"duration_minutes": details.DurationMinutes,
	}
	if details.Description != "" {
		result["description"] = details.Description
	}
	if details.Location != "" {
		result["location"] = details.Location
	}
	if len(details.Attendees) > 0 {
		result["attendees"] = details.Attendees
	}
	if details.PreferredStart != nil {
		result["preferred_start"] = details.PreferredStart.Format(time.RFC3339)
	}
	return result, nil
}

// ScheduleStep places an event into the earliest free slot using details
// from the pipeline state, with config overrides.
type ScheduleStep struct {
	scheduler *scheduler.Scheduler
}

func NewScheduleStep(s *scheduler.Scheduler) *ScheduleStep {
	return &ScheduleStep{scheduler: s}
}

func (s *ScheduleStep) Type() models.StepType {
	return models.StepSchedule
}

func (s *ScheduleStep) Execute(ctx context.Context, userID string, step models.StepDefinition, state map[string]interface{}) (map[string]interface{}, error) {
	request := scheduler.EventRequest{
		Title:           stateString(state, "title"),
		DurationMinutes: stateInt(state, "duration_minutes"),
		Description:     stateString(state, "description"),
		Location:        stateString(state, "location"),
	}
	if title, ok := step.Config["title"].(string); ok && title != "" {
		request.Title = render(title, state)
	}
	if minutes, ok := step.Config["duration_minutes"].(float64); ok && minutes > 0 {
		request.DurationMinutes = int(minutes)
	}
	if attendees, ok := state["attendees"].([]string); ok {
		request.Attendees = attendees
	}

	event, err := s.scheduler.AutoScheduleEvent(ctx, userID, request)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, errors.ExecutionError("unable to find a free time slot", nil)
	}
	return map[string]interface{}{
		"event_id":  event.ID,
		"event_url": event.URL,
		"start":     event.Start.Format(time.RFC3339),
		"end":       event.End.Format(time.RFC3339),
	}, nil
}

// CreateEventStep creates an event at an explicit time instead of
// searching for a slot.
type CreateEventStep struct {
	provider calendar.Provider
}

func NewCreateEventStep(provider calendar.Provider) *CreateEventStep {
	return &CreateEventStep{provider: provider}
}

func (s *CreateEventStep) Type() models.StepType {
	return models.StepCreateEvent
}

func (s *CreateEventStep) Execute(ctx context.Context, userID string, step models.StepDefinition, state map[string]interface{}) (map[string]interface{}, error) {
	title := stateString(state, "title")
	if override, ok := step.Config["title"].(string); ok && override != "" {
		title = render(override, state)
	}
	if title == "" {
		return nil, errors.ValidationError("create_event step requires a title")
	}

	startValue := stateString(state, "preferred_start")
	if override, ok := step.Config["start"].(string); ok && override != "" {
		startValue = override
	}
	start, err := time.Parse(time.RFC3339, startValue)
	if err != nil {
		return nil, errors.ValidationError("create_event step requires an RFC 3339 start time")
	}

	minutes := stateInt(state, "duration_minutes")
	if override, ok := step.Config["duration_minutes"].(float64); ok && override > 0 {
		minutes = int(override)
	}
	if minutes <= 0 {
		minutes = 60
	}

	event, err := s.provider.CreateEvent(ctx, &models.CalendarEvent{
		UserID:      userID,
		Title:       title,
		Description: stateString(state, "description"),
		Location:    stateString(state, "location"),
		Start:       start,
		End:         start.Add(time.Duration(minutes) * time.Minute),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"event_id":  event.ID,
		"event_url": event.URL,
		"start":     event.Start.Format(time.RFC3339),
	}, nil
}

// NotifyStep informs the user about pipeline progress or outcomes.
type NotifyStep struct {
	sender notify.Sender
}

func NewNotifyStep(sender notify.Sender) *NotifyStep {
	return &NotifyStep{sender: sender}
}

func (s *NotifyStep) Type() models.StepType {
	return models.StepNotify
}

func (s *NotifyStep) Execute(ctx context.Context, userID string, step models.StepDefinition, state map[string]interface{}) (map[string]interface{}, error) {
	message, _ := step.Config["message"].(string)
	if message == "" {
		return nil, errors.ValidationError("notify step requires a message")
	}

	subject, _ := step.Config["subject"].(string)
	recipient, _ := step.Config["recipient"].(string)
	err := s.sender.Send(ctx, &notify.Notification{
		UserID:    userID,
		Recipient: recipient,
		Subject:   render(subject, state),
		Message:   render(message, state),
		Metadata:  state,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"sent": true}, nil
}
