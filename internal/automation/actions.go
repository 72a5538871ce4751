package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"concierge-automation/internal/calendar"
	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/models"
	"concierge-automation/internal/notify"
	"concierge-automation/internal/scheduler"
)

// ActionExecutor runs one action type. Executors receive the action config
// and the trigger data, and must be idempotent: action sequences are
// best-effort and completed actions are never rolled back.
type ActionExecutor interface {
	Type() models.ActionType
	Execute(ctx context.Context, userID string, config, triggerData map[string]interface{}) (map[string]interface{}, error)
}

// configString reads an optional string value from an action config.
func configString(config map[string]interface{}, key string) string {
	if value, ok := config[key].(string); ok {
		return value
	}
	return ""
}

func configInt(config map[string]interface{}, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// renderTemplate substitutes {{key}} placeholders with trigger data values,
// letting rule configs reference the matched email's fields.
func renderTemplate(text string, triggerData map[string]interface{}) string {
	for key, value := range triggerData {
		placeholder := "{{" + key + "}}"
		if strings.Contains(text, placeholder) {
			text = strings.ReplaceAll(text, placeholder, fmt.Sprintf("%v", value))
		}
	}
	return text
}

// NotifyExecutor sends a notification through the configured channel.
type NotifyExecutor struct {
	sender notify.Sender
}

func NewNotifyExecutor(sender notify.Sender) *NotifyExecutor {
	return &NotifyExecutor{sender: sender}
}

func (e *NotifyExecutor) Type() models.ActionType {
	return models.ActionNotify
}

func (e *NotifyExecutor) Execute(ctx context.Context, userID string, config, triggerData map[string]interface{}) (map[string]interface{}, error) {
	message := renderTemplate(configString(config, "message"), triggerData)
	if message == "" {
		return nil, errors.ValidationError("notify action requires a message")
	}

	notification := &notify.Notification{
		UserID:    userID,
		Recipient: configString(config, "recipient"),
		Subject:   renderTemplate(configString(config, "subject"), triggerData),
		Message:   message,
		Metadata:  triggerData,
	}
	if err := e.sender.Send(ctx, notification); err != nil {
		return nil, err
	}
	return map[string]interface{}{"sent": true}, nil
}

// CreateEventExecutor creates a calendar event at an explicit time.
type CreateEventExecutor struct {
	provider calendar.Provider
}

func NewCreateEventExecutor(provider calendar.Provider) *CreateEventExecutor {
	return &CreateEventExecutor{provider: provider}
}

func (e *CreateEventExecutor) Type() models.ActionType {
	return models.ActionCreateEvent
}

func (e *CreateEventExecutor) Execute(ctx context.Context, userID string, config, triggerData map[string]interface{}) (map[string]interface{}, error) {
	title := renderTemplate(configString(config, "title"), triggerData)
	if title == "" {
		return nil, errors.ValidationError("create_event action requires a title")
	}

	start, err := time.Parse(time.RFC3339, configString(config, "start"))
	if err != nil {
		return nil, errors.ValidationError("create_event action requires an RFC 3339 start time")
	}

	durationMinutes := configInt(config, "duration_minutes")
	if durationMinutes <= 0 {
		durationMinutes = 60
	}

	event, err := e.provider.CreateEvent(ctx, &models.CalendarEvent{
		UserID:      userID,
		Title:       title,
		Description: renderTemplate(configString(config, "description"), triggerData),
		Location:    configString(config, "location"),
		Start:       start,
		End:         start.Add(time.Duration(durationMinutes) * time.Minute),
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

// SmartScheduleExecutor places an event into the earliest free slot.
type SmartScheduleExecutor struct {
	scheduler *scheduler.Scheduler
}

func NewSmartScheduleExecutor(s *scheduler.Scheduler) *SmartScheduleExecutor {
	return &SmartScheduleExecutor{scheduler: s}
}

func (e *SmartScheduleExecutor) Type() models.ActionType {
	return models.ActionSmartSchedule
}

func (e *SmartScheduleExecutor) Execute(ctx context.Context, userID string, config, triggerData map[string]interface{}) (map[string]interface{}, error) {
	request := scheduler.EventRequest{
		Title:           renderTemplate(configString(config, "title"), triggerData),
		DurationMinutes: configInt(config, "duration_minutes"),
		Type:            configString(config, "type"),
		Description:     renderTemplate(configString(config, "description"), triggerData),
		Location:        configString(config, "location"),
	}

	event, err := e.scheduler.AutoScheduleEvent(ctx, userID, request)
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

// WebhookExecutor calls an external HTTP endpoint with the trigger data.
type WebhookExecutor struct {
	client *http.Client
}

func NewWebhookExecutor() *WebhookExecutor {
	return &WebhookExecutor{client: &http.Client{Timeout: 15 * time.Second}}
}

func (e *WebhookExecutor) Type() models.ActionType {
	return models.ActionWebhook
}

func (e *WebhookExecutor) Execute(ctx context.Context, userID string, config, triggerData map[string]interface{}) (map[string]interface{}, error) {
	url := configString(config, "url")
	if url == "" {
		return nil, errors.ValidationError("webhook action requires a url")
	}
	method := strings.ToUpper(configString(config, "method"))
	if method == "" {
		method = http.MethodPost
	}

	payload := map[string]interface{}{
		"user_id":      userID,
		"trigger_data": triggerData,
	}
	if body, ok := config["payload"].(map[string]interface{}); ok {
		payload["payload"] = body
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.InternalError("failed to marshal webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid webhook request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("webhook request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.ExecutionError(fmt.Sprintf("webhook returned status %d", resp.StatusCode), nil)
	}
	return map[string]interface{}{"status_code": resp.StatusCode}, nil
}
