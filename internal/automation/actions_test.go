package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-automation/internal/calendar"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/notify"
	"concierge-automation/internal/scheduler"
)

func TestRenderTemplate(t *testing.T) {
	data := map[string]interface{}{"from": "a@b.example", "subject": "hi"}

	assert.Equal(t, "mail from a@b.example: hi",
		renderTemplate("mail from {{from}}: {{subject}}", data))
	assert.Equal(t, "no placeholders", renderTemplate("no placeholders", data))
	assert.Equal(t, "{{unknown}}", renderTemplate("{{unknown}}", data))
}

func TestNotifyExecutor(t *testing.T) {
	executor := NewNotifyExecutor(notify.NewLogSender(logging.GetGlobalLogger()))

	result, err := executor.Execute(context.Background(), "user1",
		map[string]interface{}{"message": "email from {{from}}"},
		map[string]interface{}{"from": "a@b.example"})
	require.NoError(t, err)
	assert.Equal(t, true, result["sent"])

	_, err = executor.Execute(context.Background(), "user1", map[string]interface{}{}, nil)
	assert.Error(t, err, "missing message")
}

func TestCreateEventExecutor(t *testing.T) {
	provider := calendar.NewMemoryProvider()
	executor := NewCreateEventExecutor(provider)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	result, err := executor.Execute(context.Background(), "user1", map[string]interface{}{
		"title":            "Dentist",
		"start":            start.Format(time.RFC3339),
		"duration_minutes": float64(30),
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result["event_id"])

	events, err := provider.ListEvents(context.Background(), "user1", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, start.Add(30*time.Minute), events[0].End)

	_, err = executor.Execute(context.Background(), "user1",
		map[string]interface{}{"title": "no start"}, nil)
	assert.Error(t, err)
}

func TestSmartScheduleExecutor(t *testing.T) {
	provider := calendar.NewMemoryProvider()
	s := scheduler.New(provider, scheduler.DefaultPolicy(), logging.GetGlobalLogger())
	executor := NewSmartScheduleExecutor(s)

	result, err := executor.Execute(context.Background(), "user1", map[string]interface{}{
		"title":            "Focus block",
		"duration_minutes": float64(60),
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result["event_id"])
	assert.NotEmpty(t, result["start"])
}

func TestWebhookExecutor(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := NewWebhookExecutor()
	result, err := executor.Execute(context.Background(), "user1",
		map[string]interface{}{"url": server.URL},
		map[string]interface{}{"from": "a@b.example"})
	require.NoError(t, err)
	assert.Equal(t, 200, result["status_code"])
	assert.Equal(t, "user1", received["user_id"])

	_, err = executor.Execute(context.Background(), "user1", map[string]interface{}{}, nil)
	assert.Error(t, err, "missing url")
}

func TestWebhookExecutorNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	executor := NewWebhookExecutor()
	_, err := executor.Execute(context.Background(), "user1",
		map[string]interface{}{"url": server.URL}, nil)
	assert.Error(t, err)
}
