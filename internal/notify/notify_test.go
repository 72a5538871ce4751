package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-automation/internal/common/logging"
)

func TestWebhookSender(t *testing.T) {
	var received Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL)
	err := sender.Send(context.Background(), &Notification{
		UserID:  "user1",
		Subject: "Rule fired",
		Message: "Your dentist appointment was scheduled.",
	})
	require.NoError(t, err)
	assert.Equal(t, "user1", received.UserID)
	assert.Equal(t, "Rule fired", received.Subject)
}

func TestWebhookSenderNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL)
	err := sender.Send(context.Background(), &Notification{UserID: "user1"})
	assert.Error(t, err)
}

func TestSMTPSender(t *testing.T) {
	var sentTo []string
	var sentMsg []byte

	sender := NewSMTPSender(SMTPConfig{
		Host: "smtp.example.com",
		Port: "587",
		From: "concierge@example.com",
	}, logging.GetGlobalLogger())
	sender.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		sentTo = to
		sentMsg = msg
		return nil
	}

	err := sender.Send(context.Background(), &Notification{
		UserID:    "user1",
		Recipient: "user@example.com",
		Subject:   "Approval needed",
		Message:   "A workflow is waiting for your approval.",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"user@example.com"}, sentTo)
	assert.Contains(t, string(sentMsg), "Subject: Approval needed")
	assert.Contains(t, string(sentMsg), "A workflow is waiting for your approval.")
}

func TestSMTPSenderValidation(t *testing.T) {
	logger := logging.GetGlobalLogger()

	sender := NewSMTPSender(SMTPConfig{}, logger)
	err := sender.Send(context.Background(), &Notification{Recipient: "user@example.com"})
	assert.Error(t, err)

	sender = NewSMTPSender(SMTPConfig{Host: "smtp.example.com"}, logger)
	err = sender.Send(context.Background(), &Notification{})
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	sender := NewLogSender(logging.GetGlobalLogger())
	assert.NoError(t, sender.Send(context.Background(), &Notification{
		UserID:  "user1",
		Subject: "hello",
	}))
}
