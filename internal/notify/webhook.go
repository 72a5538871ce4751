package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"concierge-automation/internal/common/errors"
)

// WebhookSender POSTs notifications as JSON to a fixed URL.
type WebhookSender struct {
	client *http.Client
	url    string
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
	}
}

func (w *WebhookSender) Send(ctx context.Context, notification *Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return errors.InternalError("failed to marshal notification", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return errors.InternalError("failed to build notification request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.ConnectionError("notification webhook request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.ExecutionError(fmt.Sprintf("notification webhook returned status %d", resp.StatusCode), nil)
	}
	return nil
}
