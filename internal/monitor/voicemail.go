package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"concierge-automation/internal/common/errors"
)

// Voicemail is one transcribed message returned by the provider.
type Voicemail struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Transcript string    `json:"transcript"`
	ReceivedAt time.Time `json:"received_at"`
}

// TriggerData flattens the voicemail into a workflow trigger payload.
func (v *Voicemail) TriggerData() map[string]interface{} {
	return map[string]interface{}{
		"from":       v.From,
		"transcript": v.Transcript,
		"text":       v.Transcript,
	}
}

// VoicemailClient fetches new transcribed voicemails. Implementations
// are polled by the voicemail monitor loop.
type VoicemailClient interface {
	FetchNew(ctx context.Context) ([]*Voicemail, error)
	Close() error
}

// VoicemailConfig holds the provider endpoint for one account.
type VoicemailConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

func (c *VoicemailConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.ConfigError("voicemail endpoint is required")
	}
	return nil
}

// HTTPVoicemailClient polls a REST endpoint that returns transcribed
// voicemails newer than a cursor. The cursor advances only after a
// successful response so a failed tick re-fetches the same window.
type HTTPVoicemailClient struct {
	config VoicemailConfig
	client *http.Client
	since  time.Time
}

func NewHTTPVoicemailClient(config VoicemailConfig) (*HTTPVoicemailClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HTTPVoicemailClient{
		config: config,
		client: &http.Client{Timeout: 15 * time.Second},
		since:  time.Now().Add(-24 * time.Hour),
	}, nil
}

func (c *HTTPVoicemailClient) FetchNew(ctx context.Context) ([]*Voicemail, error) {
	url := fmt.Sprintf("%s?since=%s", c.config.Endpoint, c.since.UTC().Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.InternalError("failed to build voicemail request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("voicemail provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.ConnectionError(
			fmt.Sprintf("voicemail provider returned status %d", resp.StatusCode), nil)
	}

	var payload struct {
		Voicemails []*Voicemail `json:"voicemails"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.InternalError("failed to decode voicemail response", err)
	}

	for _, vm := range payload.Voicemails {
		if vm.ReceivedAt.After(c.since) {
			c.since = vm.ReceivedAt
		}
	}
	return payload.Voicemails, nil
}

func (c *HTTPVoicemailClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
