// Package notify delivers user-facing notifications produced by rule actions
// and workflow steps. Senders exist for SMTP email, webhook POSTs and a
// log-only fallback for deployments without an outbound channel.
package notify

import "context"

// Notification is a single message to deliver.
type Notification struct {
	UserID    string                 `json:"user_id"`
	Recipient string                 `json:"recipient,omitempty"`
	Subject   string                 `json:"subject"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Sender delivers notifications over one channel.
type Sender interface {
	Send(ctx context.Context, notification *Notification) error
}
