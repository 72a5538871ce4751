package models

import (
	"time"
)

// InboundEmail is one observed email fed into the trigger matcher
type InboundEmail struct {
	UserID     string    `json:"user_id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	MessageID  string    `json:"message_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// TriggerData flattens the email into the payload recorded on
// execution log entries
func (e *InboundEmail) TriggerData() map[string]interface{} {
	return map[string]interface{}{
		"from":    e.From,
		"subject": e.Subject,
		"body":    e.Body,
	}
}
