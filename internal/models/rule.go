// Package models defines the shared data model for the automation core:
// rules, triggers, execution records, workflow executions, calendar
// events and monitors.
package models

import (
	"time"
)

// TriggerType identifies the condition class that causes a rule to fire
type TriggerType string

const (
	TriggerSchedule      TriggerType = "schedule"
	TriggerEmail         TriggerType = "email"
	TriggerSMS           TriggerType = "sms"
	TriggerCalendarEvent TriggerType = "calendar_event"
	TriggerWebhook       TriggerType = "webhook"
	TriggerTimeBased     TriggerType = "time_based"
)

// ValidTriggerType reports whether t is a known trigger type
func ValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerSchedule, TriggerEmail, TriggerSMS, TriggerCalendarEvent,
		TriggerWebhook, TriggerTimeBased:
		return true
	}
	return false
}

// ActionType identifies one unit of work performed when a rule fires
type ActionType string

const (
	ActionNotify        ActionType = "notify"
	ActionCreateEvent   ActionType = "create_event"
	ActionSmartSchedule ActionType = "smart_schedule"
	ActionWebhook       ActionType = "webhook"
)

// TriggerSpec describes when a rule fires. Conditions carry the
// type-specific payload (email patterns, cron expression, webhook path);
// unknown keys are preserved as-is so dynamic configs survive round-trips.
type TriggerSpec struct {
	Type       TriggerType            `json:"type"`
	Conditions map[string]interface{} `json:"conditions,omitempty"`
}

// ActionSpec is one step in a rule's ordered action sequence. DelayMS
// delays only this action's start, not the whole engine.
type ActionSpec struct {
	Type    ActionType             `json:"type"`
	Config  map[string]interface{} `json:"config,omitempty"`
	DelayMS int64                  `json:"delay_ms,omitempty"`
}

// Delay returns the action's start delay as a duration
func (a ActionSpec) Delay() time.Duration {
	return time.Duration(a.DelayMS) * time.Millisecond
}

// AutomationRule is a user-owned trigger→actions binding. Disabling sets
// Enabled=false; rules are never deleted implicitly.
type AutomationRule struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Trigger        TriggerSpec  `json:"trigger"`
	Actions        []ActionSpec `json:"actions"`
	Enabled        bool         `json:"enabled"`
	ExecutionCount int          `json:"execution_count"`
	LastExecutedAt *time.Time   `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// EmailTrigger binds a set of match patterns to a rule. Patterns are
// tested against an inbound email's sender, subject and body with OR
// semantics; any one match fires the rule.
type EmailTrigger struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Patterns  []string  `json:"patterns"`
	RuleID    string    `json:"rule_id"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}
