package models

import (
	"time"
)

// ExecutionStatus is the overall outcome of one rule or workflow run
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionAwaiting  ExecutionStatus = "awaiting_approval"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionTimeout   ExecutionStatus = "timeout"
)

// Terminal reports whether the status admits no further transitions
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionTimeout:
		return true
	}
	return false
}

// ActionOutcome records the result of one action within a rule execution
type ActionOutcome struct {
	Index  int                    `json:"index"`
	Type   ActionType             `json:"type"`
	Status ExecutionStatus        `json:"status"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// ExecutionLogEntry is the append-only record of one rule invocation.
// Entries are immutable once written; rule counter updates are a side
// effect of the engine call, never a log mutation.
type ExecutionLogEntry struct {
	ID          string                 `json:"id"`
	RuleID      string                 `json:"rule_id"`
	UserID      string                 `json:"user_id"`
	TriggerData map[string]interface{} `json:"trigger_data,omitempty"`
	Actions     []ActionOutcome        `json:"actions"`
	Status      ExecutionStatus        `json:"status"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}
