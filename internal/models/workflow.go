package models

import (
	"time"
)

// StepType identifies one pipeline step in a workflow definition
type StepType string

const (
	StepExtract     StepType = "extract"
	StepSchedule    StepType = "schedule"
	StepCreateEvent StepType = "create_event"
	StepNotify      StepType = "notify"
	StepApproval    StepType = "approval"
)

// StepStatus is the per-step outcome within a workflow execution
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepTimedOut  StepStatus = "timeout"
	StepSkipped   StepStatus = "skipped"
)

// StepDefinition is one step of a workflow's ordered pipeline. A step
// with RequiresApproval pauses the execution before it runs and resumes
// only through an explicit approval decision.
type StepDefinition struct {
	ID               string                 `json:"id"`
	Type             StepType               `json:"type"`
	Config           map[string]interface{} `json:"config,omitempty"`
	RequiresApproval bool                   `json:"requires_approval,omitempty"`
}

// Workflow is a named, user-owned step pipeline bound to a trigger source
type Workflow struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	UserID string           `json:"user_id"`
	Steps  []StepDefinition `json:"steps"`
}

// WorkflowStep records one executed (or pending) step of an execution
type WorkflowStep struct {
	ID     string                 `json:"id"`
	Type   StepType               `json:"type"`
	Status StepStatus             `json:"status"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// CalendarEventRef points at an event materialized by a workflow
type CalendarEventRef struct {
	EventID  string `json:"event_id"`
	EventURL string `json:"event_url,omitempty"`
}

// WorkflowExecution is one concrete run of a workflow. While in
// ExecutionAwaiting it carries exactly one outstanding approval token id;
// consuming the token is a single irreversible transition.
type WorkflowExecution struct {
	ID            string                 `json:"id"`
	WorkflowID    string                 `json:"workflow_id"`
	WorkflowName  string                 `json:"workflow_name"`
	UserID        string                 `json:"user_id"`
	Status        ExecutionStatus        `json:"status"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       *time.Time             `json:"end_time,omitempty"`
	Steps         []WorkflowStep         `json:"steps"`
	TriggerData   map[string]interface{} `json:"trigger_data,omitempty"`
	Result        map[string]interface{} `json:"result,omitempty"`
	CalendarEvent *CalendarEventRef      `json:"calendar_event,omitempty"`

	// PendingTokenID is the jti of the outstanding approval token, empty
	// unless Status is ExecutionAwaiting.
	PendingTokenID string `json:"-"`
	// ResumeIndex is the index of the gated step awaiting a decision.
	ResumeIndex int `json:"-"`
}
