// Package storage defines the persistence contract for rules, email
// triggers, execution logs, workflow executions and monitors, with
// lookup-by-id, lookup-by-user and lookup-by-parent access patterns.
package storage

import (
	"concierge-automation/internal/models"
)

// Storage is the durable store consumed by the engines. Implementations
// must be safe for concurrent use.
type Storage interface {
	// Automation rules
	CreateRule(rule *models.AutomationRule) error
	GetRule(id string) (*models.AutomationRule, error)
	GetUserRules(userID string) ([]*models.AutomationRule, error)
	// GetAllRules returns every rule across users, used to rebuild cron
	// entries on startup.
	GetAllRules() ([]*models.AutomationRule, error)
	UpdateRule(rule *models.AutomationRule) error
	DeleteRule(id string) error

	// Email triggers
	CreateEmailTrigger(trigger *models.EmailTrigger) error
	GetEmailTrigger(id string) (*models.EmailTrigger, error)
	GetUserEmailTriggers(userID string) ([]*models.EmailTrigger, error)
	DeleteEmailTrigger(id string) (bool, error)

	// Execution logs (append-only)
	AppendExecutionLog(entry *models.ExecutionLogEntry) error
	// GetRuleExecutionLogs returns the most recent entries for a rule,
	// newest first, at most limit entries.
	GetRuleExecutionLogs(ruleID string, limit int) ([]*models.ExecutionLogEntry, error)
	// GetUserExecutionLogs returns the most recent entries for a user,
	// newest first, at most limit entries.
	GetUserExecutionLogs(userID string, limit int) ([]*models.ExecutionLogEntry, error)

	// Workflow executions
	CreateWorkflowExecution(exec *models.WorkflowExecution) error
	UpdateWorkflowExecution(exec *models.WorkflowExecution) error
	GetWorkflowExecution(id string) (*models.WorkflowExecution, error)
	GetUserWorkflowExecutions(userID string) ([]*models.WorkflowExecution, error)
	// GetWorkflowExecutionByToken resolves a pending approval token id to
	// its execution, or a not-found error if no execution carries it.
	GetWorkflowExecutionByToken(tokenID string) (*models.WorkflowExecution, error)

	// Monitors
	CreateMonitor(monitor *models.Monitor) error
	UpdateMonitor(monitor *models.Monitor) error
	GetMonitor(id string) (*models.Monitor, error)
	GetUserMonitors(userID string) ([]*models.Monitor, error)

	Close() error
	Health() error
}

// Factory creates storage backends by type
type Factory interface {
	Create(config Config) (Storage, error)
	GetType() string
}

// Config is the backend-specific connection configuration
type Config interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}
