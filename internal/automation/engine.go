// Package automation owns the rule catalog and executes rules against
// trigger data. Actions are dispatched through a closed executor registry
// keyed by action type; the engine never interprets executor-specific
// payloads beyond recording them.
package automation

import (
	"context"
	"fmt"
	"time"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/common/utils"
	"concierge-automation/internal/models"
	"concierge-automation/internal/storage"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// RuleSpec is the input to AddRule. Enabled defaults to true when nil.
type RuleSpec struct {
	UserID      string              `json:"user_id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Trigger     models.TriggerSpec  `json:"trigger"`
	Actions     []models.ActionSpec `json:"actions"`
	Enabled     *bool               `json:"enabled,omitempty"`
}

// RuleScheduler fires schedule and time-based rules on their own clock.
// The engine notifies it on catalog changes so cron entries track the
// rule's lifecycle.
type RuleScheduler interface {
	ScheduleRule(rule *models.AutomationRule) error
	UnscheduleRule(ruleID string)
}

// Engine executes automation rules and records every invocation in the
// append-only execution log.
type Engine struct {
	store     storage.Storage
	executors map[models.ActionType]ActionExecutor
	scheduler RuleScheduler
	logger    logging.Logger
}

func NewEngine(store storage.Storage, logger logging.Logger, executors ...ActionExecutor) *Engine {
	registry := make(map[models.ActionType]ActionExecutor, len(executors))
	for _, executor := range executors {
		registry[executor.Type()] = executor
	}
	return &Engine{
		store:     store,
		executors: registry,
		logger:    logger,
	}
}

// SetScheduler attaches the scheduler that fires schedule and time-based
// rules. Call before the engine starts taking catalog changes.
func (e *Engine) SetScheduler(scheduler RuleScheduler) {
	e.scheduler = scheduler
}

func scheduledTrigger(rule *models.AutomationRule) bool {
	return rule.Trigger.Type == models.TriggerSchedule || rule.Trigger.Type == models.TriggerTimeBased
}

// syncSchedule reconciles the rule's cron entry with its current state.
// Scheduling failures are logged; the catalog change already happened.
func (e *Engine) syncSchedule(rule *models.AutomationRule) {
	if e.scheduler == nil || !scheduledTrigger(rule) {
		return
	}
	if !rule.Enabled {
		e.scheduler.UnscheduleRule(rule.ID)
		return
	}
	if err := e.scheduler.ScheduleRule(rule); err != nil {
		e.logger.Error("failed to schedule rule", err,
			logging.String("rule_id", rule.ID))
	}
}

// AddRule validates and persists a new rule, returning it with its id
// assigned.
func (e *Engine) AddRule(spec RuleSpec) (*models.AutomationRule, error) {
	if spec.UserID == "" {
		return nil, errors.ValidationError("user id is required")
	}
	if spec.Name == "" {
		return nil, errors.ValidationError("rule name is required")
	}
	if !models.ValidTriggerType(spec.Trigger.Type) {
		return nil, errors.ValidationError(fmt.Sprintf("unknown trigger type %q", spec.Trigger.Type))
	}
	if len(spec.Actions) == 0 {
		return nil, errors.ValidationError("rule requires at least one action")
	}
	for i, action := range spec.Actions {
		if _, ok := e.executors[action.Type]; !ok {
			return nil, errors.ValidationError(fmt.Sprintf("action %d has unknown type %q", i, action.Type))
		}
	}

	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}

	now := time.Now()
	rule := &models.AutomationRule{
		ID:          utils.NewID(),
		UserID:      spec.UserID,
		Name:        spec.Name,
		Description: spec.Description,
		Trigger:     spec.Trigger,
		Actions:     spec.Actions,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.CreateRule(rule); err != nil {
		return nil, err
	}

	e.syncSchedule(rule)

	e.logger.Info("rule added",
		logging.String("rule_id", rule.ID),
		logging.String("user_id", rule.UserID),
		logging.String("trigger_type", string(rule.Trigger.Type)))
	return rule, nil
}

// GetUserRules returns the user's rules in creation order.
func (e *Engine) GetUserRules(userID string) ([]*models.AutomationRule, error) {
	return e.store.GetUserRules(userID)
}

// GetRule returns the rule only when it belongs to the user.
func (e *Engine) GetRule(ruleID, userID string) (*models.AutomationRule, error) {
	rule, err := e.store.GetRule(ruleID)
	if err != nil {
		return nil, err
	}
	if rule.UserID != userID {
		return nil, errors.NotFoundError("rule")
	}
	return rule, nil
}

// SetRuleEnabled flips the enabled flag. Disabled rules fail closed in
// ExecuteRule but remain in the catalog.
func (e *Engine) SetRuleEnabled(ruleID, userID string, enabled bool) (*models.AutomationRule, error) {
	rule, err := e.GetRule(ruleID, userID)
	if err != nil {
		return nil, err
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now()
	if err := e.store.UpdateRule(rule); err != nil {
		return nil, err
	}
	e.syncSchedule(rule)
	return rule, nil
}

// DeleteRule removes the rule when it belongs to the user.
func (e *Engine) DeleteRule(ruleID, userID string) error {
	rule, err := e.GetRule(ruleID, userID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteRule(ruleID); err != nil {
		return err
	}
	if e.scheduler != nil && scheduledTrigger(rule) {
		e.scheduler.UnscheduleRule(ruleID)
	}
	return nil
}

// ExecuteRule runs the rule's actions in order against the trigger data.
// It fails closed, returning false without a log entry, when the rule does
// not exist, is disabled, or belongs to a different user. Every gated-through
// invocation appends exactly one execution log entry; a failing action
// aborts the remaining sequence without rolling back completed actions.
func (e *Engine) ExecuteRule(ctx context.Context, ruleID, userID string, triggerData map[string]interface{}) bool {
	rule, err := e.store.GetRule(ruleID)
	if err != nil {
		e.logger.Debug("rule execution skipped",
			logging.String("rule_id", ruleID),
			logging.String("reason", "not found"))
		return false
	}
	if !rule.Enabled || rule.UserID != userID {
		e.logger.Debug("rule execution skipped",
			logging.String("rule_id", ruleID),
			logging.Bool("enabled", rule.Enabled))
		return false
	}

	entry := &models.ExecutionLogEntry{
		ID:          utils.NewID(),
		RuleID:      rule.ID,
		UserID:      rule.UserID,
		TriggerData: triggerData,
		StartedAt:   time.Now(),
	}

	succeeded := e.runActions(ctx, rule, triggerData, entry)

	entry.CompletedAt = time.Now()
	if succeeded {
		entry.Status = models.ExecutionCompleted
	} else {
		entry.Status = models.ExecutionFailed
	}
	if err := e.store.AppendExecutionLog(entry); err != nil {
		e.logger.Error("failed to append execution log", err,
			logging.String("rule_id", rule.ID))
	}

	if succeeded {
		rule.ExecutionCount++
		executedAt := entry.CompletedAt
		rule.LastExecutedAt = &executedAt
		if err := e.store.UpdateRule(rule); err != nil {
			e.logger.Error("failed to update rule counters", err,
				logging.String("rule_id", rule.ID))
		}
	}

	e.logger.Info("rule executed",
		logging.String("rule_id", rule.ID),
		logging.String("user_id", rule.UserID),
		logging.Bool("success", succeeded))
	return succeeded
}

func (e *Engine) runActions(ctx context.Context, rule *models.AutomationRule, triggerData map[string]interface{}, entry *models.ExecutionLogEntry) bool {
	for i, action := range rule.Actions {
		outcome := models.ActionOutcome{Index: i, Type: action.Type}

		if delay := action.Delay(); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				outcome.Status = models.ExecutionFailed
				outcome.Error = ctx.Err().Error()
				entry.Actions = append(entry.Actions, outcome)
				entry.Error = outcome.Error
				return false
			}
		}

		executor, ok := e.executors[action.Type]
		if !ok {
			outcome.Status = models.ExecutionFailed
			outcome.Error = fmt.Sprintf("no executor registered for action type %q", action.Type)
			entry.Actions = append(entry.Actions, outcome)
			entry.Error = outcome.Error
			return false
		}

		result, err := executor.Execute(ctx, rule.UserID, action.Config, triggerData)
		if err != nil {
			outcome.Status = models.ExecutionFailed
			outcome.Error = err.Error()
			entry.Actions = append(entry.Actions, outcome)
			entry.Error = outcome.Error
			e.logger.Warn("action failed, aborting remaining sequence",
				logging.String("rule_id", rule.ID),
				logging.Int("action_index", i),
				logging.String("action_type", string(action.Type)),
				logging.Err(err))
			return false
		}

		outcome.Status = models.ExecutionCompleted
		outcome.Result = result
		entry.Actions = append(entry.Actions, outcome)
	}
	return true
}

// GetRuleExecutionLogs returns the rule's most recent entries, newest
// first. Limits above the maximum are capped silently.
func (e *Engine) GetRuleExecutionLogs(ruleID string, limit int) ([]*models.ExecutionLogEntry, error) {
	return e.store.GetRuleExecutionLogs(ruleID, utils.ClampLimit(limit, defaultLogLimit, maxLogLimit))
}

// GetUserExecutionLogs returns the user's most recent entries, newest first.
func (e *Engine) GetUserExecutionLogs(userID string, limit int) ([]*models.ExecutionLogEntry, error) {
	return e.store.GetUserExecutionLogs(userID, utils.ClampLimit(limit, defaultLogLimit, maxLogLimit))
}
