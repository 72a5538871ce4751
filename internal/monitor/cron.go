package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"concierge-automation/internal/automation"
	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/models"
)

// CronService fires schedule and time_based rules on their cron
// expressions. One entry per rule; rescheduling replaces the old entry.
type CronService struct {
	engine *automation.Engine
	logger logging.Logger

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewCronService(engine *automation.Engine, logger logging.Logger) *CronService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &CronService{
		engine:  engine,
		logger:  logger.WithFields(logging.String("component", "cron")),
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins dispatching scheduled rules.
func (s *CronService) Start() {
	s.cron.Start()
}

// Stop halts dispatching and waits for in-flight jobs to finish.
func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
}

// ScheduleRule registers a schedule or time_based rule. The cron
// expression comes from the trigger conditions: "cron" holds a standard
// five-field expression; time_based rules may instead supply "time" as
// HH:MM for a daily fire.
func (s *CronService) ScheduleRule(rule *models.AutomationRule) error {
	expr, err := cronExpression(rule)
	if err != nil {
		return err
	}

	ruleID, userID := rule.ID, rule.UserID
	entryID, err := s.cron.AddFunc(expr, func() {
		fired := s.engine.ExecuteRule(context.Background(), ruleID, userID, map[string]interface{}{
			"source":   "schedule",
			"fired_at": time.Now().UTC().Format(time.RFC3339),
		})
		if !fired {
			s.logger.Debug("scheduled rule did not fire",
				logging.String("rule_id", ruleID))
		}
	})
	if err != nil {
		return errors.ValidationError(fmt.Sprintf("invalid cron expression %q", expr))
	}

	s.mu.Lock()
	if old, ok := s.entries[ruleID]; ok {
		s.cron.Remove(old)
	}
	s.entries[ruleID] = entryID
	s.mu.Unlock()

	s.logger.Info("rule scheduled",
		logging.String("rule_id", ruleID),
		logging.String("cron", expr))
	return nil
}

// Restore schedules every enabled schedule-based rule from a persisted
// catalog, typically on process start. Rules with bad expressions are
// logged and skipped so one broken rule does not block the rest.
func (s *CronService) Restore(rules []*models.AutomationRule) {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.Trigger.Type != models.TriggerSchedule && rule.Trigger.Type != models.TriggerTimeBased {
			continue
		}
		if err := s.ScheduleRule(rule); err != nil {
			s.logger.Error("failed to restore scheduled rule", err,
				logging.String("rule_id", rule.ID))
		}
	}
}

// UnscheduleRule removes a rule's cron entry. Unknown rules are a no-op.
func (s *CronService) UnscheduleRule(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[ruleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, ruleID)
	}
}

func cronExpression(rule *models.AutomationRule) (string, error) {
	if rule.Trigger.Type != models.TriggerSchedule && rule.Trigger.Type != models.TriggerTimeBased {
		return "", errors.ValidationError("rule trigger is not schedule-based")
	}
	conditions := rule.Trigger.Conditions
	if expr, ok := conditions["cron"].(string); ok && expr != "" {
		return expr, nil
	}
	if at, ok := conditions["time"].(string); ok && at != "" {
		parts := strings.SplitN(at, ":", 2)
		if len(parts) == 2 {
			t, err := time.Parse("15:04", at)
			if err == nil {
				return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
			}
		}
		return "", errors.ValidationError(fmt.Sprintf("invalid time %q, expected HH:MM", at))
	}
	return "", errors.ValidationError("schedule trigger needs a cron or time condition")
}
