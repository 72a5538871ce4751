package automation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/common/utils"
	"concierge-automation/internal/models"
	"concierge-automation/internal/storage"
)

// TriggerSpec is the input to AddTrigger. Enabled defaults to true when
// nil.
type TriggerSpec struct {
	UserID   string   `json:"user_id"`
	Patterns []string `json:"patterns"`
	RuleID   string   `json:"rule_id"`
	Enabled  *bool    `json:"enabled,omitempty"`
}

// Matcher decides, for one inbound email, which rules to fire. Patterns
// are tested against sender, subject and body with OR semantics; any one
// matching pattern fires the trigger's rule.
type Matcher struct {
	store  storage.Storage
	engine *Engine
	logger logging.Logger
}

func NewMatcher(store storage.Storage, engine *Engine, logger logging.Logger) *Matcher {
	return &Matcher{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// AddTrigger validates and persists a new email trigger.
func (m *Matcher) AddTrigger(spec TriggerSpec) (*models.EmailTrigger, error) {
	if spec.UserID == "" {
		return nil, errors.ValidationError("user id is required")
	}
	if len(spec.Patterns) == 0 {
		return nil, errors.ValidationError("trigger requires at least one pattern")
	}
	if spec.RuleID == "" {
		return nil, errors.ValidationError("trigger requires a rule id")
	}

	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}

	trigger := &models.EmailTrigger{
		ID:        utils.NewID(),
		UserID:    spec.UserID,
		Patterns:  spec.Patterns,
		RuleID:    spec.RuleID,
		Enabled:   enabled,
		CreatedAt: time.Now(),
	}
	if err := m.store.CreateEmailTrigger(trigger); err != nil {
		return nil, err
	}

	m.logger.Info("email trigger added",
		logging.String("trigger_id", trigger.ID),
		logging.String("user_id", trigger.UserID),
		logging.String("rule_id", trigger.RuleID))
	return trigger, nil
}

// DeleteTrigger removes the trigger, returning false when it did not
// exist. Absence is a benign negative result, not an error.
func (m *Matcher) DeleteTrigger(triggerID string) (bool, error) {
	return m.store.DeleteEmailTrigger(triggerID)
}

// GetUserTriggers returns the user's triggers in creation order.
func (m *Matcher) GetUserTriggers(userID string) ([]*models.EmailTrigger, error) {
	return m.store.GetUserEmailTriggers(userID)
}

// ProcessEmail tests the email against every enabled trigger owned by its
// user and fires the matching rules. Multiple triggers may fire from one
// email, each producing an independent execution log entry. Each matched
// rule runs on its own goroutine, so a rule with a delayed action never
// holds up the other matches or the caller. A trigger whose downstream
// rule is missing is a logged no-op.
func (m *Matcher) ProcessEmail(_ context.Context, email *models.InboundEmail) error {
	triggers, err := m.store.GetUserEmailTriggers(email.UserID)
	if err != nil {
		return err
	}

	for _, trigger := range triggers {
		if !trigger.Enabled {
			continue
		}
		if !matchesAny(trigger.Patterns, email) {
			continue
		}

		trigger := trigger
		go func() {
			// a detached context: dispatched executions outlive the
			// poll tick or HTTP request that delivered the email
			fired := m.engine.ExecuteRule(context.Background(), trigger.RuleID, email.UserID, email.TriggerData())
			if !fired {
				m.logger.Warn("trigger matched but rule did not fire",
					logging.String("trigger_id", trigger.ID),
					logging.String("rule_id", trigger.RuleID))
			}
		}()
	}
	return nil
}

// matchesAny applies OR semantics across the trigger's pattern set.
func matchesAny(patterns []string, email *models.InboundEmail) bool {
	for _, pattern := range patterns {
		if matchesPattern(pattern, email.From) ||
			matchesPattern(pattern, email.Subject) ||
			matchesPattern(pattern, email.Body) {
			return true
		}
	}
	return false
}

// matchesPattern tests one pattern against one field, first as a
// case-insensitive substring, then as a case-insensitive regular
// expression. An invalid regex falls back to substring-only matching.
func matchesPattern(pattern, text string) bool {
	if strings.Contains(strings.ToLower(text), strings.ToLower(pattern)) {
		return true
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
