package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/models"
)

func newTestMatcher(t *testing.T) (*Matcher, *Engine, *recordingExecutor) {
	t.Helper()
	executor := &recordingExecutor{actionType: models.ActionNotify}
	engine, store := newTestEngine(t, executor)
	return NewMatcher(store, engine, logging.GetGlobalLogger()), engine, executor
}

// waitForCalls polls until the executor reached n invocations. Matched
// rules run on goroutines, so the count converges rather than being
// visible on return.
func waitForCalls(t *testing.T, executor *recordingExecutor, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return executor.Calls() == n },
		time.Second, 5*time.Millisecond)
}

// assertNoCalls gives stray dispatches time to land before checking the
// counter stayed at n.
func assertNoCalls(t *testing.T, executor *recordingExecutor, n int) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, executor.Calls())
}

func email(userID, from, subject, body string) *models.InboundEmail {
	return &models.InboundEmail{
		UserID:  userID,
		From:    from,
		Subject: subject,
		Body:    body,
	}
}

func TestAddTriggerValidation(t *testing.T) {
	matcher, _, _ := newTestMatcher(t)

	_, err := matcher.AddTrigger(TriggerSpec{UserID: "user1", RuleID: "r1"})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation), "empty patterns")

	_, err = matcher.AddTrigger(TriggerSpec{UserID: "user1", Patterns: []string{"invoice"}})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation), "missing rule id")
}

func TestProcessEmailFiresOnSubstring(t *testing.T) {
	matcher, engine, executor := newTestMatcher(t)
	ctx := context.Background()

	rule, err := engine.AddRule(notifySpec("user1"))
	require.NoError(t, err)

	_, err = matcher.AddTrigger(TriggerSpec{
		UserID:   "user1",
		Patterns: []string{"INVOICE"},
		RuleID:   rule.ID,
	})
	require.NoError(t, err)

	// case-insensitive substring match on the subject
	require.NoError(t, matcher.ProcessEmail(ctx, email("user1", "billing@vendor.example", "Your invoice is ready", "see attachment")))
	waitForCalls(t, executor, 1)

	// match on the body
	require.NoError(t, matcher.ProcessEmail(ctx, email("user1", "billing@vendor.example", "hello", "the Invoice total is due")))
	waitForCalls(t, executor, 2)

	// match on the sender
	require.NoError(t, matcher.ProcessEmail(ctx, email("user1", "invoice@vendor.example", "hello", "x")))
	waitForCalls(t, executor, 3)

	// no match leaves the counter alone
	require.NoError(t, matcher.ProcessEmail(ctx, email("user1", "a@b.example", "hello", "nothing here")))
	assertNoCalls(t, executor, 3)
}

func TestProcessEmailRegexPattern(t *testing.T) {
	matcher, engine, executor := newTestMatcher(t)

	rule, err := engine.AddRule(notifySpec("user1"))
	require.NoError(t, err)

	_, err = matcher.AddTrigger(TriggerSpec{
		UserID:   "user1",
		Patterns: []string{`order #\d+`},
		RuleID:   rule.ID,
	})
	require.NoError(t, err)

	require.NoError(t, matcher.ProcessEmail(context.Background(),
		email("user1", "shop@example.com", "Order #1234 shipped", "")))
	waitForCalls(t, executor, 1)
}

func TestProcessEmailORSemantics(t *testing.T) {
	matcher, engine, executor := newTestMatcher(t)

	rule, err := engine.AddRule(notifySpec("user1"))
	require.NoError(t, err)

	// two patterns, only the second matches; one match suffices and the
	// rule fires exactly once per trigger
	_, err = matcher.AddTrigger(TriggerSpec{
		UserID:   "user1",
		Patterns: []string{"refund", "receipt"},
		RuleID:   rule.ID,
	})
	require.NoError(t, err)

	require.NoError(t, matcher.ProcessEmail(context.Background(),
		email("user1", "shop@example.com", "Your receipt", "thanks")))
	waitForCalls(t, executor, 1)
	assertNoCalls(t, executor, 1)
}

func TestProcessEmailMultipleTriggers(t *testing.T) {
	matcher, engine, executor := newTestMatcher(t)

	rule1, err := engine.AddRule(notifySpec("user1"))
	require.NoError(t, err)
	rule2, err := engine.AddRule(notifySpec("user1"))
	require.NoError(t, err)

	_, err = matcher.AddTrigger(TriggerSpec{UserID: "user1", Patterns: []string{"alert"}, RuleID: rule1.ID})
	require.NoError(t, err)
	_, err = matcher.AddTrigger(TriggerSpec{UserID: "user1", Patterns: []string{"alert"}, RuleID: rule2.ID})
	require.NoError(t, err)

	require.NoError(t, matcher.ProcessEmail(context.Background(),
		email("user1", "ops@example.com", "alert: disk full", "")))
	waitForCalls(t, executor, 2)

	// each firing produced its own log entry
	require.Eventually(t, func() bool {
		logs1, err := engine.GetRuleExecutionLogs(rule1.ID, 0)
		if err != nil || len(logs1) != 1 {
			return false
		}
		logs2, err := engine.GetRuleExecutionLogs(rule2.ID, 0)
		return err == nil && len(logs2) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestProcessEmailDisabledTrigger(t *testing.T) {
	matcher, engine, executor := newTestMatcher(t)

	rule, err := engine.AddRule(notifySpec("user1"))
	require.NoError(t, err)

	disabled := false
	_, err = matcher.AddTrigger(TriggerSpec{
		UserID:   "user1",
		Patterns: []string{"alert"},
		RuleID:   rule.ID,
		Enabled:  &disabled,
	})
	require.NoError(t, err)

	require.NoError(t, matcher.ProcessEmail(context.Background(),
		email("user1", "ops@example.com", "alert", "")))
	assertNoCalls(t, executor, 0)
}

func TestProcessEmailDanglingRule(t *testing.T) {
	matcher, _, executor := newTestMatcher(t)

	_, err := matcher.AddTrigger(TriggerSpec{
		UserID:   "user1",
		Patterns: []string{"alert"},
		RuleID:   "gone",
	})
	require.NoError(t, err)

	// a missing downstream rule is a logged no-op, not an error
	err = matcher.ProcessEmail(context.Background(),
		email("user1", "ops@example.com", "alert", ""))
	assert.NoError(t, err)
	assertNoCalls(t, executor, 0)
}

func TestProcessEmailDelayedRuleDoesNotStallOthers(t *testing.T) {
	slowExec := &recordingExecutor{actionType: models.ActionWebhook}
	fastExec := &recordingExecutor{actionType: models.ActionNotify}
	engine, store := newTestEngine(t, slowExec, fastExec)
	matcher := NewMatcher(store, engine, logging.GetGlobalLogger())

	// one rule holds a 250ms pre-action delay, the other fires immediately
	slow, err := engine.AddRule(RuleSpec{
		UserID:  "user1",
		Name:    "slow follow-up",
		Trigger: models.TriggerSpec{Type: models.TriggerEmail},
		Actions: []models.ActionSpec{{Type: models.ActionWebhook, DelayMS: 250}},
	})
	require.NoError(t, err)
	fast, err := engine.AddRule(notifySpec("user1"))
	require.NoError(t, err)

	_, err = matcher.AddTrigger(TriggerSpec{UserID: "user1", Patterns: []string{"alert"}, RuleID: slow.ID})
	require.NoError(t, err)
	_, err = matcher.AddTrigger(TriggerSpec{UserID: "user1", Patterns: []string{"alert"}, RuleID: fast.ID})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, matcher.ProcessEmail(context.Background(),
		email("user1", "ops@example.com", "alert: disk full", "")))
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"dispatch must not wait out action delays")

	// the undelayed rule lands while the delayed one is still waiting
	waitForCalls(t, fastExec, 1)
	assert.Zero(t, slowExec.Calls())

	// the delayed rule still runs to completion
	waitForCalls(t, slowExec, 1)
	require.Eventually(t, func() bool {
		logs, err := engine.GetRuleExecutionLogs(slow.ID, 0)
		return err == nil && len(logs) == 1 && logs[0].Status == models.ExecutionCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteTriggerIdempotent(t *testing.T) {
	matcher, engine, _ := newTestMatcher(t)

	rule, err := engine.AddRule(notifySpec("user1"))
	require.NoError(t, err)

	trigger, err := matcher.AddTrigger(TriggerSpec{
		UserID:   "user1",
		Patterns: []string{"x"},
		RuleID:   rule.ID,
	})
	require.NoError(t, err)

	deleted, err := matcher.DeleteTrigger(trigger.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = matcher.DeleteTrigger(trigger.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "deleting a missing trigger is false, not an error")
}

func TestMatchesPatternInvalidRegex(t *testing.T) {
	// an unparseable regex still works as a substring pattern
	assert.True(t, matchesPattern("a(b", "xxa(bxx"))
	assert.False(t, matchesPattern("a(b", "nothing"))
}
