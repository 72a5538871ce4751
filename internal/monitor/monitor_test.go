package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-automation/internal/automation"
	"concierge-automation/internal/common/cache"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/models"
	"concierge-automation/internal/notify"
	"concierge-automation/internal/storage"
	"concierge-automation/internal/workflow"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type countingExecutor struct {
	calls int64
}

func (c *countingExecutor) Type() models.ActionType { return models.ActionNotify }

func (c *countingExecutor) Execute(ctx context.Context, userID string, config, triggerData map[string]interface{}) (map[string]interface{}, error) {
	atomic.AddInt64(&c.calls, 1)
	return map[string]interface{}{"sent": true}, nil
}

func (c *countingExecutor) count() int64 {
	return atomic.LoadInt64(&c.calls)
}

type fakeMailbox struct {
	mu      sync.Mutex
	batches [][]*models.InboundEmail
	err     error
	fetches int64
	closed  bool
}

func (f *fakeMailbox) FetchUnread(ctx context.Context) ([]*models.InboundEmail, error) {
	atomic.AddInt64(&f.fetches, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		err := f.err
		f.err = nil
		return nil, err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeMailbox) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeVoicemailClient struct {
	mu      sync.Mutex
	batches [][]*Voicemail
}

func (f *fakeVoicemailClient) FetchNew(ctx context.Context) ([]*Voicemail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeVoicemailClient) Close() error { return nil }

type fixture struct {
	store     storage.Storage
	executor  *countingExecutor
	engine    *automation.Engine
	matcher   *automation.Matcher
	workflows *workflow.Engine
	manager   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })

	logger := logging.GetGlobalLogger()
	executor := &countingExecutor{}
	engine := automation.NewEngine(store, logger, executor)
	matcher := automation.NewMatcher(store, engine, logger)
	workflows := workflow.NewEngine(store, workflow.NewTokenIssuer(testSecret, 0), 0, logger,
		workflow.NewNotifyStep(notify.NewLogSender(logger)))
	manager := NewManager(store, matcher, workflows, cache.NewMemoryDedup(), DefaultPollInterval, logger)
	return &fixture{
		store:     store,
		executor:  executor,
		engine:    engine,
		matcher:   matcher,
		workflows: workflows,
		manager:   manager,
	}
}

// addInvoiceRule wires an email trigger on "invoice" to a notify rule.
func (f *fixture) addInvoiceRule(t *testing.T, userID string) *models.AutomationRule {
	t.Helper()
	rule, err := f.engine.AddRule(automation.RuleSpec{
		UserID:  userID,
		Name:    "invoice alert",
		Trigger: models.TriggerSpec{Type: models.TriggerEmail},
		Actions: []models.ActionSpec{{Type: models.ActionNotify, Config: map[string]interface{}{"message": "invoice arrived"}}},
	})
	require.NoError(t, err)
	_, err = f.matcher.AddTrigger(automation.TriggerSpec{
		UserID:   userID,
		Patterns: []string{"invoice"},
		RuleID:   rule.ID,
	})
	require.NoError(t, err)
	return rule
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met within timeout")
}

func TestEmailMonitoringFiresMatchingRules(t *testing.T) {
	f := newFixture(t)
	f.addInvoiceRule(t, "user-1")

	mailbox := &fakeMailbox{batches: [][]*models.InboundEmail{{
		{UserID: "user-1", From: "billing@acme.example", Subject: "Invoice #42", Body: "pay up", MessageID: "m-1"},
		{UserID: "user-1", From: "noise@acme.example", Subject: "lunch?", Body: "tacos", MessageID: "m-2"},
	}}}
	f.manager.SetMailboxFactory(func(config IMAPConfig, userID string) (MailboxClient, error) {
		return mailbox, nil
	})

	monitor, err := f.manager.StartEmailMonitoring("user-1", EmailMonitorSpec{
		IMAP:         IMAPConfig{Server: "imap.example:993", Username: "user"},
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer f.manager.StopAll()

	assert.Equal(t, models.MonitorRunning, monitor.Status)
	assert.Equal(t, models.MonitorEmail, monitor.Kind)

	waitFor(t, 2*time.Second, func() bool { return f.executor.count() == 1 })

	var logs []*models.ExecutionLogEntry
	waitFor(t, 2*time.Second, func() bool {
		var err error
		logs, err = f.engine.GetUserExecutionLogs("user-1", 0)
		return err == nil && len(logs) == 1
	})
	assert.Equal(t, "Invoice #42", logs[0].TriggerData["subject"])
}

func TestEmailMonitoringDeduplicatesMessages(t *testing.T) {
	f := newFixture(t)
	f.addInvoiceRule(t, "user-1")

	email := &models.InboundEmail{UserID: "user-1", From: "a@b.example", Subject: "invoice", MessageID: "m-1"}
	mailbox := &fakeMailbox{batches: [][]*models.InboundEmail{
		{email}, {email}, {email},
	}}
	f.manager.SetMailboxFactory(func(config IMAPConfig, userID string) (MailboxClient, error) {
		return mailbox, nil
	})

	_, err := f.manager.StartEmailMonitoring("user-1", EmailMonitorSpec{
		IMAP:         IMAPConfig{Server: "imap.example:993", Username: "user"},
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer f.manager.StopAll()

	waitFor(t, 2*time.Second, func() bool { return f.executor.count() == 1 })
	// later ticks see the same message id and skip it
	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt64(&mailbox.fetches) >= 4 })
	assert.Equal(t, int64(1), f.executor.count())
}

func TestEmailMonitoringSurvivesTickFailure(t *testing.T) {
	f := newFixture(t)
	f.addInvoiceRule(t, "user-1")

	mailbox := &fakeMailbox{
		err: assert.AnError,
		batches: [][]*models.InboundEmail{{
			{UserID: "user-1", From: "a@b.example", Subject: "invoice", MessageID: "m-1"},
		}},
	}
	f.manager.SetMailboxFactory(func(config IMAPConfig, userID string) (MailboxClient, error) {
		return mailbox, nil
	})

	_, err := f.manager.StartEmailMonitoring("user-1", EmailMonitorSpec{
		IMAP:         IMAPConfig{Server: "imap.example:993", Username: "user"},
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer f.manager.StopAll()

	// first tick errors, the loop must keep polling and drain the batch
	waitFor(t, 2*time.Second, func() bool { return f.executor.count() == 1 })
}

func TestVoicemailMonitoringRunsWorkflow(t *testing.T) {
	f := newFixture(t)

	wf, err := f.workflows.CreateWorkflow(&models.Workflow{
		Name:   "voicemail notify",
		UserID: "user-1",
		Steps: []models.StepDefinition{
			{Type: models.StepNotify, Config: map[string]interface{}{"message": "voicemail from {{from}}"}},
		},
	})
	require.NoError(t, err)

	client := &fakeVoicemailClient{batches: [][]*Voicemail{{
		{ID: "vm-1", From: "+15550100", Transcript: "call the dentist", ReceivedAt: time.Now()},
	}}}
	f.manager.SetVoicemailFactory(func(config VoicemailConfig) (VoicemailClient, error) {
		return client, nil
	})

	monitor, err := f.manager.StartVoicemailMonitoring("user-1", VoicemailMonitorSpec{
		Voicemail:    VoicemailConfig{Endpoint: "https://vm.example/api"},
		WorkflowID:   wf.ID,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer f.manager.StopAll()

	assert.Equal(t, models.MonitorVoicemail, monitor.Kind)

	waitFor(t, 2*time.Second, func() bool {
		execs, err := f.workflows.GetAllExecutions("user-1")
		return err == nil && len(execs) == 1 && execs[0].Status == models.ExecutionCompleted
	})

	// same voicemail is never re-fired
	time.Sleep(50 * time.Millisecond)
	execs, err := f.workflows.GetAllExecutions("user-1")
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

func TestVoicemailMonitoringRequiresWorkflow(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.StartVoicemailMonitoring("user-1", VoicemailMonitorSpec{
		Voicemail: VoicemailConfig{Endpoint: "https://vm.example/api"},
	})
	assert.Error(t, err)
}

func TestStopMonitoringIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addInvoiceRule(t, "user-1")

	mailbox := &fakeMailbox{}
	f.manager.SetMailboxFactory(func(config IMAPConfig, userID string) (MailboxClient, error) {
		return mailbox, nil
	})

	monitor, err := f.manager.StartEmailMonitoring("user-1", EmailMonitorSpec{
		IMAP:         IMAPConfig{Server: "imap.example:993", Username: "user"},
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, f.manager.StopMonitoring(monitor.ID))

	stored, err := f.store.GetMonitor(monitor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorStopped, stored.Status)
	require.NotNil(t, stored.StoppedAt)

	mailbox.mu.Lock()
	closed := mailbox.closed
	mailbox.mu.Unlock()
	assert.True(t, closed)

	// stopping again, or stopping an unknown id, is a no-op
	assert.NoError(t, f.manager.StopMonitoring(monitor.ID))
	assert.NoError(t, f.manager.StopMonitoring("no-such-monitor"))
}

func TestGetUserMonitors(t *testing.T) {
	f := newFixture(t)
	f.manager.SetMailboxFactory(func(config IMAPConfig, userID string) (MailboxClient, error) {
		return &fakeMailbox{}, nil
	})

	m1, err := f.manager.StartEmailMonitoring("user-1", EmailMonitorSpec{
		IMAP: IMAPConfig{Server: "imap.example:993", Username: "user"},
	})
	require.NoError(t, err)
	defer f.manager.StopAll()

	monitors, err := f.manager.GetUserMonitors("user-1")
	require.NoError(t, err)
	require.Len(t, monitors, 1)
	assert.Equal(t, m1.ID, monitors[0].ID)

	monitors, err = f.manager.GetUserMonitors("someone-else")
	require.NoError(t, err)
	assert.Empty(t, monitors)
}

func TestCronExpression(t *testing.T) {
	rule := &models.AutomationRule{
		Trigger: models.TriggerSpec{
			Type:       models.TriggerSchedule,
			Conditions: map[string]interface{}{"cron": "*/5 * * * *"},
		},
	}
	expr, err := cronExpression(rule)
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", expr)

	rule.Trigger = models.TriggerSpec{
		Type:       models.TriggerTimeBased,
		Conditions: map[string]interface{}{"time": "09:30"},
	}
	expr, err = cronExpression(rule)
	require.NoError(t, err)
	assert.Equal(t, "30 9 * * *", expr)

	rule.Trigger.Conditions = map[string]interface{}{"time": "not-a-time"}
	_, err = cronExpression(rule)
	assert.Error(t, err)

	rule.Trigger = models.TriggerSpec{Type: models.TriggerEmail}
	_, err = cronExpression(rule)
	assert.Error(t, err)
}

func TestCronServiceSchedulesAndUnschedules(t *testing.T) {
	f := newFixture(t)
	svc := NewCronService(f.engine, logging.GetGlobalLogger())

	rule, err := f.engine.AddRule(automation.RuleSpec{
		UserID:  "user-1",
		Name:    "nightly digest",
		Trigger: models.TriggerSpec{Type: models.TriggerSchedule, Conditions: map[string]interface{}{"cron": "0 3 * * *"}},
		Actions: []models.ActionSpec{{Type: models.ActionNotify, Config: map[string]interface{}{"message": "digest"}}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.ScheduleRule(rule))
	// rescheduling replaces the entry rather than doubling it
	require.NoError(t, svc.ScheduleRule(rule))
	assert.Len(t, svc.entries, 1)

	svc.UnscheduleRule(rule.ID)
	assert.Empty(t, svc.entries)
	svc.UnscheduleRule(rule.ID)

	badRule := &models.AutomationRule{
		ID:      "r-bad",
		Trigger: models.TriggerSpec{Type: models.TriggerSchedule, Conditions: map[string]interface{}{"cron": "nope"}},
	}
	assert.Error(t, svc.ScheduleRule(badRule))
}

func TestCronServiceFollowsRuleLifecycle(t *testing.T) {
	f := newFixture(t)
	svc := NewCronService(f.engine, logging.GetGlobalLogger())
	f.engine.SetScheduler(svc)

	rule, err := f.engine.AddRule(automation.RuleSpec{
		UserID:  "user-1",
		Name:    "morning briefing",
		Trigger: models.TriggerSpec{Type: models.TriggerTimeBased, Conditions: map[string]interface{}{"time": "08:00"}},
		Actions: []models.ActionSpec{{Type: models.ActionNotify, Config: map[string]interface{}{"message": "briefing"}}},
	})
	require.NoError(t, err)
	assert.Len(t, svc.entries, 1, "creating the rule registers a cron entry")

	_, err = f.engine.SetRuleEnabled(rule.ID, "user-1", false)
	require.NoError(t, err)
	assert.Empty(t, svc.entries, "disabling drops the entry")

	_, err = f.engine.SetRuleEnabled(rule.ID, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, svc.entries, 1)

	require.NoError(t, f.engine.DeleteRule(rule.ID, "user-1"))
	assert.Empty(t, svc.entries, "deleting drops the entry")
}

func TestCronServiceRestore(t *testing.T) {
	f := newFixture(t)
	svc := NewCronService(f.engine, logging.GetGlobalLogger())

	rules := []*models.AutomationRule{
		{
			ID: "r-daily", UserID: "user-1", Enabled: true,
			Trigger: models.TriggerSpec{Type: models.TriggerSchedule, Conditions: map[string]interface{}{"cron": "0 3 * * *"}},
		},
		{
			ID: "r-off", UserID: "user-1", Enabled: false,
			Trigger: models.TriggerSpec{Type: models.TriggerSchedule, Conditions: map[string]interface{}{"cron": "0 4 * * *"}},
		},
		{
			ID: "r-email", UserID: "user-1", Enabled: true,
			Trigger: models.TriggerSpec{Type: models.TriggerEmail},
		},
		{
			ID: "r-broken", UserID: "user-1", Enabled: true,
			Trigger: models.TriggerSpec{Type: models.TriggerSchedule, Conditions: map[string]interface{}{"cron": "nope"}},
		},
	}

	svc.Restore(rules)

	// only the enabled schedule rule with a valid expression survives
	assert.Len(t, svc.entries, 1)
	_, ok := svc.entries["r-daily"]
	assert.True(t, ok)
}
