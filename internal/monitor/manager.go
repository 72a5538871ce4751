// Package monitor supervises long-lived watchers that feed external
// events into the automation and workflow engines. Each monitor is an
// independent polling loop; one tick's failure is logged and the loop
// continues at the next interval.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"concierge-automation/internal/automation"
	"concierge-automation/internal/common/cache"
	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/common/utils"
	"concierge-automation/internal/models"
	"concierge-automation/internal/storage"
	"concierge-automation/internal/workflow"
)

const (
	// DefaultPollInterval is used when no interval is configured.
	DefaultPollInterval = 60 * time.Second
	// MinPollInterval bounds how aggressively a loop may poll.
	MinPollInterval = 5 * time.Second

	// seenTTL bounds the dedup window; a message older than this may
	// re-fire after a long outage, which idempotent executors absorb.
	seenTTL = 7 * 24 * time.Hour
)

// MailboxFactory builds the mailbox client for an email monitor.
// Injectable so tests can substitute a fake mailbox.
type MailboxFactory func(config IMAPConfig, userID string) (MailboxClient, error)

// VoicemailFactory builds the voicemail client for a voicemail monitor.
type VoicemailFactory func(config VoicemailConfig) (VoicemailClient, error)

func defaultMailboxFactory(config IMAPConfig, userID string) (MailboxClient, error) {
	return NewIMAPMailbox(config, userID)
}

func defaultVoicemailFactory(config VoicemailConfig) (VoicemailClient, error) {
	return NewHTTPVoicemailClient(config)
}

// EmailMonitorSpec configures one email monitor.
type EmailMonitorSpec struct {
	IMAP         IMAPConfig
	PollInterval time.Duration
}

// VoicemailMonitorSpec configures one voicemail monitor. Every new
// voicemail starts an execution of WorkflowID with the transcript as
// trigger data.
type VoicemailMonitorSpec struct {
	Voicemail    VoicemailConfig
	WorkflowID   string
	PollInterval time.Duration
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the monitor lifecycle. Stopping a monitor cancels only
// future poll ticks, never executions already dispatched.
type Manager struct {
	store        storage.Storage
	matcher      *automation.Matcher
	workflows    *workflow.Engine
	dedup        cache.DedupStore
	pollInterval time.Duration
	logger       logging.Logger

	newMailbox   MailboxFactory
	newVoicemail VoicemailFactory

	mu    sync.Mutex
	loops map[string]*loop
}

func NewManager(store storage.Storage, matcher *automation.Matcher, workflows *workflow.Engine, dedup cache.DedupStore, pollInterval time.Duration, logger logging.Logger) *Manager {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		store:        store,
		matcher:      matcher,
		workflows:    workflows,
		dedup:        dedup,
		pollInterval: pollInterval,
		logger:       logger.WithFields(logging.String("component", "monitor")),
		newMailbox:   defaultMailboxFactory,
		newVoicemail: defaultVoicemailFactory,
		loops:        make(map[string]*loop),
	}
}

// SetMailboxFactory replaces the mailbox client constructor.
func (m *Manager) SetMailboxFactory(f MailboxFactory) { m.newMailbox = f }

// SetVoicemailFactory replaces the voicemail client constructor.
func (m *Manager) SetVoicemailFactory(f VoicemailFactory) { m.newVoicemail = f }

func (m *Manager) interval(requested time.Duration) time.Duration {
	if requested <= 0 {
		return m.pollInterval
	}
	if requested < MinPollInterval {
		return MinPollInterval
	}
	return requested
}

// StartEmailMonitoring starts a polling loop that drains unseen mail
// and feeds each message through the trigger matcher.
func (m *Manager) StartEmailMonitoring(userID string, spec EmailMonitorSpec) (*models.Monitor, error) {
	if userID == "" {
		return nil, errors.ValidationError("user id is required")
	}
	client, err := m.newMailbox(spec.IMAP, userID)
	if err != nil {
		return nil, err
	}

	monitor := &models.Monitor{
		ID:     utils.NewID(),
		UserID: userID,
		Kind:   models.MonitorEmail,
		Config: map[string]interface{}{
			"server":   spec.IMAP.Server,
			"username": spec.IMAP.Username,
			"folder":   spec.IMAP.Folder,
		},
		Status:    models.MonitorRunning,
		StartedAt: time.Now(),
	}
	if err := m.store.CreateMonitor(monitor); err != nil {
		client.Close()
		return nil, err
	}

	m.startLoop(monitor, m.interval(spec.PollInterval), func(ctx context.Context) error {
		emails, err := client.FetchUnread(ctx)
		if err != nil {
			return err
		}
		for _, email := range emails {
			if m.alreadySeen(ctx, emailSeenKey(userID, email)) {
				continue
			}
			if err := m.matcher.ProcessEmail(ctx, email); err != nil {
				m.logger.Warn("failed to process inbound email", logging.String("monitor_id", monitor.ID), logging.Err(err))
			}
		}
		return nil
	}, client.Close)

	m.logger.Info("email monitor started",
		logging.String("monitor_id", monitor.ID),
		logging.String("user_id", userID),
		logging.String("server", spec.IMAP.Server))
	return monitor, nil
}

// StartVoicemailMonitoring starts a polling loop that runs the
// configured workflow once per new voicemail transcript.
func (m *Manager) StartVoicemailMonitoring(userID string, spec VoicemailMonitorSpec) (*models.Monitor, error) {
	if userID == "" {
		return nil, errors.ValidationError("user id is required")
	}
	if spec.WorkflowID == "" {
		return nil, errors.ValidationError("workflow id is required")
	}
	client, err := m.newVoicemail(spec.Voicemail)
	if err != nil {
		return nil, err
	}

	monitor := &models.Monitor{
		ID:     utils.NewID(),
		UserID: userID,
		Kind:   models.MonitorVoicemail,
		Config: map[string]interface{}{
			"endpoint":    spec.Voicemail.Endpoint,
			"workflow_id": spec.WorkflowID,
		},
		Status:    models.MonitorRunning,
		StartedAt: time.Now(),
	}
	if err := m.store.CreateMonitor(monitor); err != nil {
		client.Close()
		return nil, err
	}

	m.startLoop(monitor, m.interval(spec.PollInterval), func(ctx context.Context) error {
		voicemails, err := client.FetchNew(ctx)
		if err != nil {
			return err
		}
		for _, vm := range voicemails {
			if m.alreadySeen(ctx, voicemailSeenKey(userID, vm)) {
				continue
			}
			if _, err := m.workflows.ExecuteWorkflow(ctx, spec.WorkflowID, userID, vm.TriggerData()); err != nil {
				m.logger.Warn("failed to run workflow for voicemail",
					logging.String("monitor_id", monitor.ID),
					logging.String("voicemail_id", vm.ID),
					logging.Err(err))
			}
		}
		return nil
	}, client.Close)

	m.logger.Info("voicemail monitor started",
		logging.String("monitor_id", monitor.ID),
		logging.String("user_id", userID),
		logging.String("workflow_id", spec.WorkflowID))
	return monitor, nil
}

// startLoop runs tick immediately, then on every interval until the
// monitor is stopped. Tick errors are logged and the loop continues.
func (m *Manager) startLoop(monitor *models.Monitor, interval time.Duration, tick func(ctx context.Context) error, closer func() error) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.loops[monitor.ID] = l
	m.mu.Unlock()

	go func() {
		defer close(l.done)
		defer func() {
			if err := closer(); err != nil {
				m.logger.Warn("failed to close monitor client", logging.String("monitor_id", monitor.ID), logging.Err(err))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		errCount := 0
		runTick := func() {
			if err := tick(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				errCount++
				m.logger.Warn("monitor poll tick failed",
					logging.String("monitor_id", monitor.ID),
					logging.String("kind", string(monitor.Kind)),
					logging.Int("consecutive_errors", errCount),
					logging.Err(err))
				return
			}
			errCount = 0
		}

		runTick()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runTick()
			}
		}
	}()
}

// StopMonitoring stops a monitor's loop. Stopping an unknown or
// already-stopped monitor is a no-op.
func (m *Manager) StopMonitoring(monitorID string) error {
	m.mu.Lock()
	l, ok := m.loops[monitorID]
	if ok {
		delete(m.loops, monitorID)
	}
	m.mu.Unlock()

	if ok {
		l.cancel()
		<-l.done
	}

	monitor, err := m.store.GetMonitor(monitorID)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			return nil
		}
		return err
	}
	if monitor.Status == models.MonitorStopped {
		return nil
	}
	now := time.Now()
	monitor.Status = models.MonitorStopped
	monitor.StoppedAt = &now
	if err := m.store.UpdateMonitor(monitor); err != nil {
		return err
	}
	m.logger.Info("monitor stopped", logging.String("monitor_id", monitorID))
	return nil
}

// GetUserMonitors returns all monitors ever started by the user,
// running and stopped.
func (m *Manager) GetUserMonitors(userID string) ([]*models.Monitor, error) {
	return m.store.GetUserMonitors(userID)
}

// StopAll stops every running loop. Used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.StopMonitoring(id); err != nil {
			m.logger.Warn("failed to stop monitor", logging.String("monitor_id", id), logging.Err(err))
		}
	}
}

// Health reports whether the manager's collaborators are reachable.
func (m *Manager) Health() error {
	return m.store.Health()
}

// alreadySeen checks and records the dedup key. A dedup store failure
// is treated as unseen so an outage degrades to at-least-once.
func (m *Manager) alreadySeen(ctx context.Context, key string) bool {
	seen, err := m.dedup.Seen(ctx, key)
	if err != nil {
		m.logger.Warn("dedup lookup failed", logging.String("key", key), logging.Err(err))
		return false
	}
	if seen {
		return true
	}
	if err := m.dedup.MarkSeen(ctx, key, seenTTL); err != nil {
		m.logger.Warn("dedup record failed", logging.String("key", key), logging.Err(err))
	}
	return false
}

func emailSeenKey(userID string, email *models.InboundEmail) string {
	if email.MessageID != "" {
		return fmt.Sprintf("email:%s:%s", userID, email.MessageID)
	}
	return fmt.Sprintf("email:%s:%s:%d", userID, email.From, email.ReceivedAt.UnixNano())
}

func voicemailSeenKey(userID string, vm *Voicemail) string {
	if vm.ID != "" {
		return fmt.Sprintf("voicemail:%s:%s", userID, vm.ID)
	}
	return fmt.Sprintf("voicemail:%s:%s:%d", userID, vm.From, vm.ReceivedAt.UnixNano())
}
