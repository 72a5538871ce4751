package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/models"
	"concierge-automation/internal/storage"
)

// Adapter implements storage.Storage on PostgreSQL. Structured payloads
// are stored in JSONB columns.
type Adapter struct {
	db *sql.DB
}

// New opens the database and ensures the schema exists
func New(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", config.GetConnectionString())
	if err != nil {
		return nil, errors.ConnectionError("failed to open postgres database", err)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.ConnectionError("failed to ping postgres database", err)
	}

	a := &Adapter{db: db}
	if err := a.migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS automation_rules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		trigger_spec JSONB NOT NULL,
		actions JSONB NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		execution_count INTEGER NOT NULL DEFAULT 0,
		last_executed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rules_user ON automation_rules(user_id);

	CREATE TABLE IF NOT EXISTS email_triggers (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		patterns JSONB NOT NULL,
		rule_id TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_email_triggers_user ON email_triggers(user_id);

	CREATE TABLE IF NOT EXISTS execution_logs (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		trigger_data JSONB,
		actions JSONB NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exec_logs_rule ON execution_logs(rule_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_exec_logs_user ON execution_logs(user_id, started_at DESC);

	CREATE TABLE IF NOT EXISTS workflow_executions (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		workflow_name TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		steps JSONB NOT NULL,
		trigger_data JSONB,
		result JSONB,
		calendar_event JSONB,
		pending_token_id TEXT NOT NULL DEFAULT '',
		resume_index INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_wf_exec_user ON workflow_executions(user_id);
	CREATE INDEX IF NOT EXISTS idx_wf_exec_token ON workflow_executions(pending_token_id);

	CREATE TABLE IF NOT EXISTS monitors (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		config JSONB,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		stopped_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_monitors_user ON monitors(user_id);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return errors.InternalError("failed to run postgres migrations", err)
	}
	return nil
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.InternalError("failed to marshal json column", err)
	}
	return data, nil
}

func unmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.InternalError("failed to unmarshal json column", err)
	}
	return nil
}

func (a *Adapter) CreateRule(rule *models.AutomationRule) error {
	trigger, err := marshalJSON(rule.Trigger)
	if err != nil {
		return err
	}
	actions, err := marshalJSON(rule.Actions)
	if err != nil {
		return err
	}

	_, err = a.db.Exec(`
		INSERT INTO automation_rules
			(id, user_id, name, description, trigger_spec, actions, enabled,
			 execution_count, last_executed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rule.ID, rule.UserID, rule.Name, rule.Description, trigger, actions,
		rule.Enabled, rule.ExecutionCount, rule.LastExecutedAt,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return errors.InternalError("failed to insert rule", err)
	}
	return nil
}

const ruleColumns = `id, user_id, name, description, trigger_spec, actions,
	enabled, execution_count, last_executed_at, created_at, updated_at`

func (a *Adapter) scanRule(row interface{ Scan(...interface{}) error }) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	var trigger, actions []byte
	var lastExecuted sql.NullTime

	err := row.Scan(&rule.ID, &rule.UserID, &rule.Name, &rule.Description,
		&trigger, &actions, &rule.Enabled, &rule.ExecutionCount,
		&lastExecuted, &rule.CreatedAt, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("rule")
	}
	if err != nil {
		return nil, errors.InternalError("failed to scan rule", err)
	}

	if err := unmarshalJSON(trigger, &rule.Trigger); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(actions, &rule.Actions); err != nil {
		return nil, err
	}
	if lastExecuted.Valid {
		t := lastExecuted.Time
		rule.LastExecutedAt = &t
	}
	return &rule, nil
}

func (a *Adapter) GetRule(id string) (*models.AutomationRule, error) {
	row := a.db.QueryRow(`SELECT `+ruleColumns+` FROM automation_rules WHERE id = $1`, id)
	return a.scanRule(row)
}

func (a *Adapter) GetUserRules(userID string) ([]*models.AutomationRule, error) {
	rows, err := a.db.Query(`SELECT `+ruleColumns+`
		FROM automation_rules WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, errors.InternalError("failed to query rules", err)
	}
	defer rows.Close()

	var rules []*models.AutomationRule
	for rows.Next() {
		rule, err := a.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (a *Adapter) GetAllRules() ([]*models.AutomationRule, error) {
	rows, err := a.db.Query(`SELECT ` + ruleColumns + `
		FROM automation_rules ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.InternalError("failed to query rules", err)
	}
	defer rows.Close()

	var rules []*models.AutomationRule
	for rows.Next() {
		rule, err := a.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (a *Adapter) UpdateRule(rule *models.AutomationRule) error {
	trigger, err := marshalJSON(rule.Trigger)
	if err != nil {
		return err
	}
	actions, err := marshalJSON(rule.Actions)
	if err != nil {
		return err
	}

	result, err := a.db.Exec(`
		UPDATE automation_rules SET
			name = $1, description = $2, trigger_spec = $3, actions = $4,
			enabled = $5, execution_count = $6, last_executed_at = $7, updated_at = $8
		WHERE id = $9`,
		rule.Name, rule.Description, trigger, actions, rule.Enabled,
		rule.ExecutionCount, rule.LastExecutedAt, time.Now(), rule.ID)
	if err != nil {
		return errors.InternalError("failed to update rule", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NotFoundError("rule")
	}
	return nil
}

func (a *Adapter) DeleteRule(id string) error {
	result, err := a.db.Exec(`DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return errors.InternalError("failed to delete rule", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NotFoundError("rule")
	}
	return nil
}

func (a *Adapter) CreateEmailTrigger(trigger *models.EmailTrigger) error {
	patterns, err := marshalJSON(trigger.Patterns)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(`
		INSERT INTO email_triggers (id, user_id, patterns, rule_id, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		trigger.ID, trigger.UserID, patterns, trigger.RuleID, trigger.Enabled, trigger.CreatedAt)
	if err != nil {
		return errors.InternalError("failed to insert email trigger", err)
	}
	return nil
}

func (a *Adapter) scanEmailTrigger(row interface{ Scan(...interface{}) error }) (*models.EmailTrigger, error) {
	var trigger models.EmailTrigger
	var patterns []byte

	err := row.Scan(&trigger.ID, &trigger.UserID, &patterns, &trigger.RuleID,
		&trigger.Enabled, &trigger.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("email trigger")
	}
	if err != nil {
		return nil, errors.InternalError("failed to scan email trigger", err)
	}
	if err := unmarshalJSON(patterns, &trigger.Patterns); err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (a *Adapter) GetEmailTrigger(id string) (*models.EmailTrigger, error) {
	row := a.db.QueryRow(`SELECT id, user_id, patterns, rule_id, enabled, created_at
		FROM email_triggers WHERE id = $1`, id)
	return a.scanEmailTrigger(row)
}

func (a *Adapter) GetUserEmailTriggers(userID string) ([]*models.EmailTrigger, error) {
	rows, err := a.db.Query(`SELECT id, user_id, patterns, rule_id, enabled, created_at
		FROM email_triggers WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, errors.InternalError("failed to query email triggers", err)
	}
	defer rows.Close()

	var triggers []*models.EmailTrigger
	for rows.Next() {
		trigger, err := a.scanEmailTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, trigger)
	}
	return triggers, rows.Err()
}

func (a *Adapter) DeleteEmailTrigger(id string) (bool, error) {
	result, err := a.db.Exec(`DELETE FROM email_triggers WHERE id = $1`, id)
	if err != nil {
		return false, errors.InternalError("failed to delete email trigger", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (a *Adapter) AppendExecutionLog(entry *models.ExecutionLogEntry) error {
	triggerData, err := marshalJSON(entry.TriggerData)
	if err != nil {
		return err
	}
	actions, err := marshalJSON(entry.Actions)
	if err != nil {
		return err
	}

	_, err = a.db.Exec(`
		INSERT INTO execution_logs
			(id, rule_id, user_id, trigger_data, actions, status, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.RuleID, entry.UserID, triggerData, actions,
		string(entry.Status), entry.Error, entry.StartedAt, entry.CompletedAt)
	if err != nil {
		return errors.InternalError("failed to insert execution log", err)
	}
	return nil
}

const logColumns = `id, rule_id, user_id, trigger_data, actions, status, error, started_at, completed_at`

func (a *Adapter) queryLogs(query string, args ...interface{}) ([]*models.ExecutionLogEntry, error) {
	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, errors.InternalError("failed to query execution logs", err)
	}
	defer rows.Close()

	var entries []*models.ExecutionLogEntry
	for rows.Next() {
		var entry models.ExecutionLogEntry
		var triggerData, actions []byte
		var status string

		err := rows.Scan(&entry.ID, &entry.RuleID, &entry.UserID, &triggerData,
			&actions, &status, &entry.Error, &entry.StartedAt, &entry.CompletedAt)
		if err != nil {
			return nil, errors.InternalError("failed to scan execution log", err)
		}
		if err := unmarshalJSON(triggerData, &entry.TriggerData); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(actions, &entry.Actions); err != nil {
			return nil, err
		}
		entry.Status = models.ExecutionStatus(status)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (a *Adapter) GetRuleExecutionLogs(ruleID string, limit int) ([]*models.ExecutionLogEntry, error) {
	return a.queryLogs(`SELECT `+logColumns+` FROM execution_logs
		WHERE rule_id = $1 ORDER BY started_at DESC LIMIT $2`, ruleID, limit)
}

func (a *Adapter) GetUserExecutionLogs(userID string, limit int) ([]*models.ExecutionLogEntry, error) {
	return a.queryLogs(`SELECT `+logColumns+` FROM execution_logs
		WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`, userID, limit)
}

func (a *Adapter) CreateWorkflowExecution(exec *models.WorkflowExecution) error {
	steps, err := marshalJSON(exec.Steps)
	if err != nil {
		return err
	}
	triggerData, err := marshalJSON(exec.TriggerData)
	if err != nil {
		return err
	}
	result, err := marshalJSON(exec.Result)
	if err != nil {
		return err
	}
	calendarEvent, err := marshalJSON(exec.CalendarEvent)
	if err != nil {
		return err
	}

	_, err = a.db.Exec(`
		INSERT INTO workflow_executions
			(id, workflow_id, workflow_name, user_id, status, start_time, end_time,
			 steps, trigger_data, result, calendar_event, pending_token_id, resume_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		exec.ID, exec.WorkflowID, exec.WorkflowName, exec.UserID,
		string(exec.Status), exec.StartTime, exec.EndTime, steps, triggerData,
		result, calendarEvent, exec.PendingTokenID, exec.ResumeIndex)
	if err != nil {
		return errors.InternalError("failed to insert workflow execution", err)
	}
	return nil
}

func (a *Adapter) UpdateWorkflowExecution(exec *models.WorkflowExecution) error {
	steps, err := marshalJSON(exec.Steps)
	if err != nil {
		return err
	}
	result, err := marshalJSON(exec.Result)
	if err != nil {
		return err
	}
	calendarEvent, err := marshalJSON(exec.CalendarEvent)
	if err != nil {
		return err
	}

	res, err := a.db.Exec(`
		UPDATE workflow_executions SET
			status = $1, end_time = $2, steps = $3, result = $4, calendar_event = $5,
			pending_token_id = $6, resume_index = $7
		WHERE id = $8`,
		string(exec.Status), exec.EndTime, steps, result, calendarEvent,
		exec.PendingTokenID, exec.ResumeIndex, exec.ID)
	if err != nil {
		return errors.InternalError("failed to update workflow execution", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundError("workflow execution")
	}
	return nil
}

const execColumns = `id, workflow_id, workflow_name, user_id, status, start_time,
	end_time, steps, trigger_data, result, calendar_event, pending_token_id, resume_index`

func (a *Adapter) scanExecution(row interface{ Scan(...interface{}) error }) (*models.WorkflowExecution, error) {
	var exec models.WorkflowExecution
	var status string
	var steps, triggerData, result, calendarEvent []byte
	var endTime sql.NullTime

	err := row.Scan(&exec.ID, &exec.WorkflowID, &exec.WorkflowName, &exec.UserID,
		&status, &exec.StartTime, &endTime, &steps, &triggerData, &result,
		&calendarEvent, &exec.PendingTokenID, &exec.ResumeIndex)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("workflow execution")
	}
	if err != nil {
		return nil, errors.InternalError("failed to scan workflow execution", err)
	}

	exec.Status = models.ExecutionStatus(status)
	if endTime.Valid {
		t := endTime.Time
		exec.EndTime = &t
	}
	if err := unmarshalJSON(steps, &exec.Steps); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(triggerData, &exec.TriggerData); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(result, &exec.Result); err != nil {
		return nil, err
	}
	if len(calendarEvent) > 0 && string(calendarEvent) != "null" {
		var ref models.CalendarEventRef
		if err := unmarshalJSON(calendarEvent, &ref); err != nil {
			return nil, err
		}
		exec.CalendarEvent = &ref
	}
	return &exec, nil
}

func (a *Adapter) GetWorkflowExecution(id string) (*models.WorkflowExecution, error) {
	row := a.db.QueryRow(`SELECT `+execColumns+` FROM workflow_executions WHERE id = $1`, id)
	return a.scanExecution(row)
}

func (a *Adapter) GetUserWorkflowExecutions(userID string) ([]*models.WorkflowExecution, error) {
	rows, err := a.db.Query(`SELECT `+execColumns+`
		FROM workflow_executions WHERE user_id = $1 ORDER BY start_time DESC`, userID)
	if err != nil {
		return nil, errors.InternalError("failed to query workflow executions", err)
	}
	defer rows.Close()

	var execs []*models.WorkflowExecution
	for rows.Next() {
		exec, err := a.scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func (a *Adapter) GetWorkflowExecutionByToken(tokenID string) (*models.WorkflowExecution, error) {
	if tokenID == "" {
		return nil, errors.NotFoundError("approval token")
	}
	row := a.db.QueryRow(`SELECT `+execColumns+`
		FROM workflow_executions WHERE pending_token_id = $1`, tokenID)
	exec, err := a.scanExecution(row)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			return nil, errors.NotFoundError("approval token")
		}
		return nil, err
	}
	return exec, nil
}

func (a *Adapter) CreateMonitor(monitor *models.Monitor) error {
	config, err := marshalJSON(monitor.Config)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(`
		INSERT INTO monitors (id, user_id, kind, config, status, started_at, stopped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		monitor.ID, monitor.UserID, string(monitor.Kind), config,
		string(monitor.Status), monitor.StartedAt, monitor.StoppedAt)
	if err != nil {
		return errors.InternalError("failed to insert monitor", err)
	}
	return nil
}

func (a *Adapter) UpdateMonitor(monitor *models.Monitor) error {
	result, err := a.db.Exec(`
		UPDATE monitors SET status = $1, stopped_at = $2 WHERE id = $3`,
		string(monitor.Status), monitor.StoppedAt, monitor.ID)
	if err != nil {
		return errors.InternalError("failed to update monitor", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NotFoundError("monitor")
	}
	return nil
}

func (a *Adapter) scanMonitor(row interface{ Scan(...interface{}) error }) (*models.Monitor, error) {
	var monitor models.Monitor
	var kind, status string
	var config []byte
	var stoppedAt sql.NullTime

	err := row.Scan(&monitor.ID, &monitor.UserID, &kind, &config, &status,
		&monitor.StartedAt, &stoppedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("monitor")
	}
	if err != nil {
		return nil, errors.InternalError("failed to scan monitor", err)
	}

	monitor.Kind = models.MonitorKind(kind)
	monitor.Status = models.MonitorStatus(status)
	if err := unmarshalJSON(config, &monitor.Config); err != nil {
		return nil, err
	}
	if stoppedAt.Valid {
		t := stoppedAt.Time
		monitor.StoppedAt = &t
	}
	return &monitor, nil
}

func (a *Adapter) GetMonitor(id string) (*models.Monitor, error) {
	row := a.db.QueryRow(`SELECT id, user_id, kind, config, status, started_at, stopped_at
		FROM monitors WHERE id = $1`, id)
	return a.scanMonitor(row)
}

func (a *Adapter) GetUserMonitors(userID string) ([]*models.Monitor, error) {
	rows, err := a.db.Query(`SELECT id, user_id, kind, config, status, started_at, stopped_at
		FROM monitors WHERE user_id = $1 ORDER BY started_at ASC`, userID)
	if err != nil {
		return nil, errors.InternalError("failed to query monitors", err)
	}
	defer rows.Close()

	var monitors []*models.Monitor
	for rows.Next() {
		monitor, err := a.scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, monitor)
	}
	return monitors, rows.Err()
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Health() error {
	if err := a.db.Ping(); err != nil {
		return errors.ConnectionError("postgres health check failed", err)
	}
	return nil
}

// Factory creates PostgreSQL storage backends
type Factory struct{}

func (f *Factory) Create(config storage.Config) (storage.Storage, error) {
	pgConfig, ok := config.(*Config)
	if !ok {
		return nil, errors.ConfigError("invalid config type for postgres storage")
	}
	return New(pgConfig)
}

func (f *Factory) GetType() string {
	return "postgres"
}
