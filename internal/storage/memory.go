package storage

import (
	"sort"
	"sync"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/models"
)

// MemoryStorage is an in-process Storage implementation. It backs tests
// and single-node deployments that do not need durability.
type MemoryStorage struct {
	mu         sync.RWMutex
	rules      map[string]*models.AutomationRule
	ruleOrder  []string
	triggers   map[string]*models.EmailTrigger
	trigOrder  []string
	logs       []*models.ExecutionLogEntry
	executions map[string]*models.WorkflowExecution
	execOrder  []string
	monitors   map[string]*models.Monitor
	monOrder   []string
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		rules:      make(map[string]*models.AutomationRule),
		triggers:   make(map[string]*models.EmailTrigger),
		executions: make(map[string]*models.WorkflowExecution),
		monitors:   make(map[string]*models.Monitor),
	}
}

func (s *MemoryStorage) CreateRule(rule *models.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return errors.ValidationError("rule id already exists")
	}
	clone := *rule
	s.rules[rule.ID] = &clone
	s.ruleOrder = append(s.ruleOrder, rule.ID)
	return nil
}

func (s *MemoryStorage) GetRule(id string) (*models.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, errors.NotFoundError("rule")
	}
	clone := *rule
	return &clone, nil
}

func (s *MemoryStorage) GetUserRules(userID string) ([]*models.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Creation order keeps listings stable for the UI
	var result []*models.AutomationRule
	for _, id := range s.ruleOrder {
		if rule, ok := s.rules[id]; ok && rule.UserID == userID {
			clone := *rule
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *MemoryStorage) GetAllRules() ([]*models.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AutomationRule
	for _, id := range s.ruleOrder {
		if rule, ok := s.rules[id]; ok {
			clone := *rule
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *MemoryStorage) UpdateRule(rule *models.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; !ok {
		return errors.NotFoundError("rule")
	}
	clone := *rule
	s.rules[rule.ID] = &clone
	return nil
}

func (s *MemoryStorage) DeleteRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return errors.NotFoundError("rule")
	}
	delete(s.rules, id)
	for i, rid := range s.ruleOrder {
		if rid == id {
			s.ruleOrder = append(s.ruleOrder[:i], s.ruleOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStorage) CreateEmailTrigger(trigger *models.EmailTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.triggers[trigger.ID]; exists {
		return errors.ValidationError("trigger id already exists")
	}
	clone := *trigger
	s.triggers[trigger.ID] = &clone
	s.trigOrder = append(s.trigOrder, trigger.ID)
	return nil
}

func (s *MemoryStorage) GetEmailTrigger(id string) (*models.EmailTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trigger, ok := s.triggers[id]
	if !ok {
		return nil, errors.NotFoundError("email trigger")
	}
	clone := *trigger
	return &clone, nil
}

func (s *MemoryStorage) GetUserEmailTriggers(userID string) ([]*models.EmailTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.EmailTrigger
	for _, id := range s.trigOrder {
		if trigger, ok := s.triggers[id]; ok && trigger.UserID == userID {
			clone := *trigger
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *MemoryStorage) DeleteEmailTrigger(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.triggers[id]; !ok {
		return false, nil
	}
	delete(s.triggers, id)
	for i, tid := range s.trigOrder {
		if tid == id {
			s.trigOrder = append(s.trigOrder[:i], s.trigOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStorage) AppendExecutionLog(entry *models.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *entry
	s.logs = append(s.logs, &clone)
	return nil
}

func (s *MemoryStorage) GetRuleExecutionLogs(ruleID string, limit int) ([]*models.ExecutionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterLogs(func(e *models.ExecutionLogEntry) bool {
		return e.RuleID == ruleID
	}, limit), nil
}

func (s *MemoryStorage) GetUserExecutionLogs(userID string, limit int) ([]*models.ExecutionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterLogs(func(e *models.ExecutionLogEntry) bool {
		return e.UserID == userID
	}, limit), nil
}

// filterLogs returns matching entries newest first. Callers hold the lock.
func (s *MemoryStorage) filterLogs(match func(*models.ExecutionLogEntry) bool, limit int) []*models.ExecutionLogEntry {
	var result []*models.ExecutionLogEntry
	for _, entry := range s.logs {
		if match(entry) {
			clone := *entry
			result = append(result, &clone)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *MemoryStorage) CreateWorkflowExecution(exec *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[exec.ID]; exists {
		return errors.ValidationError("execution id already exists")
	}
	clone := cloneExecution(exec)
	s.executions[exec.ID] = clone
	s.execOrder = append(s.execOrder, exec.ID)
	return nil
}

func (s *MemoryStorage) UpdateWorkflowExecution(exec *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[exec.ID]; !ok {
		return errors.NotFoundError("workflow execution")
	}
	s.executions[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *MemoryStorage) GetWorkflowExecution(id string) (*models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, errors.NotFoundError("workflow execution")
	}
	return cloneExecution(exec), nil
}

func (s *MemoryStorage) GetUserWorkflowExecutions(userID string) ([]*models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.WorkflowExecution
	for _, id := range s.execOrder {
		if exec, ok := s.executions[id]; ok && exec.UserID == userID {
			result = append(result, cloneExecution(exec))
		}
	}
	return result, nil
}

func (s *MemoryStorage) GetWorkflowExecutionByToken(tokenID string) (*models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, exec := range s.executions {
		if exec.PendingTokenID != "" && exec.PendingTokenID == tokenID {
			return cloneExecution(exec), nil
		}
	}
	return nil, errors.NotFoundError("approval token")
}

func (s *MemoryStorage) CreateMonitor(monitor *models.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.monitors[monitor.ID]; exists {
		return errors.ValidationError("monitor id already exists")
	}
	clone := *monitor
	s.monitors[monitor.ID] = &clone
	s.monOrder = append(s.monOrder, monitor.ID)
	return nil
}

func (s *MemoryStorage) UpdateMonitor(monitor *models.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[monitor.ID]; !ok {
		return errors.NotFoundError("monitor")
	}
	clone := *monitor
	s.monitors[monitor.ID] = &clone
	return nil
}

func (s *MemoryStorage) GetMonitor(id string) (*models.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	monitor, ok := s.monitors[id]
	if !ok {
		return nil, errors.NotFoundError("monitor")
	}
	clone := *monitor
	return &clone, nil
}

func (s *MemoryStorage) GetUserMonitors(userID string) ([]*models.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Monitor
	for _, id := range s.monOrder {
		if monitor, ok := s.monitors[id]; ok && monitor.UserID == userID {
			clone := *monitor
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) Health() error {
	return nil
}

func cloneExecution(exec *models.WorkflowExecution) *models.WorkflowExecution {
	clone := *exec
	clone.Steps = make([]models.WorkflowStep, len(exec.Steps))
	copy(clone.Steps, exec.Steps)
	if exec.CalendarEvent != nil {
		ref := *exec.CalendarEvent
		clone.CalendarEvent = &ref
	}
	return &clone
}
