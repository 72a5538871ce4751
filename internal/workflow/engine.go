// Package workflow runs ordered step pipelines with an approval
// checkpoint. An execution moves through running, awaiting_approval and
// the terminal states completed, failed and timeout; awaiting_approval is
// the only pause state and resumes through a single-use signed token.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"concierge-automation/internal/circuitbreaker"
	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/common/utils"
	"concierge-automation/internal/models"
	"concierge-automation/internal/storage"
)

// DefaultStepTimeout bounds one step's downstream call.
const DefaultStepTimeout = 30 * time.Second

// Engine owns the workflow catalog and drives executions to a terminal
// state or an approval pause.
type Engine struct {
	store       storage.Storage
	executors   map[models.StepType]StepExecutor
	tokens      *TokenIssuer
	stepTimeout time.Duration
	logger      logging.Logger

	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	breakers  map[models.StepType]*circuitbreaker.Breaker
}

func NewEngine(store storage.Storage, tokens *TokenIssuer, stepTimeout time.Duration, logger logging.Logger, executors ...StepExecutor) *Engine {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	registry := make(map[models.StepType]StepExecutor, len(executors))
	for _, executor := range executors {
		registry[executor.Type()] = executor
	}
	return &Engine{
		store:       store,
		executors:   registry,
		tokens:      tokens,
		stepTimeout: stepTimeout,
		logger:      logger,
		workflows:   make(map[string]*models.Workflow),
		breakers:    make(map[models.StepType]*circuitbreaker.Breaker),
	}
}

// CreateWorkflow validates the definition and registers it in the catalog.
func (e *Engine) CreateWorkflow(workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.UserID == "" {
		return nil, errors.ValidationError("user id is required")
	}
	if workflow.Name == "" {
		return nil, errors.ValidationError("workflow name is required")
	}
	if len(workflow.Steps) == 0 {
		return nil, errors.ValidationError("workflow requires at least one step")
	}
	for i, step := range workflow.Steps {
		if step.Type == models.StepApproval {
			continue
		}
		if _, ok := e.executors[step.Type]; !ok {
			return nil, errors.ValidationError(fmt.Sprintf("step %d has unknown type %q", i, step.Type))
		}
	}

	registered := *workflow
	if registered.ID == "" {
		registered.ID = utils.NewID()
	}
	registered.Steps = make([]models.StepDefinition, len(workflow.Steps))
	copy(registered.Steps, workflow.Steps)
	for i := range registered.Steps {
		if registered.Steps[i].ID == "" {
			registered.Steps[i].ID = utils.NewID()
		}
	}

	e.mu.Lock()
	e.workflows[registered.ID] = &registered
	e.mu.Unlock()

	e.logger.Info("workflow registered",
		logging.String("workflow_id", registered.ID),
		logging.String("user_id", registered.UserID),
		logging.Int("steps", len(registered.Steps)))
	return &registered, nil
}

// GetUserWorkflows returns the user's registered workflow definitions.
func (e *Engine) GetUserWorkflows(userID string) []*models.Workflow {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var workflows []*models.Workflow
	for _, workflow := range e.workflows {
		if workflow.UserID == userID {
			workflows = append(workflows, workflow)
		}
	}
	return workflows
}

func (e *Engine) workflowByID(id string) (*models.Workflow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	workflow, ok := e.workflows[id]
	return workflow, ok
}

func (e *Engine) breakerFor(stepType models.StepType) *circuitbreaker.Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	breaker, ok := e.breakers[stepType]
	if !ok {
		breaker = circuitbreaker.New("workflow-step-"+string(stepType), circuitbreaker.DefaultConfig(), e.logger)
		e.breakers[stepType] = breaker
	}
	return breaker
}

// ExecuteWorkflow starts a new execution for one trigger occurrence and
// drives it until completion, failure, timeout or an approval pause.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID, userID string, triggerData map[string]interface{}) (*models.WorkflowExecution, error) {
	workflow, ok := e.workflowByID(workflowID)
	if !ok || workflow.UserID != userID {
		return nil, errors.NotFoundError("workflow")
	}

	exec := &models.WorkflowExecution{
		ID:           utils.NewID(),
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		UserID:       workflow.UserID,
		Status:       models.ExecutionRunning,
		StartTime:    time.Now(),
		TriggerData:  triggerData,
		Steps:        make([]models.WorkflowStep, len(workflow.Steps)),
	}
	for i, step := range workflow.Steps {
		exec.Steps[i] = models.WorkflowStep{
			ID:     step.ID,
			Type:   step.Type,
			Status: models.StepPending,
		}
	}
	if err := e.store.CreateWorkflowExecution(exec); err != nil {
		return nil, err
	}

	e.runFrom(ctx, exec, workflow, 0, false)
	return exec, nil
}

// runFrom executes steps starting at index from. Each step runs to
// completion or failure before the next begins; there is no partial step
// re-entry. approvedFirst marks the step at index from as already
// approved, so a flagged step does not pause a second time on resume.
func (e *Engine) runFrom(ctx context.Context, exec *models.WorkflowExecution, workflow *models.Workflow, from int, approvedFirst bool) {
	state := e.buildState(exec)

	for i := from; i < len(workflow.Steps); i++ {
		step := workflow.Steps[i]

		gate := step.Type == models.StepApproval || step.RequiresApproval
		if gate && !(approvedFirst && i == from) {
			e.pauseForApproval(exec, step, i)
			return
		}
		if step.Type == models.StepApproval {
			// an approved gate-only step was already resolved
			continue
		}

		if !e.runStep(ctx, exec, workflow, step, i, state) {
			return
		}
		for key, value := range exec.Steps[i].Result {
			state[key] = value
		}
	}

	e.finish(exec, models.ExecutionCompleted, state)
}

// runStep executes one non-gate step and records its outcome. It returns
// false when the execution reached a terminal state.
func (e *Engine) runStep(ctx context.Context, exec *models.WorkflowExecution, workflow *models.Workflow, step models.StepDefinition, index int, state map[string]interface{}) bool {
	exec.Steps[index].Status = models.StepRunning
	e.persist(exec)

	result, err := e.executeWithTimeout(ctx, exec.UserID, step, state)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeTimeout) {
			exec.Steps[index].Status = models.StepTimedOut
			exec.Steps[index].Error = err.Error()
			e.finishWithError(exec, models.ExecutionTimeout, err.Error())
		} else {
			exec.Steps[index].Status = models.StepFailed
			exec.Steps[index].Error = err.Error()
			e.finishWithError(exec, models.ExecutionFailed, err.Error())
		}
		e.logger.Warn("workflow step failed",
			logging.String("execution_id", exec.ID),
			logging.String("step_type", string(step.Type)),
			logging.Int("step_index", index),
			logging.Err(err))
		return false
	}

	exec.Steps[index].Status = models.StepCompleted
	exec.Steps[index].Result = result
	if eventID, ok := result["event_id"].(string); ok && eventID != "" {
		url, _ := result["event_url"].(string)
		exec.CalendarEvent = &models.CalendarEventRef{EventID: eventID, EventURL: url}
	}
	e.persist(exec)
	return true
}

// pauseForApproval issues a single-use token and parks the execution.
func (e *Engine) pauseForApproval(exec *models.WorkflowExecution, step models.StepDefinition, index int) {
	token, tokenID, err := e.tokens.Issue(exec.ID)
	if err != nil {
		e.finishWithError(exec, models.ExecutionFailed, err.Error())
		return
	}

	exec.Status = models.ExecutionAwaiting
	exec.PendingTokenID = tokenID
	// ResumeIndex points at the gated step awaiting the decision
	exec.ResumeIndex = index
	if exec.Result == nil {
		exec.Result = make(map[string]interface{})
	}
	exec.Result["approval_token"] = token
	e.persist(exec)

	e.logger.Info("workflow awaiting approval",
		logging.String("execution_id", exec.ID),
		logging.Int("step_index", index))
}

// ApproveWorkflow consumes an approval token. Tokens are single use: the
// outstanding token id is cleared before any resume work happens, so a
// second call with the same token fails with an invalid-token error.
func (e *Engine) ApproveWorkflow(ctx context.Context, token string, approved bool) (*models.WorkflowExecution, error) {
	executionID, tokenID, err := e.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	exec, err := e.store.GetWorkflowExecutionByToken(tokenID)
	if err != nil {
		return nil, errors.InvalidTokenError("approval token is unknown or already consumed")
	}
	if exec.ID != executionID || exec.Status != models.ExecutionAwaiting {
		return nil, errors.InvalidTokenError("approval token is unknown or already consumed")
	}

	resumeIndex := exec.ResumeIndex
	exec.PendingTokenID = ""
	exec.ResumeIndex = 0
	delete(exec.Result, "approval_token")

	// a gate-only approval step is resolved by the decision itself; a
	// flagged real step runs after it
	gateOnly := resumeIndex >= 0 && resumeIndex < len(exec.Steps) &&
		exec.Steps[resumeIndex].Type == models.StepApproval
	if gateOnly {
		if approved {
			exec.Steps[resumeIndex].Status = models.StepCompleted
			exec.Steps[resumeIndex].Result = map[string]interface{}{"approved": true}
		} else {
			exec.Steps[resumeIndex].Status = models.StepFailed
			exec.Steps[resumeIndex].Error = "approval rejected"
		}
	}

	if !approved {
		e.finishWithError(exec, models.ExecutionFailed, "approval rejected")
		e.logger.Info("workflow rejected",
			logging.String("execution_id", exec.ID))
		return exec, nil
	}

	workflow, ok := e.workflowByID(exec.WorkflowID)
	if !ok {
		e.finishWithError(exec, models.ExecutionFailed, "workflow definition not found")
		return exec, nil
	}

	exec.Status = models.ExecutionRunning
	e.persist(exec)
	e.logger.Info("workflow approved, resuming",
		logging.String("execution_id", exec.ID),
		logging.Int("resume_index", resumeIndex))

	// the approval covers exactly the step at resumeIndex; any gate that
	// follows pauses the execution again with its own token
	e.runFrom(ctx, exec, workflow, resumeIndex, true)
	return exec, nil
}

// GetExecution returns the execution only when it belongs to the user.
func (e *Engine) GetExecution(executionID, userID string) (*models.WorkflowExecution, error) {
	exec, err := e.store.GetWorkflowExecution(executionID)
	if err != nil {
		return nil, err
	}
	if exec.UserID != userID {
		return nil, errors.NotFoundError("workflow execution")
	}
	return exec, nil
}

// GetAllExecutions returns the user's executions across all statuses.
func (e *Engine) GetAllExecutions(userID string) ([]*models.WorkflowExecution, error) {
	return e.store.GetUserWorkflowExecutions(userID)
}

// executeWithTimeout bounds the step's downstream call. Exceeding the
// budget yields a timeout error so callers can distinguish "never
// answered" from "answered with a rejection".
func (e *Engine) executeWithTimeout(ctx context.Context, userID string, step models.StepDefinition, state map[string]interface{}) (map[string]interface{}, error) {
	executor, ok := e.executors[step.Type]
	if !ok {
		return nil, errors.ExecutionError(fmt.Sprintf("no executor registered for step type %q", step.Type), nil)
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	type outcome struct {
		result map[string]interface{}
		err    error
	}
	done := make(chan outcome, 1)
	breaker := e.breakerFor(step.Type)

	go func() {
		value, err := breaker.Execute(func() (interface{}, error) {
			return executor.Execute(stepCtx, userID, step, state)
		})
		result, _ := value.(map[string]interface{})
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-stepCtx.Done():
		if stepCtx.Err() == context.DeadlineExceeded {
			return nil, errors.TimeoutError(fmt.Sprintf("step %q", step.Type))
		}
		return nil, stepCtx.Err()
	case o := <-done:
		return o.result, o.err
	}
}

// buildState reconstructs the pipeline state from the trigger data and
// completed step results, so a resumed execution sees the same state the
// paused one did.
func (e *Engine) buildState(exec *models.WorkflowExecution) map[string]interface{} {
	state := make(map[string]interface{}, len(exec.TriggerData))
	for key, value := range exec.TriggerData {
		state[key] = value
	}
	for _, step := range exec.Steps {
		if step.Status != models.StepCompleted {
			continue
		}
		for key, value := range step.Result {
			state[key] = value
		}
	}
	return state
}

func (e *Engine) finish(exec *models.WorkflowExecution, status models.ExecutionStatus, state map[string]interface{}) {
	exec.Status = status
	now := time.Now()
	exec.EndTime = &now
	if exec.Result == nil {
		exec.Result = make(map[string]interface{})
	}
	for key, value := range state {
		exec.Result[key] = value
	}
	delete(exec.Result, "approval_token")
	e.persist(exec)

	e.logger.Info("workflow finished",
		logging.String("execution_id", exec.ID),
		logging.String("status", string(status)))
}

func (e *Engine) finishWithError(exec *models.WorkflowExecution, status models.ExecutionStatus, message string) {
	exec.Status = status
	now := time.Now()
	exec.EndTime = &now
	if exec.Result == nil {
		exec.Result = make(map[string]interface{})
	}
	exec.Result["error"] = message
	delete(exec.Result, "approval_token")
	exec.PendingTokenID = ""
	e.persist(exec)
}

func (e *Engine) persist(exec *models.WorkflowExecution) {
	if err := e.store.UpdateWorkflowExecution(exec); err != nil {
		e.logger.Error("failed to persist workflow execution", err,
			logging.String("execution_id", exec.ID))
	}
}
