package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-automation/internal/calendar"
	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/extract"
	"concierge-automation/internal/models"
	"concierge-automation/internal/notify"
	"concierge-automation/internal/scheduler"
	"concierge-automation/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// slowStep blocks until its context is cancelled.
type slowStep struct{}

func (s *slowStep) Type() models.StepType { return models.StepType("slow") }

func (s *slowStep) Execute(ctx context.Context, _ string, _ models.StepDefinition, _ map[string]interface{}) (map[string]interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingStep always fails.
type failingStep struct{}

func (s *failingStep) Type() models.StepType { return models.StepType("failing") }

func (s *failingStep) Execute(context.Context, string, models.StepDefinition, map[string]interface{}) (map[string]interface{}, error) {
	return nil, errors.ExecutionError("downstream rejected the call", nil)
}

func newTestEngine(t *testing.T, stepTimeout time.Duration, extra ...StepExecutor) *Engine {
	t.Helper()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })

	logger := logging.GetGlobalLogger()
	provider := calendar.NewMemoryProvider()
	s := scheduler.New(provider, scheduler.DefaultPolicy(), logger)

	executors := []StepExecutor{
		NewExtractStep(extract.NewHeuristicExtractor()),
		NewScheduleStep(s),
		NewCreateEventStep(provider),
		NewNotifyStep(notify.NewLogSender(logger)),
	}
	executors = append(executors, extra...)

	return NewEngine(store, NewTokenIssuer(testSecret, 0), stepTimeout, logger, executors...)
}

func schedulingWorkflow(userID string, withApproval bool) *models.Workflow {
	steps := []models.StepDefinition{
		{Type: models.StepExtract},
		{Type: models.StepSchedule},
	}
	if withApproval {
		steps = append([]models.StepDefinition{
			steps[0],
			{Type: models.StepApproval},
		}, steps[1:]...)
	}
	steps = append(steps, models.StepDefinition{
		Type:   models.StepNotify,
		Config: map[string]interface{}{"message": "scheduled {{title}} at {{start}}"},
	})
	return &models.Workflow{Name: "voicemail scheduling", UserID: userID, Steps: steps}
}

func TestCreateWorkflowValidation(t *testing.T) {
	engine := newTestEngine(t, 0)

	_, err := engine.CreateWorkflow(&models.Workflow{UserID: "user1", Name: "w"})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation), "no steps")

	_, err = engine.CreateWorkflow(&models.Workflow{
		UserID: "user1",
		Name:   "w",
		Steps:  []models.StepDefinition{{Type: "bogus"}},
	})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation), "unknown step type")
}

func TestExecuteWorkflowCompletes(t *testing.T) {
	engine := newTestEngine(t, 0)

	workflow, err := engine.CreateWorkflow(schedulingWorkflow("user1", false))
	require.NoError(t, err)

	exec, err := engine.ExecuteWorkflow(context.Background(), workflow.ID, "user1",
		map[string]interface{}{"transcript": "Dentist appointment for 30 minutes"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionCompleted, exec.Status)
	require.NotNil(t, exec.EndTime)
	require.Len(t, exec.Steps, 3)
	for _, step := range exec.Steps {
		assert.Equal(t, models.StepCompleted, step.Status)
	}
	require.NotNil(t, exec.CalendarEvent)
	assert.NotEmpty(t, exec.CalendarEvent.EventID)
	assert.Equal(t, "Dentist appointment for 30 minutes", exec.Result["title"])
}

func TestExecuteWorkflowUnknownWorkflow(t *testing.T) {
	engine := newTestEngine(t, 0)

	_, err := engine.ExecuteWorkflow(context.Background(), "missing", "user1", nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestExecuteWorkflowForeignUser(t *testing.T) {
	engine := newTestEngine(t, 0)

	workflow, err := engine.CreateWorkflow(schedulingWorkflow("user1", false))
	require.NoError(t, err)

	_, err = engine.ExecuteWorkflow(context.Background(), workflow.ID, "user2", nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestApprovalGatePausesAndResumes(t *testing.T) {
	engine := newTestEngine(t, 0)
	ctx := context.Background()

	workflow, err := engine.CreateWorkflow(schedulingWorkflow("user1", true))
	require.NoError(t, err)

	exec, err := engine.ExecuteWorkflow(ctx, workflow.ID, "user1",
		map[string]interface{}{"transcript": "Lunch for 45 minutes"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionAwaiting, exec.Status)
	token, _ := exec.Result["approval_token"].(string)
	require.NotEmpty(t, token)

	// extract ran, schedule did not
	assert.Equal(t, models.StepCompleted, exec.Steps[0].Status)
	assert.Equal(t, models.StepPending, exec.Steps[2].Status)

	resumed, err := engine.ApproveWorkflow(ctx, token, true)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, resumed.Status)
	assert.Equal(t, models.StepCompleted, resumed.Steps[1].Status, "gate step resolved by the decision")
	require.NotNil(t, resumed.CalendarEvent)
	_, hasToken := resumed.Result["approval_token"]
	assert.False(t, hasToken)
}

func TestApprovalTokenSingleUse(t *testing.T) {
	engine := newTestEngine(t, 0)
	ctx := context.Background()

	workflow, err := engine.CreateWorkflow(schedulingWorkflow("user1", true))
	require.NoError(t, err)

	exec, err := engine.ExecuteWorkflow(ctx, workflow.ID, "user1",
		map[string]interface{}{"transcript": "Lunch"})
	require.NoError(t, err)
	token := exec.Result["approval_token"].(string)

	_, err = engine.ApproveWorkflow(ctx, token, true)
	require.NoError(t, err)

	_, err = engine.ApproveWorkflow(ctx, token, true)
	assert.True(t, errors.IsType(err, errors.ErrTypeToken), "second use must fail")
}

func TestApprovalRejection(t *testing.T) {
	engine := newTestEngine(t, 0)
	ctx := context.Background()

	workflow, err := engine.CreateWorkflow(schedulingWorkflow("user1", true))
	require.NoError(t, err)

	exec, err := engine.ExecuteWorkflow(ctx, workflow.ID, "user1",
		map[string]interface{}{"transcript": "Lunch"})
	require.NoError(t, err)
	token := exec.Result["approval_token"].(string)

	rejected, err := engine.ApproveWorkflow(ctx, token, false)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, rejected.Status)
	assert.Equal(t, "approval rejected", rejected.Result["error"])

	// the schedule step never ran
	assert.Equal(t, models.StepPending, rejected.Steps[2].Status)
}

func TestApprovalInvalidToken(t *testing.T) {
	engine := newTestEngine(t, 0)

	_, err := engine.ApproveWorkflow(context.Background(), "not-a-token", true)
	assert.True(t, errors.IsType(err, errors.ErrTypeToken))
}

func TestFlaggedStepRunsAfterApproval(t *testing.T) {
	engine := newTestEngine(t, 0)
	ctx := context.Background()

	workflow, err := engine.CreateWorkflow(&models.Workflow{
		Name:   "gated scheduling",
		UserID: "user1",
		Steps: []models.StepDefinition{
			{Type: models.StepExtract},
			{Type: models.StepSchedule, RequiresApproval: true},
		},
	})
	require.NoError(t, err)

	exec, err := engine.ExecuteWorkflow(ctx, workflow.ID, "user1",
		map[string]interface{}{"transcript": "Dentist for 30 minutes"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionAwaiting, exec.Status)
	assert.Equal(t, models.StepPending, exec.Steps[1].Status, "flagged step pauses before running")

	token := exec.Result["approval_token"].(string)
	resumed, err := engine.ApproveWorkflow(ctx, token, true)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, resumed.Status)
	assert.Equal(t, models.StepCompleted, resumed.Steps[1].Status)
	require.NotNil(t, resumed.CalendarEvent)
}

func TestConsecutiveGatesEachNeedApproval(t *testing.T) {
	engine := newTestEngine(t, 0)
	ctx := context.Background()

	// an approval step immediately followed by a flagged step: resolving
	// the first gate must not wave the second one through
	workflow, err := engine.CreateWorkflow(&models.Workflow{
		Name:   "double gated",
		UserID: "user1",
		Steps: []models.StepDefinition{
			{Type: models.StepExtract},
			{Type: models.StepApproval},
			{Type: models.StepSchedule, RequiresApproval: true},
		},
	})
	require.NoError(t, err)

	exec, err := engine.ExecuteWorkflow(ctx, workflow.ID, "user1",
		map[string]interface{}{"transcript": "Dentist for 30 minutes"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionAwaiting, exec.Status)
	firstToken := exec.Result["approval_token"].(string)

	paused, err := engine.ApproveWorkflow(ctx, firstToken, true)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionAwaiting, paused.Status, "flagged step still needs its own approval")
	assert.Equal(t, models.StepCompleted, paused.Steps[1].Status)
	assert.Equal(t, models.StepPending, paused.Steps[2].Status)

	secondToken, _ := paused.Result["approval_token"].(string)
	require.NotEmpty(t, secondToken)
	require.NotEqual(t, firstToken, secondToken)

	resumed, err := engine.ApproveWorkflow(ctx, secondToken, true)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, resumed.Status)
	assert.Equal(t, models.StepCompleted, resumed.Steps[2].Status)
	require.NotNil(t, resumed.CalendarEvent)
}

func TestStepFailureMarksExecutionFailed(t *testing.T) {
	engine := newTestEngine(t, 0, &failingStep{})

	workflow, err := engine.CreateWorkflow(&models.Workflow{
		Name:   "doomed",
		UserID: "user1",
		Steps: []models.StepDefinition{
			{Type: models.StepType("failing")},
			{Type: models.StepNotify, Config: map[string]interface{}{"message": "never"}},
		},
	})
	require.NoError(t, err)

	exec, err := engine.ExecuteWorkflow(context.Background(), workflow.ID, "user1", nil)
	require.NoError(t, err, "step failures never throw out of the engine")

	assert.Equal(t, models.ExecutionFailed, exec.Status)
	assert.Equal(t, models.StepFailed, exec.Steps[0].Status)
	assert.Equal(t, models.StepPending, exec.Steps[1].Status)
	assert.NotEmpty(t, exec.Result["error"])
}

func TestStepTimeoutIsDistinctTerminalState(t *testing.T) {
	engine := newTestEngine(t, 20*time.Millisecond, &slowStep{})

	workflow, err := engine.CreateWorkflow(&models.Workflow{
		Name:   "hangs",
		UserID: "user1",
		Steps:  []models.StepDefinition{{Type: models.StepType("slow")}},
	})
	require.NoError(t, err)

	exec, err := engine.ExecuteWorkflow(context.Background(), workflow.ID, "user1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionTimeout, exec.Status)
	assert.Equal(t, models.StepTimedOut, exec.Steps[0].Status)
}

func TestGetAllExecutions(t *testing.T) {
	engine := newTestEngine(t, 0)
	ctx := context.Background()

	workflow, err := engine.CreateWorkflow(schedulingWorkflow("user1", false))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := engine.ExecuteWorkflow(ctx, workflow.ID, "user1",
			map[string]interface{}{"transcript": "Call for 15 minutes"})
		require.NoError(t, err)
	}

	execs, err := engine.GetAllExecutions("user1")
	require.NoError(t, err)
	assert.Len(t, execs, 3)

	others, err := engine.GetAllExecutions("user2")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 0)

	token, tokenID, err := issuer.Issue("exec-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, tokenID)

	executionID, parsedID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", executionID)
	assert.Equal(t, tokenID, parsedID)

	_, _, err = issuer.Verify(token + "tampered")
	assert.True(t, errors.IsType(err, errors.ErrTypeToken))

	other := NewTokenIssuer("another-secret-that-is-long-enough!", 0)
	_, _, err = other.Verify(token)
	assert.True(t, errors.IsType(err, errors.ErrTypeToken))
}

func TestTokenIssuerExpiry(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, -time.Minute)

	// negative ttl is treated as no expiry
	token, _, err := issuer.Issue("exec-1")
	require.NoError(t, err)
	_, _, err = issuer.Verify(token)
	assert.NoError(t, err)
}
