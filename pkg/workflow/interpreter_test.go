package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/mocks"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/rules"
	"github.com/dukex/autoflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	interpreter *workflow.Interpreter
	email       *mocks.MockEmailSender
	jobs        *mocks.MockJobStore
}

func newFixture() *fixture {
	f := &fixture{email: &mocks.MockEmailSender{}, jobs: &mocks.MockJobStore{}}
	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{Email: f.email, Jobs: f.jobs}, time.Second)
	f.interpreter = workflow.NewInterpreter(slog.Default(), rules.NewEvaluator(slog.Default()), dispatcher)

	return f
}

func compile(t *testing.T, flow *models.Flow) *workflow.Program {
	t.Helper()

	program, err := workflow.Compile(slog.Default(), flow)
	require.NoError(t, err)

	return program
}

func emailBlock(id string) models.Block {
	return models.Block{ID: id, Type: models.BlockTypeAction, Config: map[string]any{
		"action":  "send_email",
		"to":      "{{trigger.email}}",
		"subject": "Hello {{trigger.client_name}}",
		"body":    "Job {{job_id}}",
	}}
}

func TestRun_DelaySuspendsWithoutRunningLaterBlocks(t *testing.T) {
	t.Parallel()

	f := newFixture()
	program := compile(t, newFlow(
		models.Block{ID: "d", Type: models.BlockTypeDelay, Config: map[string]any{"duration": "1h"}},
		emailBlock("a"),
	))

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	result := f.interpreter.Run(context.Background(), program, workflow.State{
		TriggerEventID: "evt_1",
		EventData:      map[string]any{"email": "a@b.test"},
	}, workflow.Options{Mode: actions.Live, Now: t0})

	assert.Equal(t, workflow.OutcomeDeferred, result.Outcome)
	require.NotNil(t, result.Resumption)
	assert.Equal(t, 1, result.Resumption.BlockIndex)
	assert.Equal(t, t0.Add(time.Hour), result.Resumption.ExecuteAt)
	assert.Equal(t, "evt_1_delay_0", result.Resumption.TriggerEventID)
	assert.Equal(t, models.RunStatusSuccess, result.RunStatus())
	assert.Equal(t, []string{"conditions", "delay_0"}, stepNames(result.Trace))
	f.email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestRun_ResumesAfterDelayWithoutReevaluatingConditions(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.email.On("SendEmail", mock.Anything, mock.MatchedBy(func(e models.Email) bool {
		return e.To == "a@b.test" && e.Body == "Job job-9"
	})).Return("msg-1", nil)

	flow := newFlow(
		models.Block{ID: "d", Type: models.BlockTypeDelay, Config: map[string]any{"hours": 1}},
		emailBlock("a"),
	)
	flow.Conditions = map[string]any{"==": []any{1, 2}}

	result := f.interpreter.Run(context.Background(), compile(t, flow), workflow.State{
		TriggerEventID: "evt_1_delay_0",
		EventData:      map[string]any{"email": "a@b.test"},
		ContextPayload: map[string]any{"job_id": "job-9"},
		BlockIndex:     1,
	}, workflow.Options{Mode: actions.Live})

	assert.Equal(t, workflow.OutcomeCompleted, result.Outcome)
	assert.False(t, result.Skipped)
	assert.Equal(t, []string{"action_1"}, stepNames(result.Trace))
	assert.Equal(t, "msg-1", result.Outputs["email_message_id"])
	assert.Equal(t, "job-9", result.Outputs["job_id"])
	f.email.AssertExpectations(t)
}

func TestRun_FalseConditionsSkip(t *testing.T) {
	t.Parallel()

	f := newFixture()
	flow := newFlow(emailBlock("a"))
	flow.Conditions = map[string]any{">": []any{map[string]any{"var": "trigger.total"}, 500}}

	result := f.interpreter.Run(context.Background(), compile(t, flow), workflow.State{
		TriggerEventID: "evt_1",
		EventData:      map[string]any{"total": 100},
	}, workflow.Options{Mode: actions.Live})

	assert.Equal(t, workflow.OutcomeCompleted, result.Outcome)
	assert.True(t, result.Skipped)
	assert.Equal(t, models.RunStatusSkipped, result.RunStatus())
	require.Len(t, result.Trace, 1)
	assert.Equal(t, models.StepStatusFailed, result.Trace[0].Status)
	f.email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestRun_LegacyConditionEndsPass(t *testing.T) {
	t.Parallel()

	f := newFixture()
	program := compile(t, newFlow(
		models.Block{ID: "c", Type: models.BlockTypeCondition, Config: map[string]any{"field": "status", "operator": "equals", "value": "paid"}},
		emailBlock("a"),
	))

	result := f.interpreter.Run(context.Background(), program, workflow.State{
		TriggerEventID: "evt_1",
		EventData:      map[string]any{"status": "overdue", "email": "a@b.test"},
	}, workflow.Options{Mode: actions.Live})

	assert.Equal(t, workflow.OutcomeCompleted, result.Outcome)
	assert.False(t, result.Skipped)
	assert.Equal(t, []string{"conditions", "condition_0"}, stepNames(result.Trace))
	assert.Equal(t, models.StepStatusFailed, result.Trace[1].Status)
	f.email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestRun_ActionOutputFeedsLaterBlocks(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.jobs.On("CreateJob", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			job, _ := args.Get(1).(*models.Job)
			job.ID = "job-7"
		}).
		Return(nil)
	f.email.On("SendEmail", mock.Anything, mock.MatchedBy(func(e models.Email) bool {
		return e.Body == "Job job-7" && e.Subject == "Hello Acme"
	})).Return("msg-2", nil)

	program := compile(t, newFlow(
		models.Block{ID: "j", Type: "create_job", Config: map[string]any{"title": "Visit {{trigger.client_name}}"}},
		emailBlock("a"),
	))

	result := f.interpreter.Run(context.Background(), program, workflow.State{
		TriggerEventID: "evt_1",
		EventData:      map[string]any{"email": "a@b.test", "client_name": "Acme"},
	}, workflow.Options{Mode: actions.Live})

	assert.Equal(t, workflow.OutcomeCompleted, result.Outcome)
	assert.Equal(t, "job-7", result.Outputs["job_id"])
	require.Len(t, result.Trace, 3)
	assert.NotNil(t, result.Trace[1].DurationMs)
	f.jobs.AssertExpectations(t)
	f.email.AssertExpectations(t)
}

func TestRun_ActionFailureAbortsPass(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.email.On("SendEmail", mock.Anything, mock.Anything).Return("", errors.New("mailbox unavailable"))

	program := compile(t, newFlow(
		emailBlock("a"),
		models.Block{ID: "j", Type: "create_job", Config: map[string]any{"title": "never"}},
	))

	result := f.interpreter.Run(context.Background(), program, workflow.State{
		TriggerEventID: "evt_1",
		EventData:      map[string]any{"email": "a@b.test"},
	}, workflow.Options{Mode: actions.Live})

	assert.Equal(t, workflow.OutcomeFailed, result.Outcome)
	assert.Equal(t, models.RunStatusFailed, result.RunStatus())
	assert.Contains(t, result.Error, "mailbox unavailable")
	assert.Equal(t, models.StepStatusError, result.Trace[len(result.Trace)-1].Status)
	f.jobs.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
}

func TestRun_SimulateWalksPastDelays(t *testing.T) {
	t.Parallel()

	f := newFixture()
	program := compile(t, newFlow(
		models.Block{ID: "d", Type: models.BlockTypeDelay, Config: map[string]any{"duration": "2d"}},
		emailBlock("a"),
	))

	state := workflow.State{TriggerEventID: "dry", EventData: map[string]any{"email": "a@b.test", "client_name": "Acme"}}

	first := f.interpreter.Run(context.Background(), program, state, workflow.Options{Mode: actions.Simulate})
	second := f.interpreter.Run(context.Background(), program, state, workflow.Options{Mode: actions.Simulate})

	assert.Equal(t, workflow.OutcomeCompleted, first.Outcome)
	assert.Nil(t, first.Resumption)
	assert.Equal(t, []string{"conditions", "delay_0", "action_1"}, stepNames(first.Trace))
	assert.Equal(t, models.StepStatusSimulated, first.Trace[1].Status)
	assert.Equal(t, models.StepStatusSimulated, first.Trace[2].Status)
	assert.Nil(t, first.Trace[2].DurationMs)
	assert.Equal(t, first.Trace, second.Trace)
	f.email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func stepNames(trace []models.TraceStep) []string {
	names := make([]string, len(trace))
	for i, step := range trace {
		names[i] = step.Step
	}

	return names
}
