package workflow_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/rules"
	"github.com/dukex/autoflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow(blocks ...models.Block) *models.Flow {
	return &models.Flow{
		ID:       "flow-1",
		TenantID: "tenant-1",
		Name:     "Invoice follow up",
		Status:   models.FlowStatusActive,
		Blocks: append([]models.Block{
			{ID: "t", Type: models.BlockTypeTrigger, Config: map[string]any{"event": "invoice.created"}},
		}, blocks...),
	}
}

func TestParseDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  map[string]any
		want    time.Duration
		wantErr bool
	}{
		{"seconds", map[string]any{"duration": "30s"}, 30 * time.Second, false},
		{"minutes", map[string]any{"duration": "30m"}, 30 * time.Minute, false},
		{"hours", map[string]any{"duration": "2h"}, 2 * time.Hour, false},
		{"days", map[string]any{"duration": "7d"}, 7 * 24 * time.Hour, false},
		{"weeks", map[string]any{"duration": "1w"}, 7 * 24 * time.Hour, false},
		{"compact wins over fields", map[string]any{"duration": "1h", "days": 3}, time.Hour, false},
		{"numeric fields add up", map[string]any{"minutes": 30.0, "hours": 1.0, "days": 1.0}, 25*time.Hour + 30*time.Minute, false},
		{"numeric string field", map[string]any{"hours": "2"}, 2 * time.Hour, false},
		{"empty compact falls back", map[string]any{"duration": "", "minutes": 5}, 5 * time.Minute, false},
		{"garbage duration", map[string]any{"duration": "soon"}, 0, true},
		{"zero duration", map[string]any{"duration": "0h"}, 0, true},
		{"no fields", map[string]any{}, 0, true},
		{"negative field", map[string]any{"minutes": -5}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := workflow.ParseDelay(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, workflow.ErrInvalidDelay)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile(t *testing.T) {
	t.Parallel()

	flow := newFlow(
		models.Block{ID: "d", Type: models.BlockTypeDelay, Config: map[string]any{"duration": "1h"}},
		models.Block{ID: "c", Type: models.BlockTypeCondition, Config: map[string]any{"field": "status", "operator": "eq", "value": "sent"}},
		models.Block{ID: "a", Type: models.BlockTypeAction, Config: map[string]any{"action": "send_email", "to": "{{trigger.email}}"}},
		models.Block{ID: "s", Type: "send_sms", Config: map[string]any{"to": "+1"}},
	)
	flow.Conditions = map[string]any{">": []any{map[string]any{"var": "trigger.total"}, 500.0}}

	program, err := workflow.Compile(slog.Default(), flow)
	require.NoError(t, err)

	require.Len(t, program.Steps, 4)
	assert.Equal(t, workflow.DelayStep{BlockID: "d", Wait: time.Hour}, program.Steps[0])
	assert.Equal(t, workflow.ConditionStep{BlockID: "c", Field: "status", Operator: workflow.OpEquals, Value: "sent"}, program.Steps[1])
	assert.IsType(t, workflow.ActionStep{}, program.Steps[2])
	assert.Equal(t, actions.KindSendSMS, program.Steps[3].(workflow.ActionStep).Action.Kind())
	assert.IsType(t, rules.Compare{}, program.Conditions)
}

func TestCompile_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		flow      *models.Flow
		wantErr   error
		wantBlock string
	}{
		{
			name:      "bad delay",
			flow:      newFlow(models.Block{ID: "d", Type: models.BlockTypeDelay, Config: map[string]any{"duration": "later"}}),
			wantErr:   workflow.ErrInvalidDelay,
			wantBlock: "d",
		},
		{
			name:      "unknown condition operator",
			flow:      newFlow(models.Block{ID: "c", Type: models.BlockTypeCondition, Config: map[string]any{"field": "x", "operator": "matches"}}),
			wantErr:   workflow.ErrInvalidCondition,
			wantBlock: "c",
		},
		{
			name:      "unknown block type",
			flow:      newFlow(models.Block{ID: "x", Type: "teleport"}),
			wantErr:   workflow.ErrUnknownBlock,
			wantBlock: "x",
		},
		{
			name:      "second trigger",
			flow:      newFlow(models.Block{ID: "t2", Type: models.BlockTypeTrigger}),
			wantErr:   workflow.ErrUnknownBlock,
			wantBlock: "t2",
		},
		{
			name:      "unknown action",
			flow:      newFlow(models.Block{ID: "a", Type: models.BlockTypeAction, Config: map[string]any{"action": "fax"}}),
			wantErr:   actions.ErrInvalidConfig,
			wantBlock: "a",
		},
		{
			name:    "schema violation",
			flow:    &models.Flow{ID: "flow-1", Status: "running"},
			wantErr: workflow.ErrInvalidFlow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := workflow.Compile(slog.Default(), tt.flow)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, workflow.IsValidationError(err))

			var validationErr *workflow.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantBlock, validationErr.BlockID)
		})
	}
}

func TestCompile_UnknownRuleOperatorIsKept(t *testing.T) {
	t.Parallel()

	flow := newFlow()
	flow.Conditions = map[string]any{"regex": []any{"a", "b"}}

	program, err := workflow.Compile(slog.Default(), flow)
	require.NoError(t, err)
	assert.Equal(t, []string{"regex"}, rules.UnknownOperators(program.Conditions))
}

func TestConditionStep_Evaluate(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"trigger": map[string]any{"status": "paid", "total": 120.0, "tags": []any{"vip", "new"}, "note": ""},
		"job_id":  "job-1",
	}

	tests := []struct {
		field string
		op    workflow.ConditionOperator
		value any
		want  bool
	}{
		{"status", workflow.OpEquals, "paid", true},
		{"trigger.status", workflow.OpEquals, "paid", true},
		{"status", workflow.OpNotEquals, "paid", false},
		{"status", workflow.OpContains, "ai", true},
		{"tags", workflow.OpContains, "vip", true},
		{"tags", workflow.OpContains, "old", false},
		{"total", workflow.OpGreaterThan, "100", true},
		{"total", workflow.OpLessThan, 100, false},
		{"status", workflow.OpGreaterThan, 1, false},
		{"job_id", workflow.OpExists, nil, true},
		{"note", workflow.OpExists, nil, false},
		{"missing", workflow.OpNotExists, nil, true},
	}

	for _, tt := range tests {
		step := workflow.ConditionStep{Field: tt.field, Operator: tt.op, Value: tt.value}
		assert.Equal(t, tt.want, step.Evaluate(data), "%s %s %v", tt.field, tt.op, tt.value)
	}
}
