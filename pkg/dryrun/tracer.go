// Package dryrun previews a flow against a mock payload. It runs the interpreter in
// simulate mode and never touches the queue, the ledger or any live collaborator.
package dryrun

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/workflow"
)

// Status summarizes a dry run.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusConditionsFailed Status = "conditions_failed"
	StatusFailed           Status = "failed"
)

// Response is the result returned to the caller.
type Response struct {
	Status Status             `json:"status"`
	Trace  []models.TraceStep `json:"trace"`
	Error  string             `json:"error,omitempty"`
}

// FlowReader loads the flow being previewed.
type FlowReader interface {
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
}

type Tracer struct {
	logger      *slog.Logger
	flows       FlowReader
	interpreter *workflow.Interpreter
}

// NewTracer builds a tracer. The interpreter's dispatcher is only ever called in
// simulate mode, so it needs no live collaborators.
func NewTracer(logger *slog.Logger, flows FlowReader, interpreter *workflow.Interpreter) *Tracer {
	return &Tracer{
		logger:      logger.With("module", "dryrun"),
		flows:       flows,
		interpreter: interpreter,
	}
}

// Trace loads flowID and previews it. Flows are previewed whatever their status so
// drafts can be tested before activation.
func (t *Tracer) Trace(ctx context.Context, flowID string, payload map[string]any) (*Response, error) {
	flow, err := t.flows.FlowByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	return t.TraceFlow(ctx, flow, payload)
}

// TraceFlow previews an already loaded flow. The result depends only on the flow and
// the payload.
func (t *Tracer) TraceFlow(ctx context.Context, flow *models.Flow, payload map[string]any) (*Response, error) {
	program, err := workflow.Compile(t.logger, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to compile flow: %w", err)
	}

	result := t.interpreter.Run(ctx, program, workflow.State{
		TriggerEventID: "dry_run",
		EventData:      payload,
	}, workflow.Options{Mode: actions.Simulate})

	response := &Response{Status: StatusSuccess, Trace: result.Trace}

	switch {
	case result.Skipped:
		response.Status = StatusConditionsFailed
	case result.Outcome == workflow.OutcomeFailed:
		response.Status = StatusFailed
		response.Error = result.Error
	}

	if response.Trace == nil {
		response.Trace = []models.TraceStep{}
	}

	t.logger.DebugContext(ctx, "dry run finished", "flow_id", flow.ID, "status", response.Status, "steps", len(response.Trace))

	return response, nil
}
