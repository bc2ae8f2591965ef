package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/datapath"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/rules"
)

// Outcome is the terminal state of one pass.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeDeferred  Outcome = "DEFERRED"
	OutcomeFailed    Outcome = "FAILED"
)

// State is where a pass starts: the trigger payload, the outputs accumulated by
// earlier passes and the index of the next executable block.
type State struct {
	TriggerEventID string
	EventData      map[string]any
	ContextPayload map[string]any
	BlockIndex     int
}

// Options control one pass.
type Options struct {
	Mode actions.Mode
	Now  time.Time
}

// Resumption describes the queue row that continues a deferred run.
type Resumption struct {
	BlockIndex     int
	ExecuteAt      time.Time
	TriggerEventID string
	ContextPayload map[string]any
}

// PassResult is everything a pass produced.
type PassResult struct {
	Outcome    Outcome
	Skipped    bool
	Resumption *Resumption
	Trace      []models.TraceStep
	Outputs    map[string]any
	Error      string
}

// RunStatus maps the pass onto the ledger status recorded for it.
func (r PassResult) RunStatus() models.RunStatus {
	switch {
	case r.Outcome == OutcomeFailed:
		return models.RunStatusFailed
	case r.Skipped:
		return models.RunStatusSkipped
	default:
		return models.RunStatusSuccess
	}
}

// Interpreter runs compiled programs.
type Interpreter struct {
	logger     *slog.Logger
	evaluator  *rules.Evaluator
	dispatcher *actions.Dispatcher
}

func NewInterpreter(logger *slog.Logger, evaluator *rules.Evaluator, dispatcher *actions.Dispatcher) *Interpreter {
	return &Interpreter{
		logger:     logger.With("module", "workflow_interpreter"),
		evaluator:  evaluator,
		dispatcher: dispatcher,
	}
}

// BuildContext assembles the data visible to rules and templates during a pass.
// Outputs of earlier blocks are top-level keys; trigger, flow and tenant_id are reserved.
func BuildContext(flow *models.Flow, eventData, outputs map[string]any) map[string]any {
	data := datapath.Clone(outputs)

	trigger := eventData
	if trigger == nil {
		trigger = map[string]any{}
	}

	data["trigger"] = trigger
	data["flow"] = map[string]any{"id": flow.ID, "name": flow.Name}
	data["tenant_id"] = flow.TenantID

	return data
}

// Run executes one pass of program from state.BlockIndex. Live passes stop at the first
// delay; simulated passes record the delay and keep walking.
func (i *Interpreter) Run(ctx context.Context, program *Program, state State, opts Options) PassResult {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	flow := program.Flow
	outputs := datapath.Clone(state.ContextPayload)
	data := BuildContext(flow, state.EventData, outputs)
	result := PassResult{Outcome: OutcomeCompleted, Outputs: outputs}
	logger := i.logger.With("flow_id", flow.ID, "trigger_event_id", state.TriggerEventID, "mode", opts.Mode.String())

	if state.BlockIndex == 0 {
		passed := i.evaluator.Evaluate(program.Conditions, data)

		step := models.TraceStep{Step: "conditions", Status: models.StepStatusPassed, Evaluation: passed}
		if program.Conditions == nil {
			step.Description = "No flow conditions"
		}

		if !passed {
			step.Status = models.StepStatusFailed
			result.Trace = append(result.Trace, step)
			result.Skipped = true

			logger.InfoContext(ctx, "flow conditions not met, skipping")

			return result
		}

		result.Trace = append(result.Trace, step)
	}

	for idx := state.BlockIndex; idx < len(program.Steps); idx++ {
		switch s := program.Steps[idx].(type) {
		case DelayStep:
			name := fmt.Sprintf("delay_%d", idx)

			if opts.Mode == actions.Simulate {
				result.Trace = append(result.Trace, models.TraceStep{
					Step:        name,
					Status:      models.StepStatusSimulated,
					Description: fmt.Sprintf("Would wait %s before continuing", s.Wait),
				})

				continue
			}

			result.Outcome = OutcomeDeferred
			result.Resumption = &Resumption{
				BlockIndex:     idx + 1,
				ExecuteAt:      opts.Now.Add(s.Wait),
				TriggerEventID: fmt.Sprintf("%s_delay_%d", state.TriggerEventID, idx),
				ContextPayload: outputs,
			}
			result.Trace = append(result.Trace, models.TraceStep{
				Step:        name,
				Status:      models.StepStatusPassed,
				Description: fmt.Sprintf("Resuming at %s", result.Resumption.ExecuteAt.Format(time.RFC3339)),
			})

			logger.InfoContext(ctx, "pass deferred", "block_index", idx+1, "execute_at", result.Resumption.ExecuteAt)

			return result
		case ConditionStep:
			actual := s.Resolve(data)
			passed := s.Evaluate(data)

			step := models.TraceStep{
				Step:        fmt.Sprintf("condition_%d", idx),
				Status:      models.StepStatusPassed,
				Description: fmt.Sprintf("%s %s %v", s.Field, s.Operator, s.Value),
				Evaluation:  map[string]any{"actual": actual, "result": passed},
			}

			if !passed {
				step.Status = models.StepStatusFailed
				result.Trace = append(result.Trace, step)

				logger.InfoContext(ctx, "condition block not met, ending pass", "block_index", idx)

				return result
			}

			result.Trace = append(result.Trace, step)
		case ActionStep:
			started := time.Now()
			scope := actions.Scope{TenantID: flow.TenantID, FlowID: flow.ID, BlockID: s.BlockID}
			outcome := i.dispatcher.Dispatch(ctx, s.Action, scope, data, opts.Mode)

			step := models.TraceStep{
				Step:        fmt.Sprintf("action_%d", idx),
				Status:      actionStatus(outcome),
				Description: outcome.Description,
			}

			if opts.Mode == actions.Live {
				elapsed := time.Since(started).Milliseconds()
				step.DurationMs = &elapsed
			}

			if !outcome.Success {
				step.Description = outcome.Error
				result.Trace = append(result.Trace, step)
				result.Outcome = OutcomeFailed
				result.Error = fmt.Sprintf("action_%d (%s): %s", idx, s.Action.Kind(), outcome.Error)

				return result
			}

			if len(outcome.Output) > 0 {
				datapath.Merge(outputs, outcome.Output)
				datapath.Merge(data, outcome.Output)
			}

			result.Trace = append(result.Trace, step)
		}
	}

	return result
}

func actionStatus(r actions.Result) models.StepStatus {
	switch {
	case !r.Success:
		return models.StepStatusError
	case r.Simulated:
		return models.StepStatusSimulated
	default:
		return models.StepStatusPassed
	}
}
