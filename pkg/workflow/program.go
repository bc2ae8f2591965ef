// Package workflow compiles flow definitions into programs and runs them one pass at a
// time. A pass ends when the blocks are exhausted, a condition fails, an action fails or
// a delay suspends the run until a later claim.
package workflow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/datapath"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/rules"
)

// Step is one compiled executable block. The set of implementations is closed.
type Step interface {
	blockID() string
}

// DelayStep suspends the pass for Wait.
type DelayStep struct {
	BlockID string
	Wait    time.Duration
}

// ConditionStep is a legacy single-field comparison. A false result ends the pass.
type ConditionStep struct {
	BlockID  string
	Field    string
	Operator ConditionOperator
	Value    any
}

// ActionStep dispatches a parsed action.
type ActionStep struct {
	BlockID string
	Action  actions.Action
}

func (s DelayStep) blockID() string     { return s.BlockID }
func (s ConditionStep) blockID() string { return s.BlockID }
func (s ActionStep) blockID() string    { return s.BlockID }

// Program is a flow parsed once and ready to run any number of passes.
type Program struct {
	Flow       *models.Flow
	Conditions rules.Node
	Steps      []Step
}

var compactDuration = regexp.MustCompile(`^\s*(\d+)\s*([smhdw])\s*$`)

var durationUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// Compile validates flow and parses its conditions and executable blocks. Unknown rule
// operators are logged and kept; they evaluate to true at run time.
func Compile(logger *slog.Logger, flow *models.Flow) (*Program, error) {
	err := validateDefinition(flow)
	if err != nil {
		return nil, &ValidationError{FlowID: flow.ID, Index: -1, Err: err}
	}

	program := &Program{
		Flow:       flow,
		Conditions: rules.Compile(flow.Conditions),
	}

	if unknown := rules.UnknownOperators(program.Conditions); len(unknown) > 0 {
		logger.Warn("flow conditions use unknown operators, they will evaluate to true",
			"flow_id", flow.ID, "operators", unknown)
	}

	blocks := flow.ExecutableBlocks()
	program.Steps = make([]Step, 0, len(blocks))

	for i, block := range blocks {
		step, err := compileBlock(block)
		if err != nil {
			return nil, &ValidationError{FlowID: flow.ID, BlockID: block.ID, Index: i, Err: err}
		}

		program.Steps = append(program.Steps, step)
	}

	return program, nil
}

func compileBlock(block models.Block) (Step, error) {
	switch block.Type {
	case models.BlockTypeDelay:
		wait, err := ParseDelay(block.Config)
		if err != nil {
			return nil, err
		}

		return DelayStep{BlockID: block.ID, Wait: wait}, nil
	case models.BlockTypeCondition:
		return compileCondition(block)
	case models.BlockTypeTrigger:
		return nil, fmt.Errorf("%w: trigger block is only allowed first", ErrUnknownBlock)
	}

	if block.Type != models.BlockTypeAction && !actions.IsAction(string(block.Type)) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlock, block.Type)
	}

	action, err := actions.Parse(block)
	if err != nil {
		return nil, err
	}

	return ActionStep{BlockID: block.ID, Action: action}, nil
}

// ParseDelay resolves a delay block's wait. A compact duration ("30m", "2h", "7d")
// under "duration" takes precedence over the numeric minutes, hours and days fields.
func ParseDelay(config map[string]any) (time.Duration, error) {
	if raw, ok := config["duration"]; ok && raw != nil && datapath.Stringify(raw) != "" {
		match := compactDuration.FindStringSubmatch(datapath.Stringify(raw))
		if match == nil {
			return 0, fmt.Errorf("%w: cannot parse duration %q", ErrInvalidDelay, datapath.Stringify(raw))
		}

		n, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidDelay, err)
		}

		wait := time.Duration(n) * durationUnits[match[2]]
		if wait <= 0 {
			return 0, fmt.Errorf("%w: duration must be positive", ErrInvalidDelay)
		}

		return wait, nil
	}

	var wait time.Duration

	for field, unit := range map[string]time.Duration{"minutes": time.Minute, "hours": time.Hour, "days": 24 * time.Hour} {
		raw, ok := config[field]
		if !ok || raw == nil {
			continue
		}

		n, ok := rules.ToNumber(raw)
		if !ok || n < 0 {
			return 0, fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidDelay, field)
		}

		wait += time.Duration(n * float64(unit))
	}

	if wait <= 0 {
		return 0, fmt.Errorf("%w: no duration, minutes, hours or days set", ErrInvalidDelay)
	}

	return wait, nil
}

func compileCondition(block models.Block) (Step, error) {
	field := strings.TrimSpace(datapath.Stringify(block.Config["field"]))
	if field == "" {
		return nil, fmt.Errorf("%w: field is required", ErrInvalidCondition)
	}

	op, ok := conditionOperators[strings.ToLower(datapath.Stringify(block.Config["operator"]))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, block.Config["operator"])
	}

	return ConditionStep{
		BlockID:  block.ID,
		Field:    field,
		Operator: op,
		Value:    block.Config["value"],
	}, nil
}
