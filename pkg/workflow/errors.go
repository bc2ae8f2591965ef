package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFlow indicates a flow definition that does not match the flow schema.
	ErrInvalidFlow = errors.New("invalid flow definition")

	// ErrInvalidDelay indicates a delay block without a positive duration.
	ErrInvalidDelay = errors.New("invalid delay")

	// ErrInvalidCondition indicates a condition block with a missing field or unknown operator.
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrUnknownBlock indicates a block type the interpreter cannot run.
	ErrUnknownBlock = errors.New("unknown block type")
)

// ValidationError reports a malformed block found while compiling a flow.
type ValidationError struct {
	FlowID  string
	BlockID string
	Index   int
	Err     error
}

func (e *ValidationError) Error() string {
	if e.BlockID == "" && e.Index < 0 {
		return fmt.Sprintf("flow %s: %v", e.FlowID, e.Err)
	}

	return fmt.Sprintf("flow %s block %d (%s): %v", e.FlowID, e.Index, e.BlockID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error came from compiling a malformed flow.
func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}
