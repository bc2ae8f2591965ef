package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrQueueItemNotFound indicates a queue item was not found by the given identifier.
	ErrQueueItemNotFound = errors.New("queue item not found")

	// ErrRunNotFound indicates no ledger row exists for the given key.
	ErrRunNotFound = errors.New("execution run not found")

	// ErrJobNotFound indicates a job was not found for the tenant.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateExecution indicates the ledger key was already claimed.
	ErrDuplicateExecution = errors.New("duplicate execution")

	// ErrLeaseLost indicates another worker took over a queue item or ledger claim.
	ErrLeaseLost = errors.New("lease lost")
)

// FlowError wraps flow-related errors with additional context.
type FlowError struct {
	Op     string // Operation being performed (e.g., "FlowByID", "RecordRun")
	FlowID string
	Err    error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for flow errors.
func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{Op: op, FlowID: flowID, Err: err}
}

// QueueError wraps queue item errors with additional context.
type QueueError struct {
	Op     string
	ItemID string
	Err    error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("%s operation failed for queue item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

func (e *QueueError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewQueueError creates a new queue error with context.
func NewQueueError(op, itemID string, err error) *QueueError {
	return &QueueError{Op: op, ItemID: itemID, Err: err}
}

// RunError wraps ledger errors with the run key.
type RunError struct {
	Op             string
	FlowID         string
	TriggerEventID string
	Err            error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s/%s: %v", e.Op, e.FlowID, e.TriggerEventID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new ledger error with context.
func NewRunError(op, flowID, triggerEventID string, err error) *RunError {
	return &RunError{Op: op, FlowID: flowID, TriggerEventID: triggerEventID, Err: err}
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsQueueItemNotFound checks if an error indicates a queue item was not found.
func IsQueueItemNotFound(err error) bool {
	return errors.Is(err, ErrQueueItemNotFound)
}

// IsRunNotFound checks if an error indicates a ledger row was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsJobNotFound checks if an error indicates a job was not found.
func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsDuplicateExecution checks if an error indicates an idempotency conflict.
func IsDuplicateExecution(err error) bool {
	return errors.Is(err, ErrDuplicateExecution)
}

// IsLeaseLost checks if an error indicates the caller no longer owns the work.
func IsLeaseLost(err error) bool {
	return errors.Is(err, ErrLeaseLost)
}
