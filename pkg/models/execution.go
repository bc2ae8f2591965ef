package models

import "time"

// RunStatus is the ledger state of one (flow, trigger event, tenant) execution.
type RunStatus string

const (
	RunStatusClaimed RunStatus = "claimed"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusSkipped RunStatus = "skipped"
)

// StepStatus is the outcome recorded for one trace step.
type StepStatus string

const (
	StepStatusPassed    StepStatus = "passed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSimulated StepStatus = "simulated"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusError     StepStatus = "error"
)

// TraceStep records what happened at one step of a pass.
type TraceStep struct {
	Step        string     `json:"step"`
	Status      StepStatus `json:"status"`
	Description string     `json:"description,omitempty"`
	Evaluation  any        `json:"evaluation,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`
}

// ExecutionRun is the idempotency ledger row. Its key is (FlowID, TriggerEventID, TenantID).
type ExecutionRun struct {
	ID             string      `json:"id"`
	FlowID         string      `json:"flow_id"`
	TriggerEventID string      `json:"trigger_event_id"`
	TenantID       string      `json:"tenant_id"`
	QueueItemID    string      `json:"queue_item_id,omitempty"`
	Status         RunStatus   `json:"status"`
	Attempt        int         `json:"attempt"`
	Trace          []TraceStep `json:"trace,omitempty"`
	Error          string      `json:"error,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	DurationMs     int64       `json:"duration_ms"`
}

// ExecutionLog is an append-only record of one pass.
type ExecutionLog struct {
	ID             string      `json:"id"`
	FlowID         string      `json:"flow_id"`
	TenantID       string      `json:"tenant_id"`
	QueueItemID    string      `json:"queue_item_id,omitempty"`
	TriggerEventID string      `json:"trigger_event_id"`
	Status         RunStatus   `json:"status"`
	Trace          []TraceStep `json:"trace"`
	DurationMs     int64       `json:"duration_ms"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
