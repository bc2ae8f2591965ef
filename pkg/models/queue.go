package models

import "time"

// QueueStatus is the delivery state of a queue item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusDeadLetter QueueStatus = "dead_letter"
)

// QueueItem is one unit of pending work: a flow to run (or resume) for one trigger event.
type QueueItem struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	FlowID         string         `json:"flow_id"`
	TriggerEventID string         `json:"trigger_event_id"`
	EventData      map[string]any `json:"event_data"`
	ContextPayload map[string]any `json:"context_payload,omitempty"`
	BlockIndex     int            `json:"block_index"`
	ExecuteAt      time.Time      `json:"execute_at"`
	Status         QueueStatus    `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	LastError      string         `json:"last_error,omitempty"`
	Note           string         `json:"note,omitempty"`
	LockedBy       string         `json:"locked_by,omitempty"`
	LockedUntil    *time.Time     `json:"locked_until,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the item will never be claimed again.
func (q *QueueItem) IsTerminal() bool {
	return q.Status == QueueStatusCompleted || q.Status == QueueStatusDeadLetter
}
