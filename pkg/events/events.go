// Package events defines the messages exchanged with the rest of the platform: trigger
// events coming in and execution results going out.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const (
	TriggerTopic   = "autoflow.triggers"   // Tenant events that may start flows
	ExecutionTopic = "autoflow.executions" // Results of finished passes
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TriggerReceivedEvent   EventType = "trigger.received"
	ExecutionFinishedEvent EventType = "execution.finished"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Metadata:  make(map[string]any),
	}
}

// TriggerReceived is an external tenant occurrence, e.g. "invoice.created". Flows whose
// trigger block names the same event, or the flow named by FlowID, are enqueued for it.
type TriggerReceived struct {
	BaseEvent

	Event  string         `json:"event"`
	FlowID string         `json:"flow_id,omitempty"`
	Data   map[string]any `json:"data"`
}

func (t TriggerReceived) GetType() EventType {
	return TriggerReceivedEvent
}

// NewTriggerReceived creates a trigger event. The event id doubles as the
// trigger_event_id of every queue item it produces, so redelivery is idempotent.
func NewTriggerReceived(tenantID, event string, data map[string]any) TriggerReceived {
	return TriggerReceived{
		BaseEvent: NewBaseEvent(TriggerReceivedEvent, tenantID),
		Event:     event,
		Data:      data,
	}
}

// Validate checks the fields the ingestor relies on.
func (t TriggerReceived) Validate() error {
	var missing []string

	if t.ID == "" {
		missing = append(missing, "id")
	}

	if t.TenantID == "" {
		missing = append(missing, "tenant_id")
	}

	if t.Event == "" && t.FlowID == "" {
		missing = append(missing, "event or flow_id")
	}

	if len(missing) > 0 {
		return fmt.Errorf("trigger event missing %s", strings.Join(missing, ", "))
	}

	return nil
}

// ExecutionFinished reports the end of one pass.
type ExecutionFinished struct {
	BaseEvent

	FlowID         string           `json:"flow_id"`
	QueueItemID    string           `json:"queue_item_id"`
	TriggerEventID string           `json:"trigger_event_id"`
	Status         models.RunStatus `json:"status"`
	Outcome        string           `json:"outcome"`
	Attempt        int              `json:"attempt"`
	DeadLettered   bool             `json:"dead_lettered,omitempty"`
	Error          string           `json:"error,omitempty"`
	DurationMs     int64            `json:"duration_ms"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}
