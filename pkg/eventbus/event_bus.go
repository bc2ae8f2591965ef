// Package eventbus connects the engine to the platform's message broker: trigger events
// are consumed into the execution queue and finished passes are announced.
package eventbus

import (
	"context"

	"github.com/dukex/autoflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// TopicFor returns the topic an event type travels on.
func TopicFor(eventType events.EventType) string {
	switch eventType {
	case events.TriggerReceivedEvent:
		return events.TriggerTopic
	default:
		return events.ExecutionTopic
	}
}
