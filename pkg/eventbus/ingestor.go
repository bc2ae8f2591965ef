package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// IngestStore is what the ingestor needs from persistence.
type IngestStore interface {
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
	ActiveFlows(ctx context.Context, tenantID string) ([]*models.Flow, error)
	Enqueue(ctx context.Context, item *models.QueueItem) (bool, error)
}

// Ingestor turns trigger events into queue items.
type Ingestor struct {
	logger *slog.Logger
	store  IngestStore
	clock  func() time.Time
}

func NewIngestor(logger *slog.Logger, store IngestStore) *Ingestor {
	return &Ingestor{
		logger: logger.With("module", "ingestor"),
		store:  store,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Register subscribes the ingestor to trigger events on bus.
func (i *Ingestor) Register(bus EventSubscriber) error {
	return bus.Handle(events.TriggerReceivedEvent, func(ctx context.Context, event any) error {
		trigger, ok := event.(*events.TriggerReceived)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		_, err := i.Ingest(ctx, trigger)

		return err
	})
}

// Ingest enqueues one item per active flow of the tenant that listens for the event,
// or only the flow named by FlowID. It returns how many items were newly created;
// redelivered events create none.
func (i *Ingestor) Ingest(ctx context.Context, trigger *events.TriggerReceived) (int, error) {
	if err := trigger.Validate(); err != nil {
		i.logger.WarnContext(ctx, "discarding invalid trigger event", "error", err)

		return 0, nil
	}

	flows, err := i.matchingFlows(ctx, trigger)
	if err != nil {
		return 0, err
	}

	created := 0

	for _, flow := range flows {
		ok, err := i.store.Enqueue(ctx, &models.QueueItem{
			TenantID:       flow.TenantID,
			FlowID:         flow.ID,
			TriggerEventID: trigger.ID,
			EventData:      trigger.Data,
			ExecuteAt:      i.clock(),
		})
		if err != nil {
			return created, fmt.Errorf("failed to enqueue flow %s: %w", flow.ID, err)
		}

		if ok {
			created++
		}
	}

	i.logger.InfoContext(ctx, "trigger ingested",
		"trigger_event_id", trigger.ID, "tenant_id", trigger.TenantID, "event", trigger.Event, "matched", len(flows), "enqueued", created)

	return created, nil
}

func (i *Ingestor) matchingFlows(ctx context.Context, trigger *events.TriggerReceived) ([]*models.Flow, error) {
	if trigger.FlowID != "" {
		flow, err := i.store.FlowByID(ctx, trigger.FlowID)
		if err != nil {
			if errors.Is(err, persistence.ErrFlowNotFound) {
				return nil, nil
			}

			return nil, err
		}

		if flow.TenantID != trigger.TenantID || !flow.IsActive() {
			return nil, nil
		}

		return []*models.Flow{flow}, nil
	}

	active, err := i.store.ActiveFlows(ctx, trigger.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active flows: %w", err)
	}

	matched := make([]*models.Flow, 0, len(active))

	for _, flow := range active {
		if flow.TriggerEvent() == trigger.Event {
			matched = append(matched, flow)
		}
	}

	return matched, nil
}
