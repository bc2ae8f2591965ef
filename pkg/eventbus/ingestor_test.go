package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/mocks"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func newStore(t *testing.T) persistence.Persistence {
	t.Helper()

	ctx := context.Background()

	store, err := sqlite.NewPersistence(ctx, logger, filepath.Join(t.TempDir(), "eventbus.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	return store
}

func saveFlow(t *testing.T, store persistence.Persistence, tenantID, event string, status models.FlowStatus) *models.Flow {
	t.Helper()

	flow := &models.Flow{
		TenantID: tenantID,
		Name:     "On " + event,
		Status:   status,
		Blocks: []models.Block{
			{ID: "t", Type: models.BlockTypeTrigger, Config: map[string]any{"event": event}},
			{ID: "n", Type: models.BlockTypeAction, Config: map[string]any{"action": "send_notification", "title": "hi"}},
		},
	}
	require.NoError(t, store.SaveFlow(context.Background(), flow))

	return flow
}

// drain claims every due item and returns them keyed by flow id.
func drain(t *testing.T, store persistence.Persistence) map[string]*models.QueueItem {
	t.Helper()

	items := map[string]*models.QueueItem{}

	for {
		item, err := store.ClaimNext(context.Background(), "test", time.Now().Add(time.Minute), time.Minute)
		if err != nil {
			t.Errorf("claim failed: %v", err)

			return items
		}

		if item == nil {
			return items
		}

		items[item.FlowID] = item
	}
}

func TestIngest_MatchesActiveFlowsOfTheTenant(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ingestor := eventbus.NewIngestor(logger, store)

	matching := saveFlow(t, store, "tenant-1", "invoice.created", models.FlowStatusActive)
	saveFlow(t, store, "tenant-1", "invoice.created", models.FlowStatusPaused)
	saveFlow(t, store, "tenant-1", "job.completed", models.FlowStatusActive)
	saveFlow(t, store, "tenant-2", "invoice.created", models.FlowStatusActive)

	trigger := events.NewTriggerReceived("tenant-1", "invoice.created", map[string]any{"total": 600})

	created, err := ingestor.Ingest(context.Background(), &trigger)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	again, err := ingestor.Ingest(context.Background(), &trigger)
	require.NoError(t, err)
	assert.Equal(t, 0, again, "redelivery must not enqueue twice")

	items := drain(t, store)
	require.Len(t, items, 1)

	item := items[matching.ID]
	require.NotNil(t, item)
	assert.Equal(t, trigger.ID, item.TriggerEventID)
	assert.Equal(t, "tenant-1", item.TenantID)
	assert.Equal(t, 0, item.BlockIndex)
	assert.InDelta(t, 600, item.EventData["total"], 0)
}

func TestIngest_ExplicitFlow(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ingestor := eventbus.NewIngestor(logger, store)

	flow := saveFlow(t, store, "tenant-1", "invoice.created", models.FlowStatusActive)
	saveFlow(t, store, "tenant-1", "invoice.created", models.FlowStatusActive)

	trigger := events.NewTriggerReceived("tenant-1", "", map[string]any{})
	trigger.FlowID = flow.ID

	created, err := ingestor.Ingest(context.Background(), &trigger)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	foreign := events.NewTriggerReceived("tenant-2", "", nil)
	foreign.FlowID = flow.ID

	created, err = ingestor.Ingest(context.Background(), &foreign)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	unknown := events.NewTriggerReceived("tenant-1", "", nil)
	unknown.FlowID = "missing"

	created, err = ingestor.Ingest(context.Background(), &unknown)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestIngest_DiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ingestor := eventbus.NewIngestor(logger, store)

	created, err := ingestor.Ingest(context.Background(), &events.TriggerReceived{})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestIngestor_Register(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	flow := saveFlow(t, store, "tenant-1", "invoice.created", models.FlowStatusActive)

	bus := &mocks.MockEventBus{}

	var handler eventbus.EventHandler

	bus.On("Handle", events.TriggerReceivedEvent, mock.Anything).Run(func(args mock.Arguments) {
		handler = args.Get(1).(eventbus.EventHandler)
	}).Return(nil)

	require.NoError(t, eventbus.NewIngestor(logger, store).Register(bus))
	require.NotNil(t, handler)
	bus.AssertExpectations(t)

	require.Error(t, handler(context.Background(), &events.ExecutionFinished{}))

	trigger := events.NewTriggerReceived("tenant-1", "invoice.created", nil)
	require.NoError(t, handler(context.Background(), &trigger))

	assert.Contains(t, drain(t, store), flow.ID)
}
