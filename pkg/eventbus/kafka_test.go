package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/autoflow/pkg/channels/kafka"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()

	admin, err := sarama.NewClusterAdmin(brokers, sarama.NewConfig())
	require.NoError(t, err)

	defer func() {
		_ = admin.Close()
	}()

	for _, topic := range topics {
		err := admin.CreateTopic(topic, &sarama.TopicDetail{NumPartitions: 1, ReplicationFactor: 1}, false)
		require.NoError(t, err)
	}
}

func TestKafkaEventBus_TriggerToQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	createTopics(t, brokers, events.TriggerTopic, events.ExecutionTopic)

	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), brokers, "cg-autoflow-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	store := newStore(t)
	flow := saveFlow(t, store, "tenant-1", "job.completed", models.FlowStatusActive)

	require.NoError(t, eventbus.NewIngestor(logger, store).Register(bus))
	require.NoError(t, bus.Subscribe(ctx))

	trigger := events.NewTriggerReceived("tenant-1", "job.completed", map[string]any{"job_id": "job-9"})
	require.NoError(t, bus.PublishTrigger(ctx, trigger))

	var items map[string]*models.QueueItem

	assert.Eventually(t, func() bool {
		items = drain(t, store)

		return len(items) == 1
	}, time.Minute, 200*time.Millisecond)

	require.Contains(t, items, flow.ID)
	assert.Equal(t, trigger.ID, items[flow.ID].TriggerEventID)
}

func TestParseBrokers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a:9092", "b:9092"}, kafka.ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, kafka.ParseBrokers(""))
}
