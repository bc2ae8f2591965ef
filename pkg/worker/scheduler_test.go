package worker_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int32
}

func (r *countingRunner) RunBatch(context.Context) worker.Stats {
	r.calls.Add(1)

	return worker.Stats{Processed: 1}
}

func TestScheduler_InvalidSpec(t *testing.T) {
	t.Parallel()

	_, err := worker.NewScheduler(slog.Default(), &countingRunner{}, "every minute")
	require.Error(t, err)
}

func TestScheduler_RunsBatches(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}

	scheduler, err := worker.NewScheduler(slog.Default(), runner, "@every 1s")
	require.NoError(t, err)
	require.NoError(t, scheduler.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	scheduler.Stop(ctx)

	calls := runner.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, runner.calls.Load(), "no batches after stop")
}
