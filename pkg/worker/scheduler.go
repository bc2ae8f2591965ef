package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// BatchRunner drains one batch of the queue.
type BatchRunner interface {
	RunBatch(ctx context.Context) Stats
}

// Scheduler invokes a BatchRunner on a cron schedule. A tick that fires while the
// previous batch is still running is skipped.
type Scheduler struct {
	logger *slog.Logger
	runner BatchRunner
	spec   string
	cron   *cron.Cron
}

// NewScheduler validates spec, a standard cron expression or descriptor such as
// "@every 30s".
func NewScheduler(logger *slog.Logger, runner BatchRunner, spec string) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	return &Scheduler{
		logger: logger.With("module", "scheduler", "schedule", spec),
		runner: runner,
		spec:   spec,
	}, nil
}

// Start begins invoking batches. Batches run with ctx, so cancelling it aborts the
// batch in flight.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.spec, func() {
		stats := s.runner.RunBatch(ctx)

		s.logger.InfoContext(ctx, "Scheduled batch finished",
			"processed", stats.Processed, "succeeded", stats.Succeeded, "failed", stats.Failed,
			"skipped", stats.Skipped, "deferred", stats.Deferred, "duration_ms", stats.DurationMs)
	})
	if err != nil {
		return fmt.Errorf("failed to add batch job: %w", err)
	}

	s.logger.InfoContext(ctx, "Starting scheduler")
	s.cron.Start()

	return nil
}

// Stop stops scheduling and waits for a running batch to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}

	done := s.cron.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler stopped before the running batch finished")
	}
}
