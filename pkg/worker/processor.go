// Package worker drives queued flow executions: it claims due items one at a time and
// runs each through the breaker, the idempotency ledger and one interpreter pass.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/breaker"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBatchSize    = 10
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Minute
	DefaultMaxBackoff   = time.Hour
	DefaultLease        = 5 * time.Minute
)

// Store is the storage the processor needs.
type Store interface {
	persistence.FlowStore
	persistence.QueueStore
	persistence.LedgerStore
	persistence.LogStore
}

// ExecutionPublisher announces finished passes.
type ExecutionPublisher interface {
	PublishExecutionFinished(ctx context.Context, event events.ExecutionFinished) error
}

type Config struct {
	WorkerID     string
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	Lease        time.Duration
}

// Dependencies groups the collaborators of a Processor. Publisher, Tracer and Clock
// are optional.
type Dependencies struct {
	Store       Store
	Interpreter *workflow.Interpreter
	Programs    *workflow.Cache
	Breaker     *breaker.Breaker
	Publisher   ExecutionPublisher
	Tracer      trace.Tracer
	Clock       func() time.Time
}

// Stats aggregates one batch. Processed = Succeeded + Failed + Skipped; the remaining
// counters break those three down.
type Stats struct {
	Processed    int   `json:"processed"`
	Succeeded    int   `json:"succeeded"`
	Failed       int   `json:"failed"`
	Skipped      int   `json:"skipped"`
	Retried      int   `json:"retried"`
	DeadLettered int   `json:"dead_lettered"`
	Deferred     int   `json:"deferred"`
	Duplicates   int   `json:"duplicates"`
	RateLimited  int   `json:"rate_limited"`
	DurationMs   int64 `json:"duration_ms"`
}

type Processor struct {
	logger *slog.Logger
	deps   Dependencies
	config Config
}

func NewProcessor(logger *slog.Logger, deps Dependencies, config Config) *Processor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultMaxBackoff
	}

	if config.Lease <= 0 {
		config.Lease = DefaultLease
	}

	if deps.Tracer == nil {
		deps.Tracer = otelhelper.NoopTracer()
	}

	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}

	if deps.Programs == nil {
		deps.Programs = workflow.NewCache(logger)
	}

	return &Processor{
		logger: logger.With("module", "worker", "worker_id", config.WorkerID),
		deps:   deps,
		config: config,
	}
}

// RunBatch claims and processes up to BatchSize items sequentially. It stops early when
// nothing is claimable or ctx is done.
func (p *Processor) RunBatch(ctx context.Context) Stats {
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, p.deps.Tracer, "worker.batch",
		attribute.String(otelhelper.WorkerIDKey, p.config.WorkerID),
		attribute.Int(otelhelper.BatchSizeKey, p.config.BatchSize),
	)
	defer span.End()

	var stats Stats

	for range p.config.BatchSize {
		if ctx.Err() != nil {
			break
		}

		item, err := p.deps.Store.ClaimNext(ctx, p.config.WorkerID, p.deps.Clock(), p.config.Lease)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to claim queue item", "error", err)
			otelhelper.SetError(span, err)

			break
		}

		if item == nil {
			break
		}

		stats.Processed++
		p.processSafely(ctx, item, &stats)
	}

	stats.DurationMs = time.Since(started).Milliseconds()

	span.SetAttributes(attribute.Int("autoflow.batch.processed", stats.Processed))

	if stats.Processed > 0 {
		p.logger.InfoContext(ctx, "batch finished",
			"processed", stats.Processed,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"duration_ms", stats.DurationMs)
	}

	return stats
}

// processSafely isolates one item. An error or panic counts as a single failure and
// leaves the item to its lease, so a later batch reclaims it.
func (p *Processor) processSafely(ctx context.Context, item *models.QueueItem, stats *Stats) {
	logger := p.logger.With("queue_item_id", item.ID, "flow_id", item.FlowID, "trigger_event_id", item.TriggerEventID)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "panic while processing queue item", "panic", r)

			stats.Failed++
		}
	}()

	ctx, span := otelhelper.StartSpan(ctx, p.deps.Tracer, "worker.item",
		attribute.String(otelhelper.QueueItemIDKey, item.ID),
		attribute.String(otelhelper.FlowIDKey, item.FlowID),
		attribute.String(otelhelper.TenantIDKey, item.TenantID),
		attribute.String(otelhelper.TriggerEventIDKey, item.TriggerEventID),
		attribute.Int(otelhelper.BlockIndexKey, item.BlockIndex),
	)
	defer span.End()

	var delta Stats

	err := p.process(ctx, logger, item, &delta)
	if persistence.IsLeaseLost(err) {
		logger.WarnContext(ctx, "queue item was reclaimed by another worker", "error", err)

		stats.Skipped++

		return
	}

	if err != nil {
		logger.ErrorContext(ctx, "failed to process queue item", "error", err)
		otelhelper.SetError(span, err)

		stats.Failed++

		return
	}

	stats.add(delta)
}

func (s *Stats) add(o Stats) {
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Retried += o.Retried
	s.DeadLettered += o.DeadLettered
	s.Deferred += o.Deferred
	s.Duplicates += o.Duplicates
	s.RateLimited += o.RateLimited
}

func (p *Processor) process(ctx context.Context, logger *slog.Logger, item *models.QueueItem, stats *Stats) error {
	now := p.deps.Clock()

	flow, err := p.deps.Store.FlowByID(ctx, item.FlowID)
	if persistence.IsFlowNotFound(err) {
		stats.Skipped++

		return p.deps.Store.CompleteItem(ctx, item.ID, p.config.WorkerID, "flow no longer exists")
	}

	if err != nil {
		return fmt.Errorf("failed to load flow: %w", err)
	}

	if !flow.IsActive() {
		logger.InfoContext(ctx, "flow is not active, completing item", "status", flow.Status)

		stats.Skipped++

		return p.deps.Store.CompleteItem(ctx, item.ID, p.config.WorkerID, fmt.Sprintf("flow is %s", flow.Status))
	}

	program, err := p.deps.Programs.Program(flow)
	if err != nil {
		logger.WarnContext(ctx, "flow does not compile, dead-lettering item", "error", err)

		stats.Failed++
		stats.DeadLettered++

		p.appendLog(ctx, logger, &models.ExecutionLog{
			FlowID:         flow.ID,
			TenantID:       flow.TenantID,
			QueueItemID:    item.ID,
			TriggerEventID: item.TriggerEventID,
			Status:         models.RunStatusFailed,
			Trace:          []models.TraceStep{},
			Error:          err.Error(),
		})

		return p.deps.Store.DeadLetterItem(ctx, item.ID, p.config.WorkerID, item.AttemptCount, err.Error())
	}

	err = p.deps.Breaker.Allow(ctx, flow.TenantID, item.ID, now)
	if tripped := (*breaker.TrippedError)(nil); errors.As(err, &tripped) {
		stats.Skipped++
		stats.RateLimited++

		return p.deps.Store.DeferItem(ctx, item.ID, p.config.WorkerID, tripped.RetryAt, err.Error())
	}

	run := &models.ExecutionRun{
		FlowID:         flow.ID,
		TriggerEventID: item.TriggerEventID,
		TenantID:       flow.TenantID,
		QueueItemID:    item.ID,
		StartedAt:      now,
	}

	err = p.deps.Store.ClaimRun(ctx, run, now.Add(-p.config.Lease))
	if persistence.IsDuplicateExecution(err) {
		logger.InfoContext(ctx, "execution already claimed, skipping duplicate")

		stats.Skipped++
		stats.Duplicates++

		return p.deps.Store.CompleteItem(ctx, item.ID, p.config.WorkerID, "duplicate execution")
	}

	if err != nil {
		return fmt.Errorf("failed to claim execution: %w", err)
	}

	passCtx, release := p.holdLease(ctx, logger, item)

	started := time.Now()
	result := p.deps.Interpreter.Run(passCtx, program, workflow.State{
		TriggerEventID: item.TriggerEventID,
		EventData:      item.EventData,
		ContextPayload: item.ContextPayload,
		BlockIndex:     item.BlockIndex,
	}, workflow.Options{Mode: actions.Live, Now: now})

	release()

	return p.finalize(ctx, logger, item, run, result, time.Since(started), stats)
}

func (p *Processor) finalize(
	ctx context.Context,
	logger *slog.Logger,
	item *models.QueueItem,
	run *models.ExecutionRun,
	result workflow.PassResult,
	elapsed time.Duration,
	stats *Stats,
) error {
	now := p.deps.Clock()

	run.Status = result.RunStatus()
	run.Trace = result.Trace
	run.Error = result.Error
	run.CompletedAt = &now
	run.DurationMs = elapsed.Milliseconds()

	// The continuation of a deferred pass is written before the ledger records success.
	// If either write fails the claim stays open and the reclaimed item reruns the pass.
	if result.Outcome == workflow.OutcomeDeferred {
		err := p.deps.Store.ScheduleResumption(ctx, &models.QueueItem{
			TenantID:       item.TenantID,
			FlowID:         item.FlowID,
			TriggerEventID: result.Resumption.TriggerEventID,
			EventData:      item.EventData,
			ContextPayload: result.Resumption.ContextPayload,
			BlockIndex:     result.Resumption.BlockIndex,
			ExecuteAt:      result.Resumption.ExecuteAt,
		})
		if err != nil {
			return fmt.Errorf("failed to schedule resumption: %w", err)
		}
	}

	err := p.deps.Store.FinishRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	workerID := p.config.WorkerID
	deadLettered := false

	switch {
	case result.Outcome == workflow.OutcomeFailed:
		stats.Failed++

		attempt := item.AttemptCount + 1
		if attempt >= p.config.MaxAttempts {
			deadLettered = true
			stats.DeadLettered++

			logger.WarnContext(ctx, "max attempts reached, dead-lettering item", "attempt", attempt, "error", result.Error)

			err = p.deps.Store.DeadLetterItem(ctx, item.ID, workerID, attempt, result.Error)
		} else {
			stats.Retried++
			retryAt := now.Add(p.backoff(attempt))

			logger.InfoContext(ctx, "pass failed, rescheduling", "attempt", attempt, "retry_at", retryAt, "error", result.Error)

			err = p.deps.Store.RescheduleItem(ctx, item.ID, workerID, attempt, retryAt, result.Error)
		}
	case result.Outcome == workflow.OutcomeDeferred:
		stats.Succeeded++
		stats.Deferred++

		err = p.deps.Store.CompleteItem(ctx, item.ID, workerID, "deferred until "+result.Resumption.ExecuteAt.Format(time.RFC3339))
	case result.Skipped:
		stats.Skipped++

		err = p.deps.Store.CompleteItem(ctx, item.ID, workerID, "conditions not met")
	default:
		stats.Succeeded++

		err = p.deps.Store.CompleteItem(ctx, item.ID, workerID, "")
	}

	if err != nil {
		return fmt.Errorf("failed to finalize queue item: %w", err)
	}

	p.record(ctx, logger, item, run, result, deadLettered)

	return nil
}

// record writes the history entry, run statistics and execution event. Failures here
// are logged only; the item is already finalized.
func (p *Processor) record(
	ctx context.Context,
	logger *slog.Logger,
	item *models.QueueItem,
	run *models.ExecutionRun,
	result workflow.PassResult,
	deadLettered bool,
) {
	p.appendLog(ctx, logger, &models.ExecutionLog{
		FlowID:         run.FlowID,
		TenantID:       run.TenantID,
		QueueItemID:    item.ID,
		TriggerEventID: run.TriggerEventID,
		Status:         run.Status,
		Trace:          run.Trace,
		DurationMs:     run.DurationMs,
		Error:          run.Error,
	})

	if result.Outcome != workflow.OutcomeFailed {
		err := p.deps.Store.RecordRun(ctx, run.FlowID, *run.CompletedAt)
		if err != nil {
			logger.ErrorContext(ctx, "failed to record flow run", "error", err)
		}
	}

	if p.deps.Publisher == nil {
		return
	}

	event := events.ExecutionFinished{
		BaseEvent:      events.NewBaseEvent(events.ExecutionFinishedEvent, run.TenantID),
		FlowID:         run.FlowID,
		QueueItemID:    item.ID,
		TriggerEventID: run.TriggerEventID,
		Status:         run.Status,
		Outcome:        string(result.Outcome),
		Attempt:        run.Attempt,
		DeadLettered:   deadLettered,
		Error:          run.Error,
		DurationMs:     run.DurationMs,
	}
	event.WorkerID = p.config.WorkerID

	err := p.deps.Publisher.PublishExecutionFinished(ctx, event)
	if err != nil {
		logger.WarnContext(ctx, "failed to publish execution event", "error", err)
	}
}

func (p *Processor) appendLog(ctx context.Context, logger *slog.Logger, entry *models.ExecutionLog) {
	err := p.deps.Store.AppendLog(ctx, entry)
	if err != nil {
		logger.ErrorContext(ctx, "failed to append execution log", "error", err)
	}
}

// holdLease renews the item's lease every third of the lease period until release is
// called. The returned context is cancelled when another worker has taken the item.
func (p *Processor) holdLease(ctx context.Context, logger *slog.Logger, item *models.QueueItem) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(p.config.Lease / 3)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := p.deps.Store.ExtendLease(ctx, item.ID, p.config.WorkerID, p.deps.Clock().Add(p.config.Lease))
				if persistence.IsLeaseLost(err) {
					logger.WarnContext(ctx, "lease lost during pass, cancelling", "error", err)
					cancel()

					return
				}

				if err != nil {
					logger.WarnContext(ctx, "failed to extend lease", "error", err)
				}
			}
		}
	}()

	return ctx, func() {
		close(done)
		wg.Wait()
		cancel()
	}
}

// backoff is RetryBackoff doubled per previous attempt, capped at MaxBackoff.
func (p *Processor) backoff(attempt int) time.Duration {
	wait := p.config.RetryBackoff

	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= p.config.MaxBackoff {
			return p.config.MaxBackoff
		}
	}

	return min(wait, p.config.MaxBackoff)
}
