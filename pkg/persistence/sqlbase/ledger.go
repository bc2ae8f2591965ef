package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

const runColumns = `
	id
  , flow_id
  , trigger_event_id
  , tenant_id
  , queue_item_id
  , status
  , attempt
  , trace
  , error
  , started_at
  , completed_at
  , duration_ms
`

// LedgerRepository is the idempotency ledger over execution_runs.
type LedgerRepository struct {
	repository
}

// ClaimRun relies on the unique (flow_id, trigger_event_id, tenant_id) index: the
// upsert only takes over a failed or stale claimed row, and returns no row otherwise.
func (r *LedgerRepository) ClaimRun(ctx context.Context, run *models.ExecutionRun, staleBefore time.Time) error {
	if run.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		run.ID = id
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	row := r.queryRow(ctx, `
		INSERT INTO execution_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, 'claimed', 1, '[]', '', ?, NULL, 0)
		ON CONFLICT (flow_id, trigger_event_id, tenant_id) DO UPDATE SET
			status = 'claimed'
		  , attempt = execution_runs.attempt + 1
		  , queue_item_id = excluded.queue_item_id
		  , error = ''
		  , started_at = excluded.started_at
		  , completed_at = NULL
		  , duration_ms = 0
		WHERE execution_runs.status = 'failed'
		   OR (execution_runs.status = 'claimed' AND execution_runs.started_at < ?)
		RETURNING id, attempt
	`,
		run.ID, run.FlowID, run.TriggerEventID, run.TenantID, run.QueueItemID,
		toMillis(run.StartedAt), toMillis(staleBefore),
	)

	err := row.Scan(&run.ID, &run.Attempt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewRunError("ClaimRun", run.FlowID, run.TriggerEventID, persistence.ErrDuplicateExecution)
		}

		return persistence.NewRunError("ClaimRun", run.FlowID, run.TriggerEventID, err)
	}

	run.Status = models.RunStatusClaimed

	return nil
}

// FinishRun records the outcome of a claimed run. The attempt guard rejects a late
// writer whose claim was taken over.
func (r *LedgerRepository) FinishRun(ctx context.Context, run *models.ExecutionRun) error {
	trace := run.Trace
	if trace == nil {
		trace = []models.TraceStep{}
	}

	encodedTrace, err := encodeJSON(trace)
	if err != nil {
		return err
	}

	if run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}

	result, err := r.exec(ctx, `
		UPDATE execution_runs
		SET status = ?, trace = ?, error = ?, completed_at = ?, duration_ms = ?
		WHERE flow_id = ? AND trigger_event_id = ? AND tenant_id = ? AND attempt = ?
	`,
		string(run.Status), encodedTrace, run.Error, nullableMillis(run.CompletedAt), run.DurationMs,
		run.FlowID, run.TriggerEventID, run.TenantID, run.Attempt,
	)
	if err != nil {
		return persistence.NewRunError("FinishRun", run.FlowID, run.TriggerEventID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError("FinishRun", run.FlowID, run.TriggerEventID, err)
	}

	if affected == 0 {
		_, err = r.RunByKey(ctx, run.FlowID, run.TriggerEventID, run.TenantID)
		if err != nil {
			return err
		}

		return persistence.NewRunError("FinishRun", run.FlowID, run.TriggerEventID, persistence.ErrLeaseLost)
	}

	return nil
}

// RunByKey returns the ledger row for a key.
func (r *LedgerRepository) RunByKey(ctx context.Context, flowID, triggerEventID, tenantID string) (*models.ExecutionRun, error) {
	row := r.queryRow(ctx, `
		SELECT `+runColumns+` FROM execution_runs
		WHERE flow_id = ? AND trigger_event_id = ? AND tenant_id = ?
	`, flowID, triggerEventID, tenantID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByKey", flowID, triggerEventID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByKey", flowID, triggerEventID, err)
	}

	return run, nil
}

func scanRun(row scanner) (*models.ExecutionRun, error) {
	var (
		run         models.ExecutionRun
		status      string
		trace       []byte
		startedAt   int64
		completedAt sql.NullInt64
	)

	err := row.Scan(
		&run.ID, &run.FlowID, &run.TriggerEventID, &run.TenantID, &run.QueueItemID, &status,
		&run.Attempt, &trace, &run.Error, &startedAt, &completedAt, &run.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	run.CompletedAt = fromNullableMillis(completedAt)

	err = decodeJSON(trace, &run.Trace)
	if err != nil {
		return nil, err
	}

	return &run, nil
}
