package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

const queueColumns = `
	id
  , tenant_id
  , flow_id
  , trigger_event_id
  , event_data
  , context_payload
  , block_index
  , execute_at
  , status
  , attempt_count
  , last_error
  , note
  , locked_by
  , locked_until
  , created_at
  , updated_at
`

// QueueRepository handles the automation work queue.
type QueueRepository struct {
	repository
}

// Enqueue inserts a pending item unless one exists for the same (flow_id, trigger_event_id).
func (r *QueueRepository) Enqueue(ctx context.Context, item *models.QueueItem) (bool, error) {
	err := prepareItem(item)
	if err != nil {
		return false, err
	}

	eventData, contextPayload, err := encodePayloads(item)
	if err != nil {
		return false, err
	}

	result, err := r.exec(ctx, `
		INSERT INTO automation_queue (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (flow_id, trigger_event_id) DO NOTHING
	`,
		item.ID, item.TenantID, item.FlowID, item.TriggerEventID, eventData, contextPayload,
		item.BlockIndex, toMillis(item.ExecuteAt), string(item.Status), item.AttemptCount,
		item.LastError, item.Note, "", int64(0), toMillis(item.CreatedAt), toMillis(item.UpdatedAt),
	)
	if err != nil {
		return false, persistence.NewQueueError("Enqueue", item.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewQueueError("Enqueue", item.ID, err)
	}

	return affected == 1, nil
}

// ScheduleResumption inserts the continuation row of a delayed flow. When the row
// already exists and is still pending its resume point and payload are refreshed.
func (r *QueueRepository) ScheduleResumption(ctx context.Context, item *models.QueueItem) error {
	err := prepareItem(item)
	if err != nil {
		return err
	}

	eventData, contextPayload, err := encodePayloads(item)
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, `
		INSERT INTO automation_queue (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (flow_id, trigger_event_id) DO UPDATE SET
			block_index = excluded.block_index
		  , execute_at = excluded.execute_at
		  , event_data = excluded.event_data
		  , context_payload = excluded.context_payload
		  , updated_at = excluded.updated_at
		WHERE automation_queue.status = 'pending'
	`,
		item.ID, item.TenantID, item.FlowID, item.TriggerEventID, eventData, contextPayload,
		item.BlockIndex, toMillis(item.ExecuteAt), string(models.QueueStatusPending), 0,
		"", item.Note, "", int64(0), toMillis(item.CreatedAt), toMillis(item.UpdatedAt),
	)
	if err != nil {
		return persistence.NewQueueError("ScheduleResumption", item.ID, err)
	}

	return nil
}

// ClaimNext atomically takes the next due item. Items whose processing lease expired
// are claimable again, which recovers work from crashed workers.
func (r *QueueRepository) ClaimNext(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*models.QueueItem, error) {
	nowMs := toMillis(now)

	row := r.queryRow(ctx, `
		UPDATE automation_queue
		SET status = 'processing'
		  , locked_by = ?
		  , locked_until = ?
		  , updated_at = ?
		WHERE id = (
			SELECT id FROM automation_queue
			WHERE (status = 'pending' AND execute_at <= ?)
			   OR (status = 'processing' AND locked_until <= ?)
			ORDER BY execute_at, id
			LIMIT 1
			`+r.dialect.ClaimLock+`
		)
		RETURNING `+queueColumns,
		workerID, toMillis(now.Add(lease)), nowMs, nowMs, nowMs,
	)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to claim queue item: %w", err)
	}

	return item, nil
}

// QueueItemByID returns a queue item by its ID.
func (r *QueueRepository) QueueItemByID(ctx context.Context, id string) (*models.QueueItem, error) {
	row := r.queryRow(ctx, `SELECT `+queueColumns+` FROM automation_queue WHERE id = ?`, id)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewQueueError("QueueItemByID", id, persistence.ErrQueueItemNotFound)
		}

		return nil, persistence.NewQueueError("QueueItemByID", id, err)
	}

	return item, nil
}

// ExtendLease renews the lease of an item workerID is still processing.
func (r *QueueRepository) ExtendLease(ctx context.Context, id, workerID string, until time.Time) error {
	return r.transition(ctx, "ExtendLease", id, `
		UPDATE automation_queue
		SET locked_until = ?, updated_at = ?
		WHERE id = ? AND status = 'processing' AND locked_by = ?
	`, toMillis(until), toMillis(time.Now()), id, workerID)
}

// CompleteItem marks an item completed.
func (r *QueueRepository) CompleteItem(ctx context.Context, id, workerID, note string) error {
	return r.transition(ctx, "CompleteItem", id, `
		UPDATE automation_queue
		SET status = 'completed', note = ?, locked_by = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND status = 'processing' AND locked_by = ?
	`, note, toMillis(time.Now()), id, workerID)
}

// DeferItem returns an item to pending at executeAt, leaving attempt_count untouched.
func (r *QueueRepository) DeferItem(ctx context.Context, id, workerID string, executeAt time.Time, note string) error {
	return r.transition(ctx, "DeferItem", id, `
		UPDATE automation_queue
		SET status = 'pending', execute_at = ?, note = ?, locked_by = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND status = 'processing' AND locked_by = ?
	`, toMillis(executeAt), note, toMillis(time.Now()), id, workerID)
}

// RescheduleItem returns a failed item to pending for another attempt.
func (r *QueueRepository) RescheduleItem(ctx context.Context, id, workerID string, attempt int, executeAt time.Time, lastError string) error {
	return r.transition(ctx, "RescheduleItem", id, `
		UPDATE automation_queue
		SET status = 'pending', attempt_count = ?, execute_at = ?, last_error = ?, locked_by = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND status = 'processing' AND locked_by = ?
	`, attempt, toMillis(executeAt), lastError, toMillis(time.Now()), id, workerID)
}

// DeadLetterItem parks an item permanently after its retry budget is spent.
func (r *QueueRepository) DeadLetterItem(ctx context.Context, id, workerID string, attempt int, lastError string) error {
	return r.transition(ctx, "DeadLetterItem", id, `
		UPDATE automation_queue
		SET status = 'dead_letter', attempt_count = ?, last_error = ?, locked_by = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND status = 'processing' AND locked_by = ?
	`, attempt, lastError, toMillis(time.Now()), id, workerID)
}

// transition runs an owner-guarded update. Zero affected rows means either the item is
// gone or another worker holds it.
func (r *QueueRepository) transition(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.exec(ctx, query, args...)
	if err != nil {
		return persistence.NewQueueError(op, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewQueueError(op, id, err)
	}

	if affected > 0 {
		return nil
	}

	var exists int

	err = r.queryRow(ctx, `SELECT COUNT(*) FROM automation_queue WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return persistence.NewQueueError(op, id, err)
	}

	if exists == 0 {
		return persistence.NewQueueError(op, id, persistence.ErrQueueItemNotFound)
	}

	return persistence.NewQueueError(op, id, persistence.ErrLeaseLost)
}

func prepareItem(item *models.QueueItem) error {
	now := time.Now().UTC()

	if item.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		item.ID = id
	}

	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}

	if item.ExecuteAt.IsZero() {
		item.ExecuteAt = now
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	item.UpdatedAt = now

	return nil
}

func encodePayloads(item *models.QueueItem) (string, string, error) {
	eventData := item.EventData
	if eventData == nil {
		eventData = map[string]any{}
	}

	contextPayload := item.ContextPayload
	if contextPayload == nil {
		contextPayload = map[string]any{}
	}

	encodedEvent, err := encodeJSON(eventData)
	if err != nil {
		return "", "", err
	}

	encodedContext, err := encodeJSON(contextPayload)
	if err != nil {
		return "", "", err
	}

	return encodedEvent, encodedContext, nil
}

func scanQueueItem(row scanner) (*models.QueueItem, error) {
	var (
		item           models.QueueItem
		eventData      []byte
		contextPayload []byte
		status         string
		executeAt      int64
		lockedUntil    int64
		createdAt      int64
		updatedAt      int64
	)

	err := row.Scan(
		&item.ID, &item.TenantID, &item.FlowID, &item.TriggerEventID, &eventData, &contextPayload,
		&item.BlockIndex, &executeAt, &status, &item.AttemptCount, &item.LastError, &item.Note,
		&item.LockedBy, &lockedUntil, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = models.QueueStatus(status)
	item.ExecuteAt = fromMillis(executeAt)
	item.LockedUntil = fromNullableMillis(sql.NullInt64{Int64: lockedUntil, Valid: true})
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)

	err = decodeJSON(eventData, &item.EventData)
	if err != nil {
		return nil, err
	}

	err = decodeJSON(contextPayload, &item.ContextPayload)
	if err != nil {
		return nil, err
	}

	return &item, nil
}
