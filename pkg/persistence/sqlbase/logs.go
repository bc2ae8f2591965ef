package sqlbase

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// LogRepository appends and reads execution history.
type LogRepository struct {
	repository
}

// AppendLog inserts an execution log entry. Entries are never updated.
func (r *LogRepository) AppendLog(ctx context.Context, entry *models.ExecutionLog) error {
	if entry.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		entry.ID = id
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	trace := entry.Trace
	if trace == nil {
		trace = []models.TraceStep{}
	}

	encodedTrace, err := encodeJSON(trace)
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, `
		INSERT INTO execution_logs (id, flow_id, tenant_id, queue_item_id, trigger_event_id, status, trace, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.FlowID, entry.TenantID, entry.QueueItemID, entry.TriggerEventID,
		string(entry.Status), encodedTrace, entry.DurationMs, entry.Error, toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log for flow %s: %w", entry.FlowID, err)
	}

	return nil
}

// LogsByFlow returns the most recent log entries of a flow, newest first.
func (r *LogRepository) LogsByFlow(ctx context.Context, flowID string, limit int) ([]*models.ExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.query(ctx, `
		SELECT id, flow_id, tenant_id, queue_item_id, trigger_event_id, status, trace, duration_ms, error, created_at
		FROM execution_logs
		WHERE flow_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, flowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer r.closeRows(ctx, rows)

	entries := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var (
			entry     models.ExecutionLog
			status    string
			trace     []byte
			createdAt int64
		)

		err := rows.Scan(
			&entry.ID, &entry.FlowID, &entry.TenantID, &entry.QueueItemID, &entry.TriggerEventID,
			&status, &trace, &entry.DurationMs, &entry.Error, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		entry.Status = models.RunStatus(status)
		entry.CreatedAt = fromMillis(createdAt)

		err = decodeJSON(trace, &entry.Trace)
		if err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return entries, nil
}
