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

const flowColumns = `
	id
  , tenant_id
  , name
  , status
  , conditions
  , blocks
  , run_count
  , last_run
  , created_at
  , updated_at
`

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	repository
}

// FlowByID returns a flow by its ID.
func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.queryRow(ctx, `SELECT `+flowColumns+` FROM automation_flows WHERE id = ?`, id)

	flow, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return flow, nil
}

// ActiveFlows returns active flows, optionally limited to one tenant.
func (r *FlowRepository) ActiveFlows(ctx context.Context, tenantID string) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM automation_flows WHERE status = ?`
	args := []any{string(models.FlowStatusActive)}

	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}

	query += ` ORDER BY created_at`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// SaveFlow inserts or replaces a flow definition. Run statistics are preserved.
func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	if flow.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		flow.ID = id
	}

	conditions, err := encodeJSON(flow.Conditions)
	if err != nil {
		return err
	}

	blocks := flow.Blocks
	if blocks == nil {
		blocks = []models.Block{}
	}

	encodedBlocks, err := encodeJSON(blocks)
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, `
		INSERT INTO automation_flows (id, tenant_id, name, status, conditions, blocks, run_count, last_run, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = excluded.tenant_id
		  , name = excluded.name
		  , status = excluded.status
		  , conditions = excluded.conditions
		  , blocks = excluded.blocks
		  , updated_at = excluded.updated_at
	`,
		flow.ID, flow.TenantID, flow.Name, string(flow.Status), conditions, encodedBlocks,
		flow.RunCount, nullableMillis(flow.LastRun), toMillis(flow.CreatedAt), toMillis(flow.UpdatedAt),
	)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

// RecordRun increments run_count and stamps last_run in one statement.
func (r *FlowRepository) RecordRun(ctx context.Context, flowID string, at time.Time) error {
	result, err := r.exec(ctx,
		`UPDATE automation_flows SET run_count = run_count + 1, last_run = ? WHERE id = ?`,
		toMillis(at), flowID,
	)
	if err != nil {
		return persistence.NewFlowError("RecordRun", flowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("RecordRun", flowID, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("RecordRun", flowID, persistence.ErrFlowNotFound)
	}

	return nil
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow       models.Flow
		status     string
		conditions []byte
		blocks     []byte
		lastRun    sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)

	err := row.Scan(
		&flow.ID, &flow.TenantID, &flow.Name, &status, &conditions, &blocks,
		&flow.RunCount, &lastRun, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	flow.Status = models.FlowStatus(status)
	flow.LastRun = fromNullableMillis(lastRun)
	flow.CreatedAt = fromMillis(createdAt)
	flow.UpdatedAt = fromMillis(updatedAt)

	err = decodeJSON(conditions, &flow.Conditions)
	if err != nil {
		return nil, err
	}

	err = decodeJSON(blocks, &flow.Blocks)
	if err != nil {
		return nil, err
	}

	return &flow, nil
}
