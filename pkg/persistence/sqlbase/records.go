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

// RecordRepository stores notifications and jobs created by live actions.
type RecordRepository struct {
	repository
}

// CreateNotification inserts a notification.
func (r *RecordRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		notification.ID = id
	}

	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	data, err := encodeJSON(orEmpty(notification.Data))
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, `
		INSERT INTO notifications (id, tenant_id, user_id, title, message, link, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		notification.ID, notification.TenantID, notification.UserID, notification.Title,
		notification.Message, notification.Link, data, toMillis(notification.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// CreateJob inserts a job.
func (r *RecordRepository) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()

	if job.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		job.ID = id
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	job.UpdatedAt = now

	data, err := encodeJSON(orEmpty(job.Data))
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, `
		INSERT INTO jobs (id, tenant_id, title, status, client_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.TenantID, job.Title, job.Status, job.ClientID, data,
		toMillis(job.CreatedAt), toMillis(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// UpdateJobStatus moves a tenant's job to a new status.
func (r *RecordRepository) UpdateJobStatus(ctx context.Context, tenantID, jobID, status string) error {
	result, err := r.exec(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		status, toMillis(time.Now()), jobID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}

	if affected == 0 {
		return fmt.Errorf("job %s: %w", jobID, persistence.ErrJobNotFound)
	}

	return nil
}

// JobByID returns a tenant's job.
func (r *RecordRepository) JobByID(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	var (
		job       models.Job
		data      []byte
		createdAt int64
		updatedAt int64
	)

	err := r.queryRow(ctx, `
		SELECT id, tenant_id, title, status, client_id, data, created_at, updated_at
		FROM jobs WHERE id = ? AND tenant_id = ?
	`, jobID, tenantID).Scan(
		&job.ID, &job.TenantID, &job.Title, &job.Status, &job.ClientID, &data, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, persistence.ErrJobNotFound)
		}

		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)

	err = decodeJSON(data, &job.Data)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// MembershipRepository answers tenant membership checks.
type MembershipRepository struct {
	repository
}

// IsTenantMember reports whether userID belongs to tenantID.
func (r *MembershipRepository) IsTenantMember(ctx context.Context, userID, tenantID string) (bool, error) {
	var count int

	err := r.queryRow(ctx,
		`SELECT COUNT(*) FROM tenant_members WHERE user_id = ? AND tenant_id = ?`,
		userID, tenantID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant membership: %w", err)
	}

	return count > 0, nil
}

// AddTenantMember grants userID access to tenantID. Adding an existing member is a no-op.
func (r *MembershipRepository) AddTenantMember(ctx context.Context, userID, tenantID string) error {
	_, err := r.exec(ctx, `
		INSERT INTO tenant_members (user_id, tenant_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, tenant_id) DO NOTHING
	`, userID, tenantID, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to add tenant member: %w", err)
	}

	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
