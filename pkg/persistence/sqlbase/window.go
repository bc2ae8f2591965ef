package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WindowRepository keeps the breaker's per-tenant sliding window in breaker_hits.
type WindowRepository struct {
	repository
}

// RecordHit upserts the tenant's breaker_tenants row first. On Postgres that row lock
// serializes concurrent recorders of one tenant until commit; SQLite has a single
// writer. The prune, insert and count that follow therefore see every earlier hit.
func (r *WindowRepository) RecordHit(ctx context.Context, tenantID, member string, at, since time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin window transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	statements := []struct {
		query string
		args  []any
	}{
		{`
			INSERT INTO breaker_tenants (tenant_id, touched_at) VALUES (?, ?)
			ON CONFLICT (tenant_id) DO UPDATE SET touched_at = excluded.touched_at
		`, []any{tenantID, toMillis(at)}},
		{`DELETE FROM breaker_hits WHERE tenant_id = ? AND recorded_at < ?`, []any{tenantID, toMillis(since)}},
		{`
			INSERT INTO breaker_hits (tenant_id, member, recorded_at) VALUES (?, ?, ?)
			ON CONFLICT (tenant_id, member) DO UPDATE SET recorded_at = excluded.recorded_at
		`, []any{tenantID, member, toMillis(at)}},
	}

	for _, statement := range statements {
		_, err = tx.ExecContext(ctx, r.dialect.Rebind(statement.query), statement.args...)
		if err != nil {
			return 0, fmt.Errorf("failed to record hit for tenant %s: %w", tenantID, err)
		}
	}

	count, err := countHits(ctx, tx, r.dialect, tenantID, since)
	if err != nil {
		return 0, err
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit window transaction: %w", err)
	}

	return count, nil
}

// ForgetHit removes a hit recorded by a rejected execution.
func (r *WindowRepository) ForgetHit(ctx context.Context, tenantID, member string) error {
	_, err := r.exec(ctx, `DELETE FROM breaker_hits WHERE tenant_id = ? AND member = ?`, tenantID, member)
	if err != nil {
		return fmt.Errorf("failed to forget hit for tenant %s: %w", tenantID, err)
	}

	return nil
}

func countHits(ctx context.Context, tx *sql.Tx, dialect Dialect, tenantID string, since time.Time) (int, error) {
	var count int

	err := tx.QueryRowContext(ctx,
		dialect.Rebind(`SELECT COUNT(*) FROM breaker_hits WHERE tenant_id = ? AND recorded_at >= ?`),
		tenantID, toMillis(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count hits for tenant %s: %w", tenantID, err)
	}

	return count, nil
}
