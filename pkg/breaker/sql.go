package breaker

import (
	"context"
	"fmt"
	"time"
)

// WindowStore is the SQL side of the sliding window. RecordHit must serialize
// concurrent callers for one tenant.
type WindowStore interface {
	RecordHit(ctx context.Context, tenantID, member string, at, since time.Time) (int, error)
	ForgetHit(ctx context.Context, tenantID, member string) error
}

// SQLCounter keeps the window in the main database, so the breaker needs no extra
// infrastructure. Record prunes, adds and counts in one transaction.
type SQLCounter struct {
	store WindowStore
}

func NewSQLCounter(store WindowStore) *SQLCounter {
	return &SQLCounter{store: store}
}

func (c *SQLCounter) Record(ctx context.Context, tenantID, member string, now time.Time, window time.Duration) (int, error) {
	count, err := c.store.RecordHit(ctx, tenantID, member, now, now.Add(-window))
	if err != nil {
		return 0, fmt.Errorf("failed to record execution for tenant %s: %w", tenantID, err)
	}

	return count, nil
}

func (c *SQLCounter) Forget(ctx context.Context, tenantID, member string) error {
	err := c.store.ForgetHit(ctx, tenantID, member)
	if err != nil {
		return fmt.Errorf("failed to forget execution for tenant %s: %w", tenantID, err)
	}

	return nil
}
