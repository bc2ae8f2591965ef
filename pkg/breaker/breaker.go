// Package breaker implements the per-tenant circuit breaker: a rolling-window execution
// counter in shared storage that defers work once a tenant runs too much of it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultLimit    = 100
	DefaultWindow   = time.Minute
	DefaultCooldown = 2 * time.Minute
)

// ErrRateLimited indicates the tenant exceeded its execution budget for the window.
var ErrRateLimited = errors.New("rate limited")

// TrippedError carries when a rate limited item may be retried.
type TrippedError struct {
	TenantID string
	Count    int
	Limit    int
	RetryAt  time.Time
}

func (e *TrippedError) Error() string {
	return fmt.Sprintf("tenant %s %v: %d executions in window, limit %d", e.TenantID, ErrRateLimited, e.Count, e.Limit)
}

func (e *TrippedError) Unwrap() error {
	return ErrRateLimited
}

// IsRateLimited checks if an error came from a tripped breaker.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Counter is the shared rolling-window store. Record counts member as one execution at
// now and returns how many executions the tenant has in [now-window, now] including it.
// Forget removes a member recorded by a call that was then rejected.
type Counter interface {
	Record(ctx context.Context, tenantID, member string, now time.Time, window time.Duration) (int, error)
	Forget(ctx context.Context, tenantID, member string) error
}

// Config tunes the breaker. A Limit of zero or less disables it.
type Config struct {
	Limit    int
	Window   time.Duration
	Cooldown time.Duration
}

type Breaker struct {
	logger  *slog.Logger
	counter Counter
	config  Config
}

func New(logger *slog.Logger, counter Counter, config Config) *Breaker {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}

	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}

	return &Breaker{
		logger:  logger.With("module", "breaker"),
		counter: counter,
		config:  config,
	}
}

// Allow returns a *TrippedError when the tenant is over its limit. Counter failures
// are logged and the item is allowed; the breaker never causes work to be dropped.
func (b *Breaker) Allow(ctx context.Context, tenantID, itemID string, now time.Time) error {
	if b == nil || b.counter == nil || b.config.Limit <= 0 {
		return nil
	}

	count, err := b.counter.Record(ctx, tenantID, itemID, now, b.config.Window)
	if err != nil {
		b.logger.WarnContext(ctx, "breaker counter unavailable, allowing execution", "tenant_id", tenantID, "error", err)

		return nil
	}

	if count <= b.config.Limit {
		return nil
	}

	err = b.counter.Forget(ctx, tenantID, itemID)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to forget rejected execution", "tenant_id", tenantID, "error", err)
	}

	b.logger.InfoContext(ctx, "breaker tripped", "tenant_id", tenantID, "count", count, "limit", b.config.Limit)

	return &TrippedError{
		TenantID: tenantID,
		Count:    count,
		Limit:    b.config.Limit,
		RetryAt:  now.Add(b.config.Cooldown),
	}
}
