// Package persistence provides the storage abstraction for flows, the work queue, the
// idempotency ledger and the records flows create.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// FlowStore reads flow definitions and tracks their run statistics.
type FlowStore interface {
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
	// ActiveFlows lists active flows. An empty tenantID lists every tenant.
	ActiveFlows(ctx context.Context, tenantID string) ([]*models.Flow, error)
	SaveFlow(ctx context.Context, flow *models.Flow) error
	RecordRun(ctx context.Context, flowID string, at time.Time) error
}

// QueueStore is the durable work queue. Every state change is a single atomic statement.
type QueueStore interface {
	// Enqueue inserts a pending item. It returns false when an item for the same
	// (flow_id, trigger_event_id) already exists.
	Enqueue(ctx context.Context, item *models.QueueItem) (bool, error)
	// ClaimNext moves one due pending item, or one processing item whose lease has
	// expired, to processing under workerID. It returns nil when nothing is claimable.
	ClaimNext(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*models.QueueItem, error)
	QueueItemByID(ctx context.Context, id string) (*models.QueueItem, error)
	// ExtendLease pushes locked_until forward while workerID still holds the item.
	ExtendLease(ctx context.Context, id, workerID string, until time.Time) error
	// The transitions below release the item. They only apply while workerID holds
	// the lease and return ErrLeaseLost once another worker has reclaimed it.
	CompleteItem(ctx context.Context, id, workerID, note string) error
	// DeferItem returns an item to pending without touching its attempt count.
	DeferItem(ctx context.Context, id, workerID string, executeAt time.Time, note string) error
	RescheduleItem(ctx context.Context, id, workerID string, attempt int, executeAt time.Time, lastError string) error
	DeadLetterItem(ctx context.Context, id, workerID string, attempt int, lastError string) error
	// ScheduleResumption inserts the row that continues a flow after a delay, or
	// refreshes it while it is still pending.
	ScheduleResumption(ctx context.Context, item *models.QueueItem) error
}

// LedgerStore is the idempotency ledger keyed by (flow_id, trigger_event_id, tenant_id).
type LedgerStore interface {
	// ClaimRun inserts a claimed row for the run's key. A failed row, or a claimed row
	// started before staleBefore, is taken over. Any other existing row yields
	// ErrDuplicateExecution.
	ClaimRun(ctx context.Context, run *models.ExecutionRun, staleBefore time.Time) error
	// FinishRun records the outcome of the claim identified by run.Attempt. It returns
	// ErrLeaseLost when the key was taken over by a later claim.
	FinishRun(ctx context.Context, run *models.ExecutionRun) error
	RunByKey(ctx context.Context, flowID, triggerEventID, tenantID string) (*models.ExecutionRun, error)
}

// WindowStore is a per-tenant sliding window of execution hits.
type WindowStore interface {
	// RecordHit adds member at `at`, drops hits older than since and returns the
	// tenant's hits in the window. Concurrent callers for one tenant are serialized.
	RecordHit(ctx context.Context, tenantID, member string, at, since time.Time) (int, error)
	ForgetHit(ctx context.Context, tenantID, member string) error
}

// LogStore keeps the append-only execution history.
type LogStore interface {
	AppendLog(ctx context.Context, entry *models.ExecutionLog) error
	LogsByFlow(ctx context.Context, flowID string, limit int) ([]*models.ExecutionLog, error)
}

// MembershipStore answers tenant membership questions for callers.
type MembershipStore interface {
	IsTenantMember(ctx context.Context, userID, tenantID string) (bool, error)
	AddTenantMember(ctx context.Context, userID, tenantID string) error
}

// RecordStore persists the records live actions create.
type RecordStore interface {
	CreateNotification(ctx context.Context, notification *models.Notification) error
	CreateJob(ctx context.Context, job *models.Job) error
	UpdateJobStatus(ctx context.Context, tenantID, jobID, status string) error
	JobByID(ctx context.Context, tenantID, jobID string) (*models.Job, error)
}

type Persistence interface {
	FlowStore
	QueueStore
	LedgerStore
	WindowStore
	LogStore
	MembershipStore
	RecordStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
