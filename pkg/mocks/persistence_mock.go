package mocks

import (
	"context"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockPersistence) ActiveFlows(ctx context.Context, tenantID string) ([]*models.Flow, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Flow), args.Error(1)
}

func (m *MockPersistence) SaveFlow(ctx context.Context, flow *models.Flow) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

func (m *MockPersistence) RecordRun(ctx context.Context, flowID string, at time.Time) error {
	args := m.Called(ctx, flowID, at)

	return args.Error(0)
}

func (m *MockPersistence) Enqueue(ctx context.Context, item *models.QueueItem) (bool, error) {
	args := m.Called(ctx, item)

	return args.Bool(0), args.Error(1)
}

func (m *MockPersistence) ClaimNext(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*models.QueueItem, error) {
	args := m.Called(ctx, workerID, now, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.QueueItem), args.Error(1)
}

func (m *MockPersistence) QueueItemByID(ctx context.Context, id string) (*models.QueueItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.QueueItem), args.Error(1)
}

func (m *MockPersistence) ExtendLease(ctx context.Context, id, workerID string, until time.Time) error {
	args := m.Called(ctx, id, workerID, until)

	return args.Error(0)
}

func (m *MockPersistence) CompleteItem(ctx context.Context, id, workerID, note string) error {
	args := m.Called(ctx, id, workerID, note)

	return args.Error(0)
}

func (m *MockPersistence) DeferItem(ctx context.Context, id, workerID string, executeAt time.Time, note string) error {
	args := m.Called(ctx, id, workerID, executeAt, note)

	return args.Error(0)
}

func (m *MockPersistence) RescheduleItem(ctx context.Context, id, workerID string, attempt int, executeAt time.Time, lastError string) error {
	args := m.Called(ctx, id, workerID, attempt, executeAt, lastError)

	return args.Error(0)
}

func (m *MockPersistence) DeadLetterItem(ctx context.Context, id, workerID string, attempt int, lastError string) error {
	args := m.Called(ctx, id, workerID, attempt, lastError)

	return args.Error(0)
}

func (m *MockPersistence) ScheduleResumption(ctx context.Context, item *models.QueueItem) error {
	args := m.Called(ctx, item)

	return args.Error(0)
}

func (m *MockPersistence) ClaimRun(ctx context.Context, run *models.ExecutionRun, staleBefore time.Time) error {
	args := m.Called(ctx, run, staleBefore)

	return args.Error(0)
}

func (m *MockPersistence) FinishRun(ctx context.Context, run *models.ExecutionRun) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockPersistence) RunByKey(ctx context.Context, flowID, triggerEventID, tenantID string) (*models.ExecutionRun, error) {
	args := m.Called(ctx, flowID, triggerEventID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRun), args.Error(1)
}

func (m *MockPersistence) RecordHit(ctx context.Context, tenantID, member string, at, since time.Time) (int, error) {
	args := m.Called(ctx, tenantID, member, at, since)

	return args.Int(0), args.Error(1)
}

func (m *MockPersistence) ForgetHit(ctx context.Context, tenantID, member string) error {
	args := m.Called(ctx, tenantID, member)

	return args.Error(0)
}

func (m *MockPersistence) AppendLog(ctx context.Context, entry *models.ExecutionLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockPersistence) LogsByFlow(ctx context.Context, flowID string, limit int) ([]*models.ExecutionLog, error) {
	args := m.Called(ctx, flowID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionLog), args.Error(1)
}

func (m *MockPersistence) IsTenantMember(ctx context.Context, userID, tenantID string) (bool, error) {
	args := m.Called(ctx, userID, tenantID)

	return args.Bool(0), args.Error(1)
}

func (m *MockPersistence) AddTenantMember(ctx context.Context, userID, tenantID string) error {
	args := m.Called(ctx, userID, tenantID)

	return args.Error(0)
}

func (m *MockPersistence) CreateNotification(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

func (m *MockPersistence) CreateJob(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

func (m *MockPersistence) UpdateJobStatus(ctx context.Context, tenantID, jobID, status string) error {
	args := m.Called(ctx, tenantID, jobID, status)

	return args.Error(0)
}

func (m *MockPersistence) JobByID(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	args := m.Called(ctx, tenantID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
