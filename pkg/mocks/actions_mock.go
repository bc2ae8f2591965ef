package mocks

import (
	"context"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockEmailSender is a mock implementation of actions.EmailSender interface.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendEmail(ctx context.Context, email models.Email) (string, error) {
	args := m.Called(ctx, email)

	return args.String(0), args.Error(1)
}

// MockSmsSender is a mock implementation of actions.SmsSender interface.
type MockSmsSender struct {
	mock.Mock
}

func (m *MockSmsSender) SendSMS(ctx context.Context, sms models.SMS) (string, error) {
	args := m.Called(ctx, sms)

	return args.String(0), args.Error(1)
}

// MockNotificationStore is a mock implementation of actions.NotificationStore interface.
type MockNotificationStore struct {
	mock.Mock
}

func (m *MockNotificationStore) CreateNotification(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

// MockJobStore is a mock implementation of actions.JobStore interface.
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) CreateJob(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

func (m *MockJobStore) UpdateJobStatus(ctx context.Context, tenantID, jobID, status string) error {
	args := m.Called(ctx, tenantID, jobID, status)

	return args.Error(0)
}
