package mocks

import (
	"context"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Upsert(ctx context.Context, execution *models.AutomationExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.AutomationExecution, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AutomationExecution), args.Error(1)
}

func (m *MockExecutionRepository) Claim(ctx context.Context, automationID, subscriberID string, now time.Time) (*models.AutomationExecution, error) {
	args := m.Called(ctx, automationID, subscriberID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AutomationExecution), args.Error(1)
}

func (m *MockExecutionRepository) Complete(ctx context.Context, automationID, subscriberID string) (bool, error) {
	args := m.Called(ctx, automationID, subscriberID)

	return args.Bool(0), args.Error(1)
}

func (m *MockExecutionRepository) Fail(ctx context.Context, automationID, subscriberID, reason string) (bool, error) {
	args := m.Called(ctx, automationID, subscriberID, reason)

	return args.Bool(0), args.Error(1)
}

func (m *MockExecutionRepository) ByKey(ctx context.Context, automationID, subscriberID string) (*models.AutomationExecution, error) {
	args := m.Called(ctx, automationID, subscriberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AutomationExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByAutomation(ctx context.Context, automationID string) ([]*models.AutomationExecution, error) {
	args := m.Called(ctx, automationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AutomationExecution), args.Error(1)
}

// MockSendRepository is a mock implementation of persistence.SendRepository interface.
type MockSendRepository struct {
	mock.Mock
}

func (m *MockSendRepository) Create(ctx context.Context, record *models.SendRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockSendRepository) Latest(ctx context.Context, automationID, nodeID, subscriberID string) (*models.SendRecord, error) {
	args := m.Called(ctx, automationID, nodeID, subscriberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SendRecord), args.Error(1)
}

func (m *MockSendRepository) MarkSent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockSendRepository) MarkFailed(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)

	return args.Error(0)
}

func (m *MockSendRepository) RecordOpen(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockSendRepository) RecordClick(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockActionLogRepository is a mock implementation of persistence.ActionLogRepository interface.
type MockActionLogRepository struct {
	mock.Mock
}

func (m *MockActionLogRepository) Append(ctx context.Context, entry *models.ActionLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockActionLogRepository) ListByAutomation(ctx context.Context, automationID string, limit int) ([]*models.ActionLog, error) {
	args := m.Called(ctx, automationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActionLog), args.Error(1)
}
