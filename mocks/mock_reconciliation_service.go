package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/service"
)

// MockReconciliationService is a mock implementation of service.ReconciliationService.
type MockReconciliationService struct {
	mock.Mock
}

func (m *MockReconciliationService) ListSheets(ctx context.Context, reference service.Upload) ([]string, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockReconciliationService) Extract(ctx context.Context, inv service.Upload) (*service.ExtractResult, error) {
	args := m.Called(ctx, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExtractResult), args.Error(1)
}

func (m *MockReconciliationService) Reconcile(ctx context.Context, input *service.ReconcileInput) (*service.ReconciliationResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReconciliationResult), args.Error(1)
}

func (m *MockReconciliationService) ReconcileBatch(ctx context.Context, input *service.BatchInput) ([]service.BatchItem, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.BatchItem), args.Error(1)
}

func (m *MockReconciliationService) Get(ctx context.Context, id uuid.UUID) (*service.ReconciliationResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReconciliationResult), args.Error(1)
}

func (m *MockReconciliationService) List(ctx context.Context, filter domain.ReconciliationFilter) ([]domain.Reconciliation, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Reconciliation), args.Int(1), args.Error(2)
}

func (m *MockReconciliationService) Export(ctx context.Context, id uuid.UUID, format domain.ExportFormat) (*service.ExportFile, error) {
	args := m.Called(ctx, id, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExportFile), args.Error(1)
}
