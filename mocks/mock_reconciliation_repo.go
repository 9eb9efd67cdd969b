package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"invoicerecon/internal/domain"
)

// MockReconciliationRepo is a mock implementation of port.ReconciliationRepository.
type MockReconciliationRepo struct {
	mock.Mock
}

func (m *MockReconciliationRepo) Create(ctx context.Context, rec *domain.Reconciliation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockReconciliationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reconciliation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reconciliation), args.Error(1)
}

func (m *MockReconciliationRepo) List(ctx context.Context, filter domain.ReconciliationFilter) ([]domain.Reconciliation, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Reconciliation), args.Int(1), args.Error(2)
}

func (m *MockReconciliationRepo) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
