package port

import (
	"context"

	"github.com/google/uuid"

	"invoicerecon/internal/domain"
)

// ReconciliationRepository defines the contract for reconciliation run persistence.
type ReconciliationRepository interface {
	Create(ctx context.Context, rec *domain.Reconciliation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reconciliation, error)
	List(ctx context.Context, filter domain.ReconciliationFilter) ([]domain.Reconciliation, int, error)
	Ping(ctx context.Context) error
}
