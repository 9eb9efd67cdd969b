// Package memory keeps reconciliation runs in process memory. It backs the
// service when no database is configured and is used by the CLI.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/port"
)

type reconciliationRepo struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]domain.Reconciliation
}

// NewReconciliationRepo creates an in-memory ReconciliationRepository.
func NewReconciliationRepo() port.ReconciliationRepository {
	return &reconciliationRepo{runs: make(map[uuid.UUID]domain.Reconciliation)}
}

func (r *reconciliationRepo) Create(_ context.Context, rec *domain.Reconciliation) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[rec.ID] = *rec
	return nil
}

func (r *reconciliationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Reconciliation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[id]
	if !ok {
		return nil, domain.ErrReconciliationNotFound
	}
	return &rec, nil
}

func (r *reconciliationRepo) List(_ context.Context, filter domain.ReconciliationFilter) ([]domain.Reconciliation, int, error) {
	r.mu.RLock()
	matched := make([]domain.Reconciliation, 0, len(r.runs))
	for _, rec := range r.runs {
		if filter.Verdict != nil && rec.Verdict != *filter.Verdict {
			continue
		}
		matched = append(matched, rec)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (r *reconciliationRepo) Ping(_ context.Context) error {
	return nil
}
