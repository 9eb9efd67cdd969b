package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/port"
)

type reconciliationRepo struct {
	db *sqlx.DB
}

// NewReconciliationRepo creates a new PostgreSQL-backed ReconciliationRepository.
func NewReconciliationRepo(db *sqlx.DB) port.ReconciliationRepository {
	return &reconciliationRepo{db: db}
}

func (r *reconciliationRepo) Create(ctx context.Context, rec *domain.Reconciliation) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO reconciliations (id, invoice_name, reference_name, sheet, verdict,
			match_status, match_score, discrepancy_count, model_used, invoice_record, report,
			invoice_key, reference_key, created_at)
		VALUES (:id, :invoice_name, :reference_name, :sheet, :verdict,
			:match_status, :match_score, :discrepancy_count, :model_used, :invoice_record, :report,
			:invoice_key, :reference_key, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("reconciliationRepo.Create: %w", err)
	}
	return nil
}

func (r *reconciliationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reconciliation, error) {
	var rec domain.Reconciliation
	err := r.db.GetContext(ctx, &rec, "SELECT * FROM reconciliations WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReconciliationNotFound
		}
		return nil, fmt.Errorf("reconciliationRepo.GetByID: %w", err)
	}
	return &rec, nil
}

func (r *reconciliationRepo) List(ctx context.Context, filter domain.ReconciliationFilter) ([]domain.Reconciliation, int, error) {
	where := ""
	var args []interface{}
	if filter.Verdict != nil {
		where = " WHERE verdict = $1"
		args = append(args, *filter.Verdict)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM reconciliations"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("reconciliationRepo.List count: %w", err)
	}

	query := fmt.Sprintf("SELECT * FROM reconciliations%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	var recs []domain.Reconciliation
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("reconciliationRepo.List: %w", err)
	}
	return recs, total, nil
}

func (r *reconciliationRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
