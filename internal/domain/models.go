package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Reconciliation is one stored reconciliation run. The normalized invoice and
// the full report are kept as JSON so the table schema does not follow the
// canonical field list.
type Reconciliation struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	InvoiceName      string          `db:"invoice_name" json:"invoice_name"`
	ReferenceName    string          `db:"reference_name" json:"reference_name"`
	Sheet            string          `db:"sheet" json:"sheet"`
	Verdict          Verdict         `db:"verdict" json:"verdict"`
	MatchStatus      MatchStatus     `db:"match_status" json:"match_status"`
	MatchScore       float64         `db:"match_score" json:"match_score"`
	DiscrepancyCount int             `db:"discrepancy_count" json:"discrepancy_count"`
	ModelUsed        string          `db:"model_used" json:"model_used,omitempty"`
	InvoiceRecord    json.RawMessage `db:"invoice_record" json:"invoice_record"`
	Report           json.RawMessage `db:"report" json:"report"`
	InvoiceKey       *string         `db:"invoice_key" json:"invoice_key,omitempty"`
	ReferenceKey     *string         `db:"reference_key" json:"reference_key,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// ReconciliationFilter narrows a listing of stored runs.
type ReconciliationFilter struct {
	Verdict *Verdict
	Offset  int
	Limit   int
}

// ChatMessage is one turn of a caller-owned conversation log.
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}
