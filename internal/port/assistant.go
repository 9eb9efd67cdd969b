package port

import (
	"context"

	"invoicerecon/internal/domain"
)

// AssistantInput is one chat turn. History is owned by the caller and sent in
// full every time.
type AssistantInput struct {
	Context  string
	History  []domain.ChatMessage
	Question string
}

// Assistant answers questions about an invoice and its reference data.
type Assistant interface {
	Answer(ctx context.Context, input AssistantInput) (string, error)
}
