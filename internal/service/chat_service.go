package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/port"
)

// ChatInput is one question about an invoice. The caller owns the conversation
// and sends the full History every turn. Context comes from a stored run, from
// explicit Fields and ReferenceRows, or both.
type ChatInput struct {
	Question         string
	History          []domain.ChatMessage
	ReconciliationID *uuid.UUID
	Fields           map[string]any
	ReferenceRows    []map[string]any
}

// ChatOutput carries the answer and the history extended with this turn.
type ChatOutput struct {
	Answer  string               `json:"answer"`
	History []domain.ChatMessage `json:"history"`
}

// ChatService defines the invoice assistant contract.
type ChatService interface {
	Ask(ctx context.Context, input *ChatInput) (*ChatOutput, error)
}

type chatService struct {
	assistant port.Assistant
	repo      port.ReconciliationRepository
	logger    logrus.FieldLogger
}

// NewChatService creates a new ChatService implementation.
func NewChatService(assistant port.Assistant, repo port.ReconciliationRepository, logger logrus.FieldLogger) ChatService {
	return &chatService{
		assistant: assistant,
		repo:      repo,
		logger:    logger.WithField("component", "chatService"),
	}
}

func (s *chatService) Ask(ctx context.Context, input *ChatInput) (*ChatOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	dataContext, err := s.buildContext(ctx, input)
	if err != nil {
		return nil, err
	}

	answer, err := s.assistant.Answer(ctx, port.AssistantInput{
		Context:  dataContext,
		History:  input.History,
		Question: question,
	})
	if err != nil {
		return nil, fmt.Errorf("asking assistant: %w", err)
	}

	history := make([]domain.ChatMessage, 0, len(input.History)+2)
	history = append(history, input.History...)
	history = append(history,
		domain.ChatMessage{Role: "user", Content: question},
		domain.ChatMessage{Role: "assistant", Content: answer},
	)

	s.logger.WithFields(logrus.Fields{
		"turns":              len(history) / 2,
		"has_reconciliation": input.ReconciliationID != nil,
	}).Debug("chat turn answered")

	return &ChatOutput{Answer: answer, History: history}, nil
}

func (s *chatService) buildContext(ctx context.Context, input *ChatInput) (string, error) {
	var sections []string

	if input.ReconciliationID != nil {
		run, err := s.repo.GetByID(ctx, *input.ReconciliationID)
		if err != nil {
			return "", err
		}
		sections = append(sections,
			"Voici les informations de la facture :\n"+string(run.InvoiceRecord),
			"Voici le rapport de rapprochement :\n"+string(run.Report),
		)
	}
	if len(input.Fields) > 0 {
		b, err := json.MarshalIndent(input.Fields, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding invoice fields: %w", err)
		}
		sections = append(sections, "Voici les informations de la facture :\n"+string(b))
	}
	if len(input.ReferenceRows) > 0 {
		b, err := json.Marshal(input.ReferenceRows)
		if err != nil {
			return "", fmt.Errorf("encoding reference rows: %w", err)
		}
		sections = append(sections, "Voici les données de référence :\n"+string(b))
	}
	return strings.Join(sections, "\n\n"), nil
}
