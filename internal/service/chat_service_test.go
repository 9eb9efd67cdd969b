package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/port"
	"invoicerecon/internal/repository/memory"
	"invoicerecon/internal/service"
	"invoicerecon/mocks"
)

func TestChatService_Ask_WithReconciliation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	repo := memory.NewReconciliationRepo()
	assistant := new(mocks.MockAssistant)
	svc := service.NewChatService(assistant, repo, logger)

	run := &domain.Reconciliation{
		ID:            uuid.New(),
		InvoiceRecord: json.RawMessage(`{"supplier_name":"Beta Ltd"}`),
		Report:        json.RawMessage(`{"verdict":"discrepant"}`),
	}
	require.NoError(t, repo.Create(context.Background(), run))

	history := []domain.ChatMessage{
		{Role: "user", Content: "Bonjour"},
		{Role: "assistant", Content: "Bonjour !"},
	}
	assistant.On("Answer", mock.Anything, mock.MatchedBy(func(in port.AssistantInput) bool {
		return in.Question == "Pourquoi l'écart ?" &&
			strings.Contains(in.Context, `"supplier_name":"Beta Ltd"`) &&
			strings.Contains(in.Context, `"verdict":"discrepant"`) &&
			strings.Contains(in.Context, "Voici les données de référence") &&
			len(in.History) == 2
	})).Return("Le montant TTC diffère de 49,25 €.", nil)

	out, err := svc.Ask(context.Background(), &service.ChatInput{
		Question:         "  Pourquoi l'écart ?  ",
		History:          history,
		ReconciliationID: &run.ID,
		ReferenceRows:    []map[string]any{{"Client": "Beta Ltd", "Montant TTC": "250.75"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Le montant TTC diffère de 49,25 €.", out.Answer)
	require.Len(t, out.History, 4)
	assert.Equal(t, domain.ChatMessage{Role: "user", Content: "Pourquoi l'écart ?"}, out.History[2])
	assert.Equal(t, "assistant", out.History[3].Role)
	assert.Len(t, history, 2)
}

func TestChatService_Ask_WithFields(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assistant := new(mocks.MockAssistant)
	svc := service.NewChatService(assistant, new(mocks.MockReconciliationRepo), logger)

	assistant.On("Answer", mock.Anything, mock.MatchedBy(func(in port.AssistantInput) bool {
		return strings.Contains(in.Context, `"numéro_facture": "F1002"`) && len(in.History) == 0
	})).Return("F1002", nil)

	out, err := svc.Ask(context.Background(), &service.ChatInput{
		Question: "Numéro ?",
		Fields:   map[string]any{"numéro_facture": "F1002"},
	})
	require.NoError(t, err)
	assert.Equal(t, "F1002", out.Answer)
	assert.Len(t, out.History, 2)
}

func TestChatService_Ask_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assistant := new(mocks.MockAssistant)
	svc := service.NewChatService(assistant, memory.NewReconciliationRepo(), logger)

	_, err := svc.Ask(context.Background(), &service.ChatInput{Question: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)

	missing := uuid.New()
	_, err = svc.Ask(context.Background(), &service.ChatInput{Question: "?", ReconciliationID: &missing})
	assert.ErrorIs(t, err, domain.ErrReconciliationNotFound)

	assistant.On("Answer", mock.Anything, mock.Anything).Return("", errors.New("quota"))
	_, err = svc.Ask(context.Background(), &service.ChatInput{Question: "?"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asking assistant")
}
