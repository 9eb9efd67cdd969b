package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"invoicerecon/internal/port"
)

// MockAssistant is a mock implementation of port.Assistant.
type MockAssistant struct {
	mock.Mock
}

func (m *MockAssistant) Answer(ctx context.Context, input port.AssistantInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}
