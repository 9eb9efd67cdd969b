package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/service"
)

// ChatHandler handles the invoice assistant endpoint.
type ChatHandler struct {
	svc    service.ChatService
	logger logrus.FieldLogger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc service.ChatService, logger logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger.WithField("component", "chatHandler")}
}

type chatRequest struct {
	Question         string               `json:"question" binding:"required"`
	History          []domain.ChatMessage `json:"history" binding:"omitempty,dive"`
	ReconciliationID *uuid.UUID           `json:"reconciliation_id"`
	Fields           map[string]any       `json:"fields"`
	ReferenceRows    []map[string]any     `json:"reference_rows"`
}

// Ask handles POST /api/v1/chat
func (h *ChatHandler) Ask(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "question is required and history roles must be user or assistant")
		return
	}

	out, err := h.svc.Ask(c.Request.Context(), &service.ChatInput{
		Question:         req.Question,
		History:          req.History,
		ReconciliationID: req.ReconciliationID,
		Fields:           req.Fields,
		ReferenceRows:    req.ReferenceRows,
	})
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}

	RespondOK(c, out)
}
