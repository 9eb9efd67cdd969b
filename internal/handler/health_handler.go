package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"invoicerecon/internal/port"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo port.ReconciliationRepository
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(repo port.ReconciliationRepository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	if err := h.repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "storage not reachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
