package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"invoicerecon/internal/handler"
	"invoicerecon/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	logger logrus.FieldLogger,
	allowedOrigins []string,
	maxUploadBytes int64,
	reconH *handler.ReconciliationHandler,
	chatH *handler.ChatHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()
	if maxUploadBytes > 0 {
		r.MaxMultipartMemory = maxUploadBytes
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	v1.POST("/reference/sheets", reconH.ListSheets)
	v1.POST("/extractions", reconH.Extract)

	recons := v1.Group("/reconciliations")
	recons.POST("", reconH.Reconcile)
	recons.POST("/batch", reconH.ReconcileBatch)
	recons.GET("", reconH.List)
	recons.GET("/:id", reconH.GetByID)
	recons.GET("/:id/export", reconH.Export)

	v1.POST("/chat", chatH.Ask)

	return r
}
