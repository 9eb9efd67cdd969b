package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"invoicerecon/internal/assistant"
	"invoicerecon/internal/config"
	"invoicerecon/internal/handler"
	"invoicerecon/internal/logging"
	"invoicerecon/internal/parser"
	"invoicerecon/internal/pdftext"
	"invoicerecon/internal/port"
	"invoicerecon/internal/repository/memory"
	"invoicerecon/internal/repository/postgres"
	"invoicerecon/internal/router"
	"invoicerecon/internal/service"
	"invoicerecon/internal/storage/noop"
	s3storage "invoicerecon/internal/storage/s3"

	// Register extraction providers
	_ "invoicerecon/internal/parser/claude"
	_ "invoicerecon/internal/parser/gemini"
	_ "invoicerecon/internal/parser/openai"
)

const (
	retryBackoff    = 2 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Log)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	engine, err := cfg.Reconcile.Engine()
	if err != nil {
		return fmt.Errorf("invalid reconcile config: %w", err)
	}

	extractor, err := parser.Build(&cfg.Parser, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize extraction providers: %w", err)
	}

	// Initialize repository
	var repo port.ReconciliationRepository
	if cfg.DB.Enabled {
		db, dbErr := postgres.NewDB(&cfg.DB)
		if dbErr != nil {
			return fmt.Errorf("failed to connect to database: %w", dbErr)
		}
		defer db.Close()
		repo = postgres.NewReconciliationRepo(db)
	} else {
		logger.Warn("database disabled; reconciliation runs are kept in memory")
		repo = memory.NewReconciliationRepo()
	}

	// Initialize storage
	var storage port.ObjectStorage
	if cfg.S3.Enabled {
		storage, err = s3storage.NewS3Client(sigCtx, &cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	} else {
		storage = noop.NewNoopStorage(logger)
	}

	// Initialize services
	reconSvc := service.NewReconciliationService(
		engine,
		pdftext.New(),
		extractor,
		storage,
		repo,
		service.ReconciliationConfig{
			MaxRetries:       cfg.Parser.PrimaryConfig().MaxRetries,
			RetryBackoff:     retryBackoff,
			BatchConcurrency: cfg.Reconcile.BatchConcurrency,
			Prefilter:        cfg.Reconcile.Prefilter,
			DefaultSheet:     cfg.Reconcile.DefaultSheet,
			MaxUploadBytes:   cfg.Server.MaxUploadBytes(),
			Bucket:           cfg.S3.Bucket,
			Prefix:           cfg.S3.Prefix,
		},
		logger,
	)
	chatSvc := service.NewChatService(assistant.NewGeminiAssistant(&cfg.Assistant), repo, logger)

	// Initialize handlers
	reconH := handler.NewReconciliationHandler(reconSvc, cfg.Server.MaxUploadBytes(), logger)
	chatH := handler.NewChatHandler(chatSvc, logger)
	healthH := handler.NewHealthHandler(repo)

	// Setup router
	r := router.Setup(logger, cfg.CORS.AllowedOrigins, cfg.Server.MaxUploadBytes(), reconH, chatH, healthH)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
			"db":          cfg.DB.Enabled,
			"s3":          cfg.S3.Enabled,
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
