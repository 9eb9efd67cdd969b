package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"invoicerecon/internal/config"
	"invoicerecon/internal/logging"
	"invoicerecon/internal/parser"
	"invoicerecon/internal/pdftext"
	"invoicerecon/internal/port"
	"invoicerecon/internal/repository/memory"
	"invoicerecon/internal/service"
	"invoicerecon/internal/storage/noop"

	// Register extraction providers
	_ "invoicerecon/internal/parser/claude"
	_ "invoicerecon/internal/parser/gemini"
	_ "invoicerecon/internal/parser/openai"
)

const retryBackoff = 2 * time.Second

func main() {
	cmd := newRootCmd(newService, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newService wires a one-shot reconciliation service: runs stay in memory and
// uploads are not archived. The extraction providers are only built when an
// invoice PDF has to be read.
func newService(withExtractor bool) (service.ReconciliationService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// stdout carries the report, so logs go to stderr and stay quiet unless
	// a level was asked for.
	logger := logging.NewWithOutput(cfg.Log, os.Stderr)
	if os.Getenv("INVOICERECON_LOG_LEVEL") == "" {
		logger.SetLevel(logrus.WarnLevel)
	}

	engine, err := cfg.Reconcile.Engine()
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile config: %w", err)
	}

	var extractor port.FieldExtractor
	if withExtractor {
		extractor, err = parser.Build(&cfg.Parser, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize extraction providers: %w", err)
		}
	}

	return service.NewReconciliationService(
		engine,
		pdftext.New(),
		extractor,
		noop.NewNoopStorage(logger),
		memory.NewReconciliationRepo(),
		service.ReconciliationConfig{
			MaxRetries:       cfg.Parser.PrimaryConfig().MaxRetries,
			RetryBackoff:     retryBackoff,
			BatchConcurrency: cfg.Reconcile.BatchConcurrency,
			Prefilter:        cfg.Reconcile.Prefilter,
			DefaultSheet:     cfg.Reconcile.DefaultSheet,
		},
		logger,
	), nil
}
