package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"invoicerecon/internal/config"
)

// New builds the application logger from cfg. Unknown levels fall back to info.
func New(cfg config.LogConfig) *logrus.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New writing to w.
func NewWithOutput(cfg config.LogConfig, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// LogError writes err with the component and action that produced it.
func LogError(logger logrus.FieldLogger, component, action string, data any, err error) {
	fields := logrus.Fields{
		"component": component,
		"action":    action,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
