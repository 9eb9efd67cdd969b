package noop

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"invoicerecon/internal/port"
)

type noopStorage struct {
	logger logrus.FieldLogger
}

// NewNoopStorage creates an ObjectStorage that discards uploads. It is used
// when archiving to S3 is disabled.
func NewNoopStorage(logger logrus.FieldLogger) port.ObjectStorage {
	return &noopStorage{logger: logger}
}

func (s *noopStorage) Upload(_ context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	n, err := io.Copy(io.Discard, input.Body)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"key":   input.Key,
		"bytes": n,
	}).Debug("archive disabled, upload discarded")
	return &port.UploadOutput{Location: "noop://" + input.Key}, nil
}

func (s *noopStorage) Delete(_ context.Context, _, _ string) error {
	return nil
}
