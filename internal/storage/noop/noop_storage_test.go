package noop_test

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicerecon/internal/port"
	"invoicerecon/internal/storage/noop"
)

func TestNoopStorage(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := noop.NewNoopStorage(logger)

	out, err := s.Upload(context.Background(), port.UploadInput{
		Key:  "invoices/abc/facture.pdf",
		Body: strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.Equal(t, "noop://invoices/abc/facture.pdf", out.Location)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, int64(8), hook.LastEntry().Data["bytes"])

	assert.NoError(t, s.Delete(context.Background(), "bucket", "key"))
}
