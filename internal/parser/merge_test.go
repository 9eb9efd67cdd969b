package parser_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"invoicerecon/internal/parser"
	"invoicerecon/internal/port"
	"invoicerecon/mocks"
)

func TestMergeExtractor_MergesKeyByKey(t *testing.T) {
	logger, _ := test.NewNullLogger()
	primary := new(mocks.MockFieldExtractor)
	secondary := new(mocks.MockFieldExtractor)

	primary.On("Extract", mock.Anything, mock.Anything).Return(&port.ExtractOutput{
		Fields: map[string]any{
			"numéro_facture": "F1002",
			"client":         map[string]any{"nom": "Beta Ltd", "adresse": ""},
			"montants":       map[string]any{"total_TTC": "250.75"},
			"produits":       []any{map[string]any{"nom": "A"}},
		},
		ModelUsed: "gemini-2.0-flash",
	}, nil)
	secondary.On("Extract", mock.Anything, mock.Anything).Return(&port.ExtractOutput{
		Fields: map[string]any{
			"numéro_facture": "f1002",
			"client":         map[string]any{"nom": "Beta Limited", "adresse": "1 rue de Paris"},
			"montants":       map[string]any{"total_TTC": "250.75", "total_HT": "210.71"},
			"produits":       []any{map[string]any{"nom": "A"}, map[string]any{"nom": "B"}},
		},
		ModelUsed: "claude-sonnet-4-20250514",
	}, nil)

	me := parser.NewMergeExtractor(primary, secondary, logger)
	out, err := me.Extract(context.Background(), port.ExtractInput{Text: "x"})
	require.NoError(t, err)

	client := out.Fields["client"].(map[string]any)
	assert.Equal(t, "Beta Ltd", client["nom"])
	assert.Equal(t, "1 rue de Paris", client["adresse"])
	assert.Equal(t, "210.71", out.Fields["montants"].(map[string]any)["total_HT"])
	assert.Len(t, out.Fields["produits"], 2)

	assert.Equal(t, parser.SourceAgree, out.FieldProvenance["numéro_facture"])
	assert.Equal(t, parser.SourceDisagreement, out.FieldProvenance["client.nom"])
	assert.Equal(t, parser.SourceSecondary, out.FieldProvenance["client.adresse"])
	assert.Equal(t, parser.SourceAgree, out.FieldProvenance["montants.total_TTC"])
	assert.Equal(t, parser.SourceSecondary, out.FieldProvenance["produits"])
	assert.Equal(t, "gemini-2.0-flash", out.ModelUsed)
	assert.Equal(t, "claude-sonnet-4-20250514", out.SecondaryModel)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(out.RawJSON, &raw))
	assert.Contains(t, raw, "montants")
}

func TestMergeExtractor_PrimaryFails(t *testing.T) {
	logger, _ := test.NewNullLogger()
	primary := new(mocks.MockFieldExtractor)
	secondary := new(mocks.MockFieldExtractor)
	primary.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	secondary.On("Extract", mock.Anything, mock.Anything).Return(&port.ExtractOutput{ModelUsed: "claude"}, nil)

	out, err := parser.NewMergeExtractor(primary, secondary, logger).Extract(context.Background(), port.ExtractInput{})
	require.NoError(t, err)
	assert.Equal(t, "secondary_only", out.FieldProvenance["_source"])
	assert.Equal(t, "claude", out.SecondaryModel)
}

func TestMergeExtractor_BothFail(t *testing.T) {
	logger, _ := test.NewNullLogger()
	primary := new(mocks.MockFieldExtractor)
	secondary := new(mocks.MockFieldExtractor)
	primary.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	secondary.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("also down"))

	_, err := parser.NewMergeExtractor(primary, secondary, logger).Extract(context.Background(), port.ExtractInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both extractors failed")
}
