package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"invoicerecon/internal/port"
)

// Provenance values recorded per key.
const (
	SourceAgree        = "agree"
	SourcePrimary      = "primary"
	SourceSecondary    = "secondary"
	SourceDisagreement = "disagreement"
)

// MergeExtractor runs two extractors side by side and merges their payloads
// key by key. The primary wins disagreements; the secondary fills gaps.
type MergeExtractor struct {
	primary   port.FieldExtractor
	secondary port.FieldExtractor
	logger    logrus.FieldLogger
}

// NewMergeExtractor creates a MergeExtractor from primary and secondary extractors.
func NewMergeExtractor(primary, secondary port.FieldExtractor, logger logrus.FieldLogger) *MergeExtractor {
	return &MergeExtractor{
		primary:   primary,
		secondary: secondary,
		logger:    logger.WithField("component", "parser.MergeExtractor"),
	}
}

func (m *MergeExtractor) Extract(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	type result struct {
		output *port.ExtractOutput
		err    error
	}

	var wg sync.WaitGroup
	var pResult, sResult result

	wg.Add(2)
	go func() {
		defer wg.Done()
		out, err := m.primary.Extract(ctx, input)
		pResult = result{out, err}
	}()
	go func() {
		defer wg.Done()
		out, err := m.secondary.Extract(ctx, input)
		sResult = result{out, err}
	}()
	wg.Wait()

	if pResult.err != nil && sResult.err != nil {
		return nil, fmt.Errorf("both extractors failed: primary: %v; secondary: %w", pResult.err, sResult.err)
	}

	if pResult.err != nil {
		m.logger.WithError(pResult.err).Warn("primary extractor failed, using secondary only")
		out := *sResult.output
		out.FieldProvenance = map[string]string{"_source": "secondary_only"}
		out.SecondaryModel = out.ModelUsed
		return &out, nil
	}

	if sResult.err != nil {
		m.logger.WithError(sResult.err).Warn("secondary extractor failed, using primary only")
		out := *pResult.output
		out.FieldProvenance = map[string]string{"_source": "primary_only"}
		return &out, nil
	}

	return mergeOutputs(pResult.output, sResult.output)
}

func mergeOutputs(primary, secondary *port.ExtractOutput) (*port.ExtractOutput, error) {
	provenance := make(map[string]string)
	merged := mergeMaps(primary.Fields, secondary.Fields, "", provenance)

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshaling merged fields: %w", err)
	}

	return &port.ExtractOutput{
		Fields:          merged,
		RawJSON:         raw,
		ModelUsed:       primary.ModelUsed,
		PromptUsed:      primary.PromptUsed,
		FieldProvenance: provenance,
		SecondaryModel:  secondary.ModelUsed,
	}, nil
}

// mergeMaps merges two payload objects. Nested objects are merged
// recursively; lists are taken whole from the side with more elements.
func mergeMaps(p, s map[string]any, prefix string, provenance map[string]string) map[string]any {
	keys := make(map[string]struct{}, len(p)+len(s))
	for k := range p {
		keys[k] = struct{}{}
	}
	for k := range s {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	out := make(map[string]any, len(sorted))
	for _, k := range sorted {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		pv, pok := p[k]
		sv, sok := s[k]
		pEmpty := !pok || isEmpty(pv)
		sEmpty := !sok || isEmpty(sv)

		switch {
		case pEmpty && sEmpty:
			if pok {
				out[k] = pv
			} else {
				out[k] = sv
			}
		case pEmpty:
			out[k] = sv
			provenance[path] = SourceSecondary
		case sEmpty:
			out[k] = pv
			provenance[path] = SourcePrimary
		default:
			out[k] = mergeValue(pv, sv, path, provenance)
		}
	}
	return out
}

func mergeValue(pv, sv any, path string, provenance map[string]string) any {
	pm, pIsMap := pv.(map[string]any)
	sm, sIsMap := sv.(map[string]any)
	if pIsMap && sIsMap {
		return mergeMaps(pm, sm, path, provenance)
	}

	pl, pIsList := pv.([]any)
	sl, sIsList := sv.([]any)
	if pIsList && sIsList {
		if len(sl) > len(pl) {
			provenance[path] = SourceSecondary
			return sv
		}
		provenance[path] = SourcePrimary
		return pv
	}

	if sameScalar(pv, sv) {
		provenance[path] = SourceAgree
	} else {
		provenance[path] = SourceDisagreement
	}
	return pv
}

func sameScalar(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(strings.TrimSpace(as), strings.TrimSpace(bs))
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
