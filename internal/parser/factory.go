package parser

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"invoicerecon/internal/config"
	"invoicerecon/internal/port"
)

// ProviderFactory is a function that creates a FieldExtractor from a provider config.
type ProviderFactory func(cfg *config.ParserProviderConfig) (port.FieldExtractor, error)

// registry of provider factories, populated by init() in each provider package
// or explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewExtractor creates a FieldExtractor from a provider config using the registered factory.
func NewExtractor(cfg *config.ParserProviderConfig) (port.FieldExtractor, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown parser provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// Build assembles the configured providers. With one provider it is returned
// as is; with merge enabled primary and secondary run side by side; otherwise
// the providers are chained in a FallbackExtractor.
func Build(cfg *config.ParserConfig, logger logrus.FieldLogger) (port.FieldExtractor, error) {
	tiers := []*config.ParserProviderConfig{cfg.PrimaryConfig(), cfg.SecondaryConfig(), cfg.TertiaryConfig()}

	var (
		extractors []port.FieldExtractor
		names      []string
	)
	for _, tier := range tiers {
		if tier == nil {
			continue
		}
		ex, err := NewExtractor(tier)
		if err != nil {
			return nil, err
		}
		extractors = append(extractors, ex)
		names = append(names, tier.Provider)
	}

	switch {
	case len(extractors) == 1:
		return extractors[0], nil
	case cfg.Merge:
		return NewMergeExtractor(extractors[0], extractors[1], logger), nil
	default:
		return NewFallbackExtractor(extractors, names, logger), nil
	}
}
