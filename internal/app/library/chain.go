package library

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/domain/track"
)

// FilterConfig enables a filter and carries its settings.
type FilterConfig struct {
	Enabled  bool
	Settings map[string]any
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// BuildChain creates a chain of the enabled filters in name order.
// Unknown filter names are an error.
func BuildChain(configs map[string]FilterConfig) (*Chain, error) {
	for name := range configs {
		if _, ok := registry[name]; !ok {
			return nil, errors.Newf("unknown scan filter %q", name)
		}
	}

	chain := NewChain()
	for _, name := range FilterNames() {
		cfg, ok := configs[name]
		if !ok || !cfg.Enabled {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(cfg.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("library: filter enabled: %s", name)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track, accepted []track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, t, accepted)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
