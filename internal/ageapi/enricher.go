package ageapi

import (
	"context"
	"maps"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Enricher analyzes items, filling in the publication age from the
// endpoint when the stored artifacts carry none.
type Enricher struct {
	client *Client
	logger zerolog.Logger
}

// NewEnricher wraps client, which may be nil.
func NewEnricher(client *Client, logger zerolog.Logger) *Enricher {
	return &Enricher{client: client, logger: logger.With().Str("component", "ageapi").Logger()}
}

// Analyze runs temporal analysis for it. Endpoint errors are logged and
// the analysis proceeds without the age.
func (e *Enricher) Analyze(ctx context.Context, it *state.Item, settings state.Settings) temporal.Analysis {
	meta := maps.Clone(it.Meta)
	if meta == nil {
		meta = map[string]any{}
	}
	capturedAt := it.ObservedAt

	if _, has := meta[temporal.MetaAgeSeconds]; !has && e.client != nil && it.ExternalRef != "" {
		published, ok, err := e.client.PublishedAt(ctx, it.ExternalRef)
		switch {
		case err != nil:
			e.logger.Warn().Err(err).Str("item_id", it.ID).Msg("Age lookup failed")
		case ok && !published.After(capturedAt):
			meta[temporal.MetaAgeSeconds] = int64(capturedAt.Sub(published).Seconds())
		}
	}
	return temporal.AnalyzeMeta(meta, capturedAt, temporal.ConfigFromSettings(settings))
}
