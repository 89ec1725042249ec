// Package broadcast publishes trades and financial snapshots to subscribed
// frontends over websockets. Delivery is fire-and-forget: the engine never
// blocks on a slow consumer.
package broadcast

import "artist-shares-engine/internal/domain"

// Sink receives the per-entity publications of the ingestion pipeline.
type Sink interface {
	// PublishTrade announces a newly recorded trade for an entity.
	PublishTrade(entityID string, trade *domain.Trade)

	// PublishSnapshot announces a recomputed financial snapshot.
	PublishSnapshot(entityID string, snapshot *domain.FinancialSnapshot)
}

// NopSink discards every publication. Used when no frontend transport is
// configured and as a test default.
type NopSink struct{}

func (NopSink) PublishTrade(string, *domain.Trade)                {}
func (NopSink) PublishSnapshot(string, *domain.FinancialSnapshot) {}

var _ Sink = NopSink{}
