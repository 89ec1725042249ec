package candles

import (
	"context"
	"fmt"
	"log"

	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/observability"
	"artist-shares-engine/internal/storage"
)

// Aggregator folds trades into OHLCV candles across every supported
// timeframe. Live ingestion and backfill share the same ApplyTrade path, so
// a replayed history produces the same candles as live observation of the
// same trades in the same order.
type Aggregator struct {
	candles storage.CandleStore
	trades  storage.TradeStore
}

// AggregatorOptions contains configuration for creating an Aggregator.
type AggregatorOptions struct {
	CandleStore storage.CandleStore
	TradeStore  storage.TradeStore
}

// NewAggregator creates an aggregator backed by the provided stores.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	return &Aggregator{
		candles: opts.CandleStore,
		trades:  opts.TradeStore,
	}
}

// ApplyTrade merges one trade into the candle of every timeframe. The candle
// price is the trade's per-share average (AmountUSD/Amount), falling back to
// the reported per-share price when the amount is zero. A failure on one
// timeframe does not stop the others; the first error is returned after all
// timeframes were attempted.
func (a *Aggregator) ApplyTrade(ctx context.Context, trade *domain.Trade) error {
	if trade == nil {
		return storage.ErrInvalidInput
	}

	price := trade.AvgPriceUSD()

	var firstErr error
	for _, tf := range domain.Timeframes {
		key := domain.CandleKey{
			EntityID:    trade.EntityID,
			Timeframe:   tf,
			PeriodStart: tf.PeriodStart(trade.Timestamp),
		}
		err := a.candles.Apply(ctx, key, price, trade.Amount, trade.Side)
		observability.RecordCandleApply(err)
		if err != nil {
			log.Printf("[candles] apply %s tx=%s entity=%s: %v", tf, trade.TxHash, trade.EntityID, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("apply %s candle: %w", tf, err)
			}
		}
	}
	return firstErr
}

// Backfill rebuilds candles for an entity from its stored trade history.
// Timeframes that already hold any candle for the entity are skipped, so a
// backfill never double-counts what live ingestion has already folded in.
// Returns the number of trades replayed.
func (a *Aggregator) Backfill(ctx context.Context, entityID string) (int, error) {
	trades, err := a.trades.AllByEntity(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("load trade history: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	pending := make([]domain.Timeframe, 0, len(domain.Timeframes))
	for _, tf := range domain.Timeframes {
		has, err := a.candles.HasAny(ctx, entityID, tf)
		if err != nil {
			return 0, fmt.Errorf("check %s candles: %w", tf, err)
		}
		if !has {
			pending = append(pending, tf)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	for _, trade := range trades {
		price := trade.AvgPriceUSD()
		for _, tf := range pending {
			key := domain.CandleKey{
				EntityID:    entityID,
				Timeframe:   tf,
				PeriodStart: tf.PeriodStart(trade.Timestamp),
			}
			if err := a.candles.Apply(ctx, key, price, trade.Amount, trade.Side); err != nil {
				return 0, fmt.Errorf("backfill %s candle: %w", tf, err)
			}
		}
	}

	log.Printf("[candles] backfilled entity=%s trades=%d timeframes=%d", entityID, len(trades), len(pending))
	return len(trades), nil
}

// Series returns all candles for an entity and timeframe, ordered by period
// start ascending.
func (a *Aggregator) Series(ctx context.Context, entityID string, tf domain.Timeframe) ([]*domain.Candle, error) {
	return a.candles.Series(ctx, entityID, tf)
}
