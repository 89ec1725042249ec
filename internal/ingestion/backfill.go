package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/candles"
	"artist-shares-engine/internal/chain"
	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/observability"
	"artist-shares-engine/internal/storage"
)

// Backfiller replays historical contract events into the ledger and rebuilds
// candles at startup. An entity that already has trades keeps its ledger
// untouched; the candle rebuild has its own per-timeframe guard.
type Backfiller struct {
	chainClient chain.Client
	trades      storage.TradeStore
	registry    storage.ContractRegistry
	aggregator  *candles.Aggregator
	fallbacks   domain.FallbackPolicy
	logger      *log.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	ChainClient chain.Client
	TradeStore  storage.TradeStore
	Registry    storage.ContractRegistry
	Aggregator  *candles.Aggregator

	// Fallbacks defaults to domain.DefaultFallbacks() when zero-valued.
	Fallbacks domain.FallbackPolicy

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// NewBackfiller creates a historical event backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	b := &Backfiller{
		chainClient: opts.ChainClient,
		trades:      opts.TradeStore,
		registry:    opts.Registry,
		aggregator:  opts.Aggregator,
		fallbacks:   opts.Fallbacks,
		logger:      opts.Logger,
	}
	if b.fallbacks.EthUSDPrice.IsZero() {
		b.fallbacks = domain.DefaultFallbacks()
	}
	if b.logger == nil {
		b.logger = log.Default()
	}
	return b
}

// BackfillResult contains statistics from a backfill run.
type BackfillResult struct {
	Contracts         int
	TradesIngested    int
	TradesReplayed    int
	DuplicatesSkipped int
	Errors            int
	Duration          time.Duration
}

// Run backfills every contract in the registry. Per-contract failures are
// counted and logged, never fatal: a contract whose node reads fail leaves
// the rest of the catalog intact.
func (b *Backfiller) Run(ctx context.Context) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	contracts, err := b.registry.AllContracts(ctx)
	if err != nil {
		return result, fmt.Errorf("list contracts: %w", err)
	}

	b.logger.Printf("[backfill] starting contracts=%d", len(contracts))

	for entityID, address := range contracts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Contracts++
		if err := b.backfillContract(ctx, entityID, address, result); err != nil {
			b.logger.Printf("[backfill] entity=%s contract=%s: %v", entityID, address, err)
			result.Errors++
		}
	}

	result.Duration = time.Since(start)
	status := "ok"
	if result.Errors > 0 {
		status = "partial"
	}
	observability.RecordBackfill(status, result.Duration.Seconds(), result.TradesIngested)
	b.logger.Printf("[backfill] complete: %d contracts, %d ingested, %d replayed, %d dupes, %d errors in %v",
		result.Contracts, result.TradesIngested, result.TradesReplayed,
		result.DuplicatesSkipped, result.Errors, result.Duration)

	return result, nil
}

// BackfillContract backfills one entity's contract.
func (b *Backfiller) BackfillContract(ctx context.Context, entityID, contractAddress string) error {
	result := &BackfillResult{}
	return b.backfillContract(ctx, entityID, contractAddress, result)
}

func (b *Backfiller) backfillContract(ctx context.Context, entityID, contractAddress string, result *BackfillResult) error {
	address, err := chain.NormalizeAddress(contractAddress)
	if err != nil {
		return err
	}

	count, err := b.trades.CountByEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("count trades: %w", err)
	}

	// An entity with recorded trades already has its history; only the
	// candle rebuild may still have work to do.
	if count == 0 {
		if err := b.ingestHistory(ctx, entityID, address, result); err != nil {
			return err
		}
	}

	replayed, err := b.aggregator.Backfill(ctx, entityID)
	if err != nil {
		return fmt.Errorf("rebuild candles: %w", err)
	}
	result.TradesReplayed += replayed
	return nil
}

func (b *Backfiller) ingestHistory(ctx context.Context, entityID, address string, result *BackfillResult) error {
	events, err := b.chainClient.HistoricalTrades(ctx, address)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	rate := b.ethUSDRate(ctx, address)
	for _, ev := range events {
		trade := tradeFromEvent(entityID, ev, rate)
		if err := b.trades.Insert(ctx, trade); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				result.DuplicatesSkipped++
				continue
			}
			b.logger.Printf("[backfill] insert tx=%s: %v", ev.TxHash, err)
			result.Errors++
			continue
		}
		result.TradesIngested++
	}

	b.logger.Printf("[backfill] entity=%s ingested=%d of %d events", entityID, result.TradesIngested, len(events))
	return nil
}

// ethUSDRate reads the oracle rate once for the whole replay; historical
// trades share one conversion rate like the live path's per-event reads.
func (b *Backfiller) ethUSDRate(ctx context.Context, address string) decimal.Decimal {
	readCtx, cancel := context.WithTimeout(ctx, defaultRateTimeout)
	defer cancel()

	state, err := b.chainClient.ReadCurveState(readCtx, address)
	if err != nil || state == nil || state.EthUSDPrice == nil || state.EthUSDPrice.Sign() == 0 {
		return b.fallbacks.EthUSDPrice.Shift(-8)
	}
	return fromScaled(state.EthUSDPrice, 8)
}
