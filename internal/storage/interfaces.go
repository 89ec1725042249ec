package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/domain"
)

// TradeStore is the append-only trade ledger. The unique tx-hash constraint
// is the source of truth for deduplication: Insert must be atomic with
// respect to the duplicate check, so a race can never produce two trades for
// one hash. In-memory seen-sets upstream are an optimization only.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if a trade with the
	// same tx hash already exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// ExistsByTxHash reports whether a trade with the given hash exists.
	ExistsByTxHash(ctx context.Context, txHash string) (bool, error)

	// AllByEntity retrieves every trade for an entity, ordered by
	// timestamp ascending. Used by candle backfill.
	AllByEntity(ctx context.Context, entityID string) ([]*domain.Trade, error)

	// SinceByEntity retrieves trades for an entity with timestamp >= since,
	// ordered by timestamp ascending.
	SinceByEntity(ctx context.Context, entityID string, since time.Time) ([]*domain.Trade, error)

	// CountByEntity returns the number of trades recorded for an entity.
	CountByEntity(ctx context.Context, entityID string) (int64, error)

	// LatestByEntity returns the most recent trade for an entity.
	// Returns ErrNotFound if the entity has no trades.
	LatestByEntity(ctx context.Context, entityID string) (*domain.Trade, error)

	// SumUSDSince sums AmountUSD over trades for an entity with
	// timestamp >= since.
	SumUSDSince(ctx context.Context, entityID string, since time.Time) (decimal.Decimal, error)

	// SumUSDByCounterpartySince sums AmountUSD over trades by a wallet
	// address (buyer or seller) with timestamp >= since, across entities.
	SumUSDByCounterpartySince(ctx context.Context, counterparty string, since time.Time) (decimal.Decimal, error)
}

// CandleStore holds one OHLCV series per (entity, timeframe). Apply is the
// atomic upsert-or-merge primitive: implementations must serialize
// concurrent applies to the same (entity, timeframe, period) key.
type CandleStore interface {
	// Apply merges a trade observation into the candle for the given key.
	// Creates the candle (open=high=low=close=price, volume=amount) if the
	// period has none; otherwise raises high, lowers low, sets close and
	// last side, and accumulates volume.
	Apply(ctx context.Context, key domain.CandleKey, priceUSD, amount decimal.Decimal, side domain.Side) error

	// Series retrieves all candles for (entity, timeframe), ordered by
	// period start ascending.
	Series(ctx context.Context, entityID string, tf domain.Timeframe) ([]*domain.Candle, error)

	// HasAny reports whether (entity, timeframe) already has at least one
	// candle. Backfill uses this as its resumability guard.
	HasAny(ctx context.Context, entityID string, tf domain.Timeframe) (bool, error)
}

// ContractRegistry maps entities to their deployed bonding-curve contracts.
// The CRUD side of the application owns writes; the engine reads it to seed
// subscriptions and resolve snapshot targets.
type ContractRegistry interface {
	// ContractByEntity returns the contract address for an entity.
	// Returns ErrNotFound if the entity has no deployed contract.
	ContractByEntity(ctx context.Context, entityID string) (string, error)

	// EntityByContract returns the entity owning a contract address.
	EntityByContract(ctx context.Context, contractAddress string) (string, error)

	// AllContracts returns every registered (entity, contract) pair.
	AllContracts(ctx context.Context) (map[string]string, error)

	// Register records an entity/contract pair, replacing any previous
	// contract for that entity.
	Register(ctx context.Context, entityID, contractAddress string) error
}
