package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL. The unique
// index on tx_hash makes Insert atomic with respect to the duplicate check.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `id, entity_id, contract_address, side, amount, price, eth_value, counterparty, tx_hash, amount_usd, price_usd, ts`

// Insert adds a new trade. Returns ErrDuplicateKey if the tx hash exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.EntityID == "" || t.TxHash == "" {
		return storage.ErrInvalidInput
	}
	if t.Amount.IsNegative() || t.AmountUSD.IsNegative() || t.EthValue.IsNegative() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			entity_id, contract_address, side, amount, price, eth_value, counterparty, tx_hash, amount_usd, price_usd, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		t.EntityID,
		t.ContractAddress,
		string(t.Side),
		t.Amount,
		t.Price,
		t.EthValue,
		t.Counterparty,
		t.TxHash,
		t.AmountUSD,
		t.PriceUSD,
		t.Timestamp.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ExistsByTxHash reports whether a trade with the given hash exists.
func (s *TradeStore) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM trades WHERE tx_hash = $1)`, txHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("trade exists by tx hash: %w", err)
	}
	return exists, nil
}

// AllByEntity retrieves every trade for an entity, ordered by timestamp ASC.
func (s *TradeStore) AllByEntity(ctx context.Context, entityID string) ([]*domain.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE entity_id = $1
		ORDER BY ts ASC, id ASC
	`, tradeColumns)

	rows, err := s.pool.Query(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("get trades by entity: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// SinceByEntity retrieves trades with timestamp >= since, ordered ASC.
func (s *TradeStore) SinceByEntity(ctx context.Context, entityID string, since time.Time) ([]*domain.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE entity_id = $1 AND ts >= $2
		ORDER BY ts ASC, id ASC
	`, tradeColumns)

	rows, err := s.pool.Query(ctx, query, entityID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("get trades since: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// CountByEntity returns the number of trades recorded for an entity.
func (s *TradeStore) CountByEntity(ctx context.Context, entityID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE entity_id = $1`, entityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trades by entity: %w", err)
	}
	return count, nil
}

// LatestByEntity returns the most recent trade for an entity.
func (s *TradeStore) LatestByEntity(ctx context.Context, entityID string) (*domain.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE entity_id = $1
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`, tradeColumns)

	row := s.pool.QueryRow(ctx, query, entityID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest trade: %w", err)
	}
	return t, nil
}

// SumUSDSince sums AmountUSD over trades for an entity since a cutoff.
func (s *TradeStore) SumUSDSince(ctx context.Context, entityID string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_usd), 0) FROM trades WHERE entity_id = $1 AND ts >= $2`,
		entityID, since.UTC(),
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum usd since: %w", err)
	}
	return sum, nil
}

// SumUSDByCounterpartySince sums AmountUSD over trades by a wallet address
// since a cutoff, across entities.
func (s *TradeStore) SumUSDByCounterpartySince(ctx context.Context, counterparty string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_usd), 0) FROM trades WHERE LOWER(counterparty) = LOWER($1) AND ts >= $2`,
		counterparty, since.UTC(),
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum usd by counterparty: %w", err)
	}
	return sum, nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var side string

	err := row.Scan(
		&t.ID,
		&t.EntityID,
		&t.ContractAddress,
		&side,
		&t.Amount,
		&t.Price,
		&t.EthValue,
		&t.Counterparty,
		&t.TxHash,
		&t.AmountUSD,
		&t.PriceUSD,
		&t.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	t.Side = domain.Side(side)
	t.Timestamp = t.Timestamp.UTC()
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
