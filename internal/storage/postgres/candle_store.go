package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL. Apply is a
// single INSERT ... ON CONFLICT statement, so concurrent merges to the same
// (entity, timeframe, period) key serialize on the row without lost updates.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// Apply merges a trade observation into the candle for the given key.
func (s *CandleStore) Apply(ctx context.Context, key domain.CandleKey, priceUSD, amount decimal.Decimal, side domain.Side) error {
	if key.EntityID == "" || key.Timeframe.IntervalSeconds() == 0 {
		return storage.ErrInvalidInput
	}
	if amount.IsNegative() || priceUSD.IsNegative() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO candles (entity_id, timeframe, period_start, open, high, low, close, volume, last_side)
		VALUES ($1, $2, $3, $4, $4, $4, $4, $5, $6)
		ON CONFLICT (entity_id, timeframe, period_start) DO UPDATE SET
			high      = GREATEST(candles.high, EXCLUDED.high),
			low       = LEAST(candles.low, EXCLUDED.low),
			close     = EXCLUDED.close,
			volume    = candles.volume + EXCLUDED.volume,
			last_side = EXCLUDED.last_side
	`

	_, err := s.pool.Exec(ctx, query,
		key.EntityID,
		string(key.Timeframe),
		key.PeriodStart.UTC(),
		priceUSD,
		amount,
		string(side),
	)
	if err != nil {
		return fmt.Errorf("apply candle: %w", err)
	}
	return nil
}

// Series retrieves all candles for (entity, timeframe), ordered by period
// start ascending.
func (s *CandleStore) Series(ctx context.Context, entityID string, tf domain.Timeframe) ([]*domain.Candle, error) {
	query := `
		SELECT id, entity_id, timeframe, period_start, open, high, low, close, volume, last_side
		FROM candles
		WHERE entity_id = $1 AND timeframe = $2
		ORDER BY period_start ASC
	`

	rows, err := s.pool.Query(ctx, query, entityID, string(tf))
	if err != nil {
		return nil, fmt.Errorf("get candle series: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		var c domain.Candle
		var timeframe, lastSide string

		err := rows.Scan(
			&c.ID,
			&c.EntityID,
			&timeframe,
			&c.PeriodStart,
			&c.Open,
			&c.High,
			&c.Low,
			&c.Close,
			&c.Volume,
			&lastSide,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.Timeframe = domain.Timeframe(timeframe)
		c.LastSide = domain.Side(lastSide)
		c.PeriodStart = c.PeriodStart.UTC()
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}

// HasAny reports whether (entity, timeframe) already has at least one candle.
func (s *CandleStore) HasAny(ctx context.Context, entityID string, tf domain.Timeframe) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM candles WHERE entity_id = $1 AND timeframe = $2)`,
		entityID, string(tf),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("candles exist: %w", err)
	}
	return exists, nil
}
