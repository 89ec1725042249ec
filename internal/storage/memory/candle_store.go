package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
// A single store-wide mutex serializes applies, which also makes each
// per-key merge atomic.
type CandleStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Candle // keyed by composite key
	nextID int64
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{data: make(map[string]*domain.Candle)}
}

// candleKey generates a unique map key for a candle.
func candleKey(k domain.CandleKey) string {
	return fmt.Sprintf("%s|%s|%d", k.EntityID, k.Timeframe, k.PeriodStart.UTC().Unix())
}

// Apply merges a trade observation into the candle for the given key,
// creating it on first trade in the period.
func (s *CandleStore) Apply(_ context.Context, key domain.CandleKey, priceUSD, amount decimal.Decimal, side domain.Side) error {
	if key.EntityID == "" || key.Timeframe.IntervalSeconds() == 0 {
		return storage.ErrInvalidInput
	}
	if amount.IsNegative() || priceUSD.IsNegative() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := candleKey(key)
	c, ok := s.data[k]
	if !ok {
		s.nextID++
		s.data[k] = &domain.Candle{
			ID:          s.nextID,
			EntityID:    key.EntityID,
			Timeframe:   key.Timeframe,
			PeriodStart: key.PeriodStart.UTC(),
			Open:        priceUSD,
			High:        priceUSD,
			Low:         priceUSD,
			Close:       priceUSD,
			Volume:      amount,
			LastSide:    side,
		}
		return nil
	}

	if priceUSD.GreaterThan(c.High) {
		c.High = priceUSD
	}
	if priceUSD.LessThan(c.Low) {
		c.Low = priceUSD
	}
	c.Close = priceUSD
	c.Volume = c.Volume.Add(amount)
	c.LastSide = side
	return nil
}

// Series retrieves all candles for (entity, timeframe), ordered by period
// start ascending.
func (s *CandleStore) Series(_ context.Context, entityID string, tf domain.Timeframe) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.EntityID == entityID && c.Timeframe == tf {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart.Before(result[j].PeriodStart)
	})
	return result, nil
}

// HasAny reports whether (entity, timeframe) already has at least one candle.
func (s *CandleStore) HasAny(_ context.Context, entityID string, tf domain.Timeframe) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.data {
		if c.EntityID == entityID && c.Timeframe == tf {
			return true, nil
		}
	}
	return false, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
