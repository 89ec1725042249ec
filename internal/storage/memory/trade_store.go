package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	byHash map[string]*domain.Trade // keyed by tx hash
	nextID int64
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{byHash: make(map[string]*domain.Trade)}
}

// Insert adds a new trade. Returns ErrDuplicateKey if the tx hash exists.
// The check-and-insert runs under one lock, matching the uniqueness
// guarantee of the SQL implementation.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.EntityID == "" || t.TxHash == "" {
		return storage.ErrInvalidInput
	}
	if t.Amount.IsNegative() || t.AmountUSD.IsNegative() || t.EthValue.IsNegative() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[t.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	s.nextID++
	cp := *t
	cp.ID = s.nextID
	s.byHash[t.TxHash] = &cp
	return nil
}

// ExistsByTxHash reports whether a trade with the given hash exists.
func (s *TradeStore) ExistsByTxHash(_ context.Context, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byHash[txHash]
	return ok, nil
}

// AllByEntity retrieves every trade for an entity, ordered by timestamp ASC.
func (s *TradeStore) AllByEntity(_ context.Context, entityID string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.byHash {
		if t.EntityID == entityID {
			cp := *t
			result = append(result, &cp)
		}
	}
	sortTrades(result)
	return result, nil
}

// SinceByEntity retrieves trades with timestamp >= since, ordered ASC.
func (s *TradeStore) SinceByEntity(_ context.Context, entityID string, since time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.byHash {
		if t.EntityID == entityID && !t.Timestamp.Before(since) {
			cp := *t
			result = append(result, &cp)
		}
	}
	sortTrades(result)
	return result, nil
}

// CountByEntity returns the number of trades recorded for an entity.
func (s *TradeStore) CountByEntity(_ context.Context, entityID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.byHash {
		if t.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

// LatestByEntity returns the most recent trade for an entity.
func (s *TradeStore) LatestByEntity(_ context.Context, entityID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Trade
	for _, t := range s.byHash {
		if t.EntityID != entityID {
			continue
		}
		if latest == nil || t.Timestamp.After(latest.Timestamp) ||
			(t.Timestamp.Equal(latest.Timestamp) && t.ID > latest.ID) {
			latest = t
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// SumUSDSince sums AmountUSD over trades for an entity since a cutoff.
func (s *TradeStore) SumUSDSince(_ context.Context, entityID string, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, t := range s.byHash {
		if t.EntityID == entityID && !t.Timestamp.Before(since) {
			sum = sum.Add(t.AmountUSD)
		}
	}
	return sum, nil
}

// SumUSDByCounterpartySince sums AmountUSD over trades by a wallet address
// since a cutoff, across entities.
func (s *TradeStore) SumUSDByCounterpartySince(_ context.Context, counterparty string, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, t := range s.byHash {
		if strings.EqualFold(t.Counterparty, counterparty) && !t.Timestamp.Before(since) {
			sum = sum.Add(t.AmountUSD)
		}
	}
	return sum, nil
}

func sortTrades(trades []*domain.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].Timestamp.Equal(trades[j].Timestamp) {
			return trades[i].Timestamp.Before(trades[j].Timestamp)
		}
		return trades[i].ID < trades[j].ID
	})
}

var _ storage.TradeStore = (*TradeStore)(nil)
