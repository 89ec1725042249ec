package financials

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/domain"
)

// snapshotCache holds computed snapshots per entity until ingestion
// invalidates them. Entries never expire by time; a trade or curve event is
// the only thing that can change a snapshot.
type snapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.FinancialSnapshot
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{snapshots: make(map[string]*domain.FinancialSnapshot)}
}

func (c *snapshotCache) get(entityID string) (*domain.FinancialSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.snapshots[entityID]
	return s, ok
}

func (c *snapshotCache) put(entityID string, s *domain.FinancialSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots[entityID] = s
}

func (c *snapshotCache) invalidate(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.snapshots, entityID)
}

func (c *snapshotCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots = make(map[string]*domain.FinancialSnapshot)
}

// volumeCache holds 24h trade volume per wallet address, keyed lowercase.
type volumeCache struct {
	mu      sync.RWMutex
	volumes map[string]decimal.Decimal
}

func newVolumeCache() *volumeCache {
	return &volumeCache{volumes: make(map[string]decimal.Decimal)}
}

func (c *volumeCache) get(address string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.volumes[strings.ToLower(address)]
	return v, ok
}

func (c *volumeCache) put(address string, v decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.volumes[strings.ToLower(address)] = v
}

func (c *volumeCache) invalidate(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.volumes, strings.ToLower(address))
}
