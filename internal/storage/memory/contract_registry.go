package memory

import (
	"context"
	"strings"
	"sync"

	"artist-shares-engine/internal/storage"
)

// ContractRegistry is an in-memory implementation of
// storage.ContractRegistry.
type ContractRegistry struct {
	mu         sync.RWMutex
	byEntity   map[string]string // entity id -> contract address
	byContract map[string]string // contract address -> entity id
}

// NewContractRegistry creates a new in-memory contract registry.
func NewContractRegistry() *ContractRegistry {
	return &ContractRegistry{
		byEntity:   make(map[string]string),
		byContract: make(map[string]string),
	}
}

// Register records an entity/contract pair, replacing any previous contract
// for that entity.
func (r *ContractRegistry) Register(_ context.Context, entityID, contractAddress string) error {
	if entityID == "" || contractAddress == "" {
		return storage.ErrInvalidInput
	}
	addr := strings.ToLower(contractAddress)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byEntity[entityID]; ok {
		delete(r.byContract, prev)
	}
	r.byEntity[entityID] = addr
	r.byContract[addr] = entityID
	return nil
}

// ContractByEntity returns the contract address for an entity.
func (r *ContractRegistry) ContractByEntity(_ context.Context, entityID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, ok := r.byEntity[entityID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return addr, nil
}

// EntityByContract returns the entity owning a contract address.
func (r *ContractRegistry) EntityByContract(_ context.Context, contractAddress string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entityID, ok := r.byContract[strings.ToLower(contractAddress)]
	if !ok {
		return "", storage.ErrNotFound
	}
	return entityID, nil
}

// AllContracts returns every registered (entity, contract) pair.
func (r *ContractRegistry) AllContracts(_ context.Context) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.byEntity))
	for entityID, addr := range r.byEntity {
		out[entityID] = addr
	}
	return out, nil
}

var _ storage.ContractRegistry = (*ContractRegistry)(nil)
