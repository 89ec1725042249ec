package postgres

import (
	"context"
	"fmt"
	"strings"

	"artist-shares-engine/internal/storage"
)

// ContractRegistry implements storage.ContractRegistry using PostgreSQL.
type ContractRegistry struct {
	pool *Pool
}

// NewContractRegistry creates a new ContractRegistry.
func NewContractRegistry(pool *Pool) *ContractRegistry {
	return &ContractRegistry{pool: pool}
}

// Compile-time interface check.
var _ storage.ContractRegistry = (*ContractRegistry)(nil)

// Register records an entity/contract pair, replacing any previous contract
// for that entity.
func (r *ContractRegistry) Register(ctx context.Context, entityID, contractAddress string) error {
	if entityID == "" || contractAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO entity_contracts (entity_id, contract_address)
		VALUES ($1, $2)
		ON CONFLICT (entity_id) DO UPDATE SET contract_address = EXCLUDED.contract_address
	`

	_, err := r.pool.Exec(ctx, query, entityID, strings.ToLower(contractAddress))
	if err != nil {
		return fmt.Errorf("register contract: %w", err)
	}
	return nil
}

// ContractByEntity returns the contract address for an entity.
func (r *ContractRegistry) ContractByEntity(ctx context.Context, entityID string) (string, error) {
	var addr string
	err := r.pool.QueryRow(ctx,
		`SELECT contract_address FROM entity_contracts WHERE entity_id = $1`, entityID,
	).Scan(&addr)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("contract by entity: %w", err)
	}
	return addr, nil
}

// EntityByContract returns the entity owning a contract address.
func (r *ContractRegistry) EntityByContract(ctx context.Context, contractAddress string) (string, error) {
	var entityID string
	err := r.pool.QueryRow(ctx,
		`SELECT entity_id FROM entity_contracts WHERE contract_address = LOWER($1)`, contractAddress,
	).Scan(&entityID)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("entity by contract: %w", err)
	}
	return entityID, nil
}

// AllContracts returns every registered (entity, contract) pair.
func (r *ContractRegistry) AllContracts(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT entity_id, contract_address FROM entity_contracts`)
	if err != nil {
		return nil, fmt.Errorf("all contracts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var entityID, addr string
		if err := rows.Scan(&entityID, &addr); err != nil {
			return nil, fmt.Errorf("scan contract row: %w", err)
		}
		out[entityID] = addr
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contract rows: %w", err)
	}

	return out, nil
}
