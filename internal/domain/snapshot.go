package domain

import "time"

// FinancialSnapshot is the derived point-in-time view of an artist's market.
// It is computed on demand from live contract reads plus the trade ledger,
// cached per entity, and never persisted.
type FinancialSnapshot struct {
	EntityID          string    // artist identifier
	CurrentPrice      string    // formatted USD display price
	Volume24h         string    // formatted USD rolling 24h volume
	MarketCap         string    // formatted USD market cap
	DailyLiquidityUSD float64   // daily sell-limit budget in USD
	CurveProgress     float64   // percent of target reserve reached, capped at 100
	AvailableSupply   int64     // whole tokens still in the curve
	NextReset         time.Time // next UTC-midnight liquidity reset; zero if unknown
	EthInCurveUSD     float64   // USD value of ETH locked in the curve
}

// ZeroSnapshot is the documented safe placeholder returned when an entity
// has no deployed contract or a required on-chain read fails. CurveProgress
// is 100 so the UI renders a fully-consumed curve rather than a live one.
func ZeroSnapshot(entityID string) *FinancialSnapshot {
	return &FinancialSnapshot{
		EntityID:      entityID,
		CurrentPrice:  "$0.00",
		Volume24h:     "$0.00",
		MarketCap:     "$0.00",
		CurveProgress: 100,
	}
}
