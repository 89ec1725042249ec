package domain

import "github.com/shopspring/decimal"

// FallbackPolicy gathers every fallback constant used when on-chain data is
// missing or unreadable. All values are documented defaults, not invariants:
// deployments may override them, but the engine must always have a complete
// policy so financial computation can degrade instead of failing.
type FallbackPolicy struct {
	// EthUSDPrice is used when the contract's ETH/USD oracle read fails or
	// returns zero. Scaled by 1e8 like the oracle (i.e. $3500 -> 3500e8).
	EthUSDPrice decimal.Decimal

	// TargetCurveEth is the reserve target that marks curve completion,
	// in whole ETH. The contract does not expose it as a getter.
	TargetCurveEth decimal.Decimal
}

// DefaultFallbacks returns the policy matching the deployed contract
// generation: $3500/ETH oracle fallback, 19.7 ETH completion target.
func DefaultFallbacks() FallbackPolicy {
	return FallbackPolicy{
		EthUSDPrice:    decimal.NewFromInt(3500).Shift(8),
		TargetCurveEth: decimal.RequireFromString("19.7"),
	}
}
