package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single on-chain buy or sell against an artist's
// bonding-curve contract. Corresponds to the trades table.
// Trades are immutable facts: created once by live ingestion or backfill,
// never updated or deleted outside a full dev reset.
type Trade struct {
	ID              int64           // BIGSERIAL primary key
	EntityID        string          // artist identifier
	ContractAddress string          // token contract (lowercased hex)
	Side            Side            // BUY | SELL
	Amount          decimal.Decimal // token amount (already scaled from 1e18)
	Price           string          // raw on-chain price, micro-USD units as emitted
	EthValue        decimal.Decimal // ETH spent (buy) or received (sell)
	Counterparty    string          // buyer or seller address
	TxHash          string          // origin transaction hash, unique per trade
	AmountUSD       decimal.Decimal // USD value at trade time
	PriceUSD        decimal.Decimal // nominal USD price at trade time
	Timestamp       time.Time       // block time, UTC
}

// Side identifies the direction of a trade event.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// AvgPriceUSD returns the average realized USD price of the trade
// (AmountUSD / Amount). Falls back to the nominal PriceUSD when the token
// amount is zero. Candle aggregation must use this on both the live and
// backfill paths so the two produce identical series.
func (t *Trade) AvgPriceUSD() decimal.Decimal {
	if t.Amount.IsPositive() {
		return t.AmountUSD.DivRound(t.Amount, 10)
	}
	return t.PriceUSD
}
