// Package chain defines the boundary to the bonding-curve contracts. The
// engine consumes a node through the Client interface; it never implements
// one. The stub subpackage provides an in-process fake for tests and dev
// mode.
package chain

import (
	"context"
	"math/big"
	"time"
)

// TradeEvent is a normalized SharesBought or SharesSold contract event.
// Raw integer fields keep contract scaling: token amounts and ETH values are
// 1e18-scaled, prices are micro-USD (1e8-scaled).
type TradeEvent struct {
	Kind            TradeEventKind
	ContractAddress string
	TxHash          string
	Amount          *big.Int  // token amount, 1e18-scaled
	PriceMicroUSD   *big.Int  // execution price, 1e8-scaled USD
	EthValue        *big.Int  // wei spent (buy) or received (sell)
	Counterparty    string    // buyer or seller address
	BlockTime       time.Time // block timestamp
}

// TradeEventKind discriminates the two trade event signatures.
type TradeEventKind string

const (
	EventSharesBought TradeEventKind = "SharesBought"
	EventSharesSold   TradeEventKind = "SharesSold"
)

// CurveEvent is a liquidity or lifecycle event that affects financials but
// creates no trade.
type CurveEvent struct {
	Kind            CurveEventKind
	ContractAddress string
	TxHash          string
	BlockTime       time.Time
}

// CurveEventKind discriminates curve events.
type CurveEventKind string

const (
	EventDailySellLimitUpdated CurveEventKind = "DailySellLimitUpdated"
	EventCurveCompleted        CurveEventKind = "CurveCompleted"
)

// CurveState is the result of the point-in-time contract reads needed for a
// financial snapshot. All values keep contract scaling.
type CurveState struct {
	TotalSupply     *big.Int // 1e18-scaled
	TokensSold      *big.Int // 1e18-scaled
	TokensInCurve   *big.Int // 1e18-scaled
	EthInCurve      *big.Int // wei
	DailySellLimit  *big.Int // 1e8-scaled USD
	DisplayPrice    *big.Int // getCurrentPriceMicroUSD: virtual price, 1e8-scaled
	MarginalEthWei  *big.Int // getEthForTokens(1e18): wei out for one token
	EthUSDPrice     *big.Int // oracle rate, 1e8-scaled; may be zero
}

// Client provides event subscriptions and read-only contract calls.
// Implementations must respect context deadlines on every call; the engine
// bounds each call with a timeout and treats failures as degradable.
type Client interface {
	// SubscribeTrades opens a live stream of buy/sell events for one
	// contract. The channel is closed when ctx is cancelled.
	SubscribeTrades(ctx context.Context, contractAddress string) (<-chan TradeEvent, error)

	// SubscribeCurveEvents opens a live stream of liquidity/lifecycle
	// events for one contract.
	SubscribeCurveEvents(ctx context.Context, contractAddress string) (<-chan CurveEvent, error)

	// HistoricalTrades returns past buy/sell events for a contract in
	// block order, for backfill.
	HistoricalTrades(ctx context.Context, contractAddress string) ([]TradeEvent, error)

	// ReadCurveState performs the snapshot reads in one logical call.
	ReadCurveState(ctx context.Context, contractAddress string) (*CurveState, error)
}
