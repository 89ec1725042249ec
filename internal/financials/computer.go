package financials

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/chain"
	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/observability"
	"artist-shares-engine/internal/storage"
)

// DefaultReadTimeout bounds the contract reads of one snapshot computation.
const DefaultReadTimeout = 10 * time.Second

var (
	weiScale    = decimal.New(1, 18) // 1e18: token amounts and wei
	oracleScale = decimal.New(1, 8)  // 1e8: micro-USD prices and limits
	hundred     = decimal.NewFromInt(100)
)

// Computer derives financial snapshots from live contract reads plus the
// trade ledger. Results are cached per entity; ingestion invalidates on
// every trade or curve event. Any upstream failure degrades to the zero
// snapshot instead of propagating an error.
type Computer struct {
	chainClient chain.Client
	registry    storage.ContractRegistry
	trades      storage.TradeStore
	fallbacks   domain.FallbackPolicy
	clock       clock.Clock
	readTimeout time.Duration
	logger      *log.Logger

	snapshots *snapshotCache
	volumes   *volumeCache
}

// ComputerOptions contains configuration for creating a Computer.
type ComputerOptions struct {
	ChainClient chain.Client
	Registry    storage.ContractRegistry
	TradeStore  storage.TradeStore

	// Fallbacks defaults to domain.DefaultFallbacks() when zero-valued.
	Fallbacks domain.FallbackPolicy

	// Clock defaults to the real clock. Tests inject a mock.
	Clock clock.Clock

	// ReadTimeout defaults to DefaultReadTimeout.
	ReadTimeout time.Duration

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// NewComputer creates a snapshot computer with the provided dependencies.
func NewComputer(opts ComputerOptions) *Computer {
	c := &Computer{
		chainClient: opts.ChainClient,
		registry:    opts.Registry,
		trades:      opts.TradeStore,
		fallbacks:   opts.Fallbacks,
		clock:       opts.Clock,
		readTimeout: opts.ReadTimeout,
		logger:      opts.Logger,
		snapshots:   newSnapshotCache(),
		volumes:     newVolumeCache(),
	}
	if c.fallbacks.EthUSDPrice.IsZero() {
		c.fallbacks = domain.DefaultFallbacks()
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.readTimeout <= 0 {
		c.readTimeout = DefaultReadTimeout
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

// Compute returns the financial snapshot for an entity, serving from cache
// when one is present. It never returns an error: an entity without a valid
// contract, or one whose chain reads fail, gets the zero snapshot.
func (c *Computer) Compute(ctx context.Context, entityID string) *domain.FinancialSnapshot {
	if cached, ok := c.snapshots.get(entityID); ok {
		observability.DefaultMetrics.SnapshotCacheHits.Inc()
		return cached
	}

	snapshot, degraded := c.compute(ctx, entityID)
	observability.RecordSnapshotComputed(degraded)
	c.snapshots.put(entityID, snapshot)
	return snapshot
}

// Invalidate drops the cached snapshot for an entity.
func (c *Computer) Invalidate(entityID string) {
	c.snapshots.invalidate(entityID)
}

// InvalidateAll drops every cached snapshot.
func (c *Computer) InvalidateAll() {
	c.snapshots.invalidateAll()
}

// InvalidateUser drops the cached 24h volume for a wallet address.
func (c *Computer) InvalidateUser(address string) {
	c.volumes.invalidate(address)
}

// UserTradeVolume24h returns the rolling 24h USD trade volume of a wallet
// across all entities. Invalid addresses yield zero. Results are cached per
// address until that address trades again.
func (c *Computer) UserTradeVolume24h(ctx context.Context, address string) decimal.Decimal {
	normalized, err := chain.NormalizeAddress(address)
	if err != nil {
		return decimal.Zero
	}
	if cached, ok := c.volumes.get(normalized); ok {
		return cached
	}

	since := c.clock.Now().UTC().Add(-24 * time.Hour)
	sum, err := c.trades.SumUSDByCounterpartySince(ctx, normalized, since)
	if err != nil {
		c.logger.Printf("[financials] user volume %s: %v", normalized, err)
		return decimal.Zero
	}
	c.volumes.put(normalized, sum)
	return sum
}

func (c *Computer) compute(ctx context.Context, entityID string) (*domain.FinancialSnapshot, bool) {
	contractAddress, err := c.registry.ContractByEntity(ctx, entityID)
	if err != nil {
		return domain.ZeroSnapshot(entityID), true
	}
	contractAddress, err = chain.NormalizeAddress(contractAddress)
	if err != nil {
		c.logger.Printf("[financials] entity=%s has malformed contract address", entityID)
		return domain.ZeroSnapshot(entityID), true
	}

	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	readStart := time.Now()
	state, err := c.chainClient.ReadCurveState(readCtx, contractAddress)
	observability.RecordChainCallLatency("read_curve_state", time.Since(readStart).Seconds())
	if err != nil {
		c.logger.Printf("[financials] read curve state entity=%s contract=%s: %v", entityID, contractAddress, err)
		return domain.ZeroSnapshot(entityID), true
	}

	ethUSD := fromBig(state.EthUSDPrice)
	if ethUSD.IsZero() {
		ethUSD = c.fallbacks.EthUSDPrice
	}
	ethUSDRate := ethUSD.Div(oracleScale) // dollars per ETH

	displayPrice := fromBig(state.DisplayPrice).Div(oracleScale)
	marginalPrice := fromBig(state.MarginalEthWei).Div(weiScale).Mul(ethUSDRate)

	soldTokens := fromBig(state.TokensSold).Div(weiScale)
	unsoldTokens := fromBig(state.TokensInCurve).Div(weiScale)
	marketCap := soldTokens.Mul(marginalPrice).Add(unsoldTokens.Mul(displayPrice))

	ethInCurve := fromBig(state.EthInCurve).Div(weiScale)
	progress := decimal.Zero
	if c.fallbacks.TargetCurveEth.IsPositive() {
		progress = ethInCurve.Div(c.fallbacks.TargetCurveEth).Mul(hundred)
		if progress.GreaterThan(hundred) {
			progress = hundred
		}
	}

	now := c.clock.Now().UTC()
	since := now.Add(-24 * time.Hour)
	volume24h, err := c.trades.SumUSDSince(ctx, entityID, since)
	if err != nil {
		c.logger.Printf("[financials] 24h volume entity=%s: %v", entityID, err)
		volume24h = decimal.Zero
	}

	dailyLiquidity, _ := fromBig(state.DailySellLimit).Div(oracleScale).Float64()
	ethInCurveUSD, _ := ethInCurve.Mul(ethUSDRate).Float64()
	progressPct, _ := progress.Float64()

	return &domain.FinancialSnapshot{
		EntityID:          entityID,
		CurrentPrice:      FormatUSD(displayPrice),
		Volume24h:         FormatUSD(volume24h),
		MarketCap:         FormatUSD(marketCap),
		DailyLiquidityUSD: dailyLiquidity,
		CurveProgress:     progressPct,
		AvailableSupply:   unsoldTokens.IntPart(),
		NextReset:         nextUTCMidnight(now),
		EthInCurveUSD:     ethInCurveUSD,
	}, false
}

// nextUTCMidnight returns the next daily sell-limit reset: the first UTC
// midnight strictly after now.
func nextUTCMidnight(now time.Time) time.Time {
	epoch := now.UTC().Unix()
	return time.Unix(epoch+(86400-epoch%86400), 0).UTC()
}

func fromBig(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}
