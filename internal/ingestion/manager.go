// Package ingestion consumes bonding-curve contract events and turns them
// into the trade ledger, candles, snapshots, and broadcasts the rest of the
// system serves. One consumer goroutine runs per subscribed contract;
// failures are isolated per event and per contract.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/broadcast"
	"artist-shares-engine/internal/candles"
	"artist-shares-engine/internal/chain"
	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/financials"
	"artist-shares-engine/internal/observability"
	"artist-shares-engine/internal/storage"
)

const (
	defaultSubscribeRetries = 5
	defaultRateTimeout      = 5 * time.Second
)

// Manager owns the live event subscriptions. Duplicate events are dropped
// by an in-memory seen-set first and the ledger's tx-hash uniqueness second;
// the ledger is the source of truth across restarts.
type Manager struct {
	chainClient chain.Client
	trades      storage.TradeStore
	registry    storage.ContractRegistry
	aggregator  *candles.Aggregator
	computer    *financials.Computer
	sink        broadcast.Sink
	fallbacks   domain.FallbackPolicy
	retries     uint64
	logger      *log.Logger

	mu         sync.Mutex
	subscribed map[string]struct{} // lowercased contract addresses
	seen       map[string]struct{} // tx hashes observed this process
	wg         sync.WaitGroup
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	ChainClient chain.Client
	TradeStore  storage.TradeStore
	Registry    storage.ContractRegistry
	Aggregator  *candles.Aggregator
	Computer    *financials.Computer

	// Sink defaults to broadcast.NopSink.
	Sink broadcast.Sink

	// Fallbacks defaults to domain.DefaultFallbacks() when zero-valued.
	Fallbacks domain.FallbackPolicy

	// SubscribeRetries bounds the exponential backoff when opening a
	// contract subscription. Defaults to 5 attempts.
	SubscribeRetries uint64

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// NewManager creates an ingestion manager with the provided dependencies.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		chainClient: opts.ChainClient,
		trades:      opts.TradeStore,
		registry:    opts.Registry,
		aggregator:  opts.Aggregator,
		computer:    opts.Computer,
		sink:        opts.Sink,
		fallbacks:   opts.Fallbacks,
		retries:     opts.SubscribeRetries,
		logger:      opts.Logger,
		subscribed:  make(map[string]struct{}),
		seen:        make(map[string]struct{}),
	}
	if m.sink == nil {
		m.sink = broadcast.NopSink{}
	}
	if m.fallbacks.EthUSDPrice.IsZero() {
		m.fallbacks = domain.DefaultFallbacks()
	}
	if m.retries == 0 {
		m.retries = defaultSubscribeRetries
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	return m
}

// Subscribe opens live trade and curve event streams for a contract and
// starts its consumer goroutine. Subscribing to an already-subscribed
// contract is a no-op. Subscription setup is retried with exponential
// backoff before giving up.
func (m *Manager) Subscribe(ctx context.Context, contractAddress string) error {
	address, err := chain.NormalizeAddress(contractAddress)
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", contractAddress, err)
	}

	m.mu.Lock()
	if _, ok := m.subscribed[address]; ok {
		m.mu.Unlock()
		return nil
	}
	m.subscribed[address] = struct{}{}
	m.mu.Unlock()

	var tradeCh <-chan chain.TradeEvent
	var curveCh <-chan chain.CurveEvent
	operation := func() error {
		var err error
		if tradeCh, err = m.chainClient.SubscribeTrades(ctx, address); err != nil {
			return err
		}
		curveCh, err = m.chainClient.SubscribeCurveEvents(ctx, address)
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.retries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		m.mu.Lock()
		delete(m.subscribed, address)
		m.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", address, err)
	}

	observability.DefaultMetrics.ActiveSubscriptions.Inc()
	m.logger.Printf("[ingestion] subscribed contract=%s", address)

	m.wg.Add(1)
	go m.consume(ctx, address, tradeCh, curveCh)
	return nil
}

// SubscribeAll seeds a subscription for every contract in the registry.
// Per-contract failures are logged and skipped; the count of successful
// subscriptions is returned.
func (m *Manager) SubscribeAll(ctx context.Context) (int, error) {
	contracts, err := m.registry.AllContracts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list contracts: %w", err)
	}

	subscribed := 0
	for entityID, address := range contracts {
		if err := m.Subscribe(ctx, address); err != nil {
			m.logger.Printf("[ingestion] subscribe entity=%s: %v", entityID, err)
			continue
		}
		subscribed++
	}
	return subscribed, nil
}

// Subscribed reports whether a contract has a live subscription.
func (m *Manager) Subscribed(contractAddress string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.subscribed[strings.ToLower(contractAddress)]
	return ok
}

// Wait blocks until every consumer goroutine has exited. Call after
// cancelling the subscription context.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) consume(ctx context.Context, address string, tradeCh <-chan chain.TradeEvent, curveCh <-chan chain.CurveEvent) {
	defer func() {
		m.mu.Lock()
		delete(m.subscribed, address)
		m.mu.Unlock()
		observability.DefaultMetrics.ActiveSubscriptions.Dec()
		m.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-tradeCh:
			if !ok {
				m.logger.Printf("[ingestion] trade stream closed contract=%s", address)
				return
			}
			if err := m.handleTradeEvent(ctx, address, ev); err != nil {
				m.logger.Printf("[ingestion] trade event contract=%s tx=%s: %v", address, ev.TxHash, err)
				observability.RecordEventError("trade", "handle")
			}
		case ev, ok := <-curveCh:
			if !ok {
				m.logger.Printf("[ingestion] curve stream closed contract=%s", address)
				return
			}
			m.handleCurveEvent(ctx, address, ev)
		}
	}
}

func (m *Manager) handleTradeEvent(ctx context.Context, address string, ev chain.TradeEvent) error {
	observability.RecordTradeProcessed(string(sideFromKind(ev.Kind)))

	if ev.TxHash == "" {
		return errors.New("event has no tx hash")
	}

	m.mu.Lock()
	_, dup := m.seen[ev.TxHash]
	m.mu.Unlock()
	if dup {
		observability.RecordDuplicateSkipped()
		return nil
	}

	exists, err := m.trades.ExistsByTxHash(ctx, ev.TxHash)
	if err != nil {
		return fmt.Errorf("check tx hash: %w", err)
	}
	if exists {
		m.markSeen(ev.TxHash)
		observability.RecordDuplicateSkipped()
		return nil
	}

	entityID, err := m.registry.EntityByContract(ctx, address)
	if err != nil {
		return fmt.Errorf("resolve entity: %w", err)
	}

	trade := tradeFromEvent(entityID, ev, m.ethUSDRate(ctx, ev.ContractAddress))
	if err := m.trades.Insert(ctx, trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			m.markSeen(ev.TxHash)
			observability.RecordDuplicateSkipped()
			return nil
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	m.markSeen(ev.TxHash)
	observability.RecordTradeStored()

	if err := m.aggregator.ApplyTrade(ctx, trade); err != nil {
		m.logger.Printf("[ingestion] candles tx=%s: %v", trade.TxHash, err)
	}

	m.computer.Invalidate(entityID)
	m.computer.InvalidateUser(trade.Counterparty)
	snapshot := m.computer.Compute(ctx, entityID)

	m.sink.PublishTrade(entityID, trade)
	observability.RecordPublication("trade")
	m.sink.PublishSnapshot(entityID, snapshot)
	observability.RecordPublication("snapshot")
	return nil
}

func (m *Manager) handleCurveEvent(ctx context.Context, address string, ev chain.CurveEvent) {
	observability.RecordCurveEvent(string(ev.Kind))

	entityID, err := m.registry.EntityByContract(ctx, address)
	if err != nil {
		m.logger.Printf("[ingestion] curve event contract=%s: %v", address, err)
		observability.RecordEventError("curve", "resolve_entity")
		return
	}

	m.computer.Invalidate(entityID)
	snapshot := m.computer.Compute(ctx, entityID)
	m.sink.PublishSnapshot(entityID, snapshot)
	observability.RecordPublication("snapshot")
}

func (m *Manager) markSeen(txHash string) {
	m.mu.Lock()
	m.seen[txHash] = struct{}{}
	m.mu.Unlock()
}

// tradeFromEvent normalizes a contract event into ledger units: token
// amounts and ETH from 1e18 scaling, prices from 1e8, USD value from the
// event's ETH at the given dollars-per-ETH rate. Live and backfill
// ingestion both go through here, so replayed history lands in the ledger
// exactly as live observation would have recorded it.
func tradeFromEvent(entityID string, ev chain.TradeEvent, ethUSDRate decimal.Decimal) *domain.Trade {
	amount := fromScaled(ev.Amount, 18)
	priceUSD := fromScaled(ev.PriceMicroUSD, 8)
	ethValue := fromScaled(ev.EthValue, 18)
	amountUSD := ethValue.Mul(ethUSDRate)

	rawPrice := ""
	if ev.PriceMicroUSD != nil {
		rawPrice = ev.PriceMicroUSD.String()
	}

	return &domain.Trade{
		EntityID:        entityID,
		ContractAddress: strings.ToLower(ev.ContractAddress),
		Side:            sideFromKind(ev.Kind),
		Amount:          amount,
		EthValue:        ethValue,
		AmountUSD:       amountUSD,
		PriceUSD:        priceUSD,
		Price:           rawPrice,
		Counterparty:    strings.ToLower(ev.Counterparty),
		TxHash:          ev.TxHash,
		Timestamp:       ev.BlockTime.UTC(),
	}
}

// ethUSDRate reads the oracle rate from the contract, in dollars per ETH.
// A failed or zero read degrades to the fallback rate.
func (m *Manager) ethUSDRate(ctx context.Context, contractAddress string) decimal.Decimal {
	readCtx, cancel := context.WithTimeout(ctx, defaultRateTimeout)
	defer cancel()

	state, err := m.chainClient.ReadCurveState(readCtx, strings.ToLower(contractAddress))
	if err != nil || state == nil || state.EthUSDPrice == nil || state.EthUSDPrice.Sign() == 0 {
		return m.fallbacks.EthUSDPrice.Shift(-8)
	}
	return fromScaled(state.EthUSDPrice, 8)
}

func sideFromKind(kind chain.TradeEventKind) domain.Side {
	if kind == chain.EventSharesSold {
		return domain.SideSell
	}
	return domain.SideBuy
}

func fromScaled(v *big.Int, exp int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0).Shift(-exp)
}
