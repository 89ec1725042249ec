package ingestion

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artist-shares-engine/internal/candles"
	"artist-shares-engine/internal/chain"
	"artist-shares-engine/internal/chain/stub"
	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/financials"
	"artist-shares-engine/internal/storage/memory"
)

const (
	testContract = "0x52908400098527886e0f7030069857d2e4169ee7"
	testWallet   = "0xde709f2102306220921060314715629080e2fb77"
)

// captureSink records publications and signals each one on a channel.
type captureSink struct {
	mu        sync.Mutex
	trades    []*domain.Trade
	snapshots []*domain.FinancialSnapshot
	published chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{published: make(chan struct{}, 64)}
}

func (s *captureSink) PublishTrade(_ string, trade *domain.Trade) {
	s.mu.Lock()
	s.trades = append(s.trades, trade)
	s.mu.Unlock()
	s.published <- struct{}{}
}

func (s *captureSink) PublishSnapshot(_ string, snapshot *domain.FinancialSnapshot) {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snapshot)
	s.mu.Unlock()
	s.published <- struct{}{}
}

func (s *captureSink) waitPublications(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.published:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for publication %d of %d", i+1, n)
		}
	}
}

func (s *captureSink) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

type managerFixture struct {
	chainClient *stub.Client
	trades      *memory.TradeStore
	candleStore *memory.CandleStore
	registry    *memory.ContractRegistry
	computer    *financials.Computer
	sink        *captureSink
	manager     *Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	chainClient := stub.NewClient()
	chainClient.States[testContract] = &chain.CurveState{
		TotalSupply:    big.NewInt(0),
		TokensSold:     big.NewInt(0),
		TokensInCurve:  big.NewInt(0),
		EthInCurve:     big.NewInt(0),
		DailySellLimit: big.NewInt(0),
		DisplayPrice:   big.NewInt(2_5000_0000),     // $2.50
		MarginalEthWei: big.NewInt(0),
		EthUSDPrice:    big.NewInt(200_000_000_000), // $2000
	}

	trades := memory.NewTradeStore()
	candleStore := memory.NewCandleStore()
	registry := memory.NewContractRegistry()
	require.NoError(t, registry.Register(context.Background(), "a1", testContract))

	aggregator := candles.NewAggregator(candles.AggregatorOptions{
		CandleStore: candleStore,
		TradeStore:  trades,
	})

	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	computer := financials.NewComputer(financials.ComputerOptions{
		ChainClient: chainClient,
		Registry:    registry,
		TradeStore:  trades,
		Clock:       mockClock,
	})

	sink := newCaptureSink()
	manager := NewManager(ManagerOptions{
		ChainClient:      chainClient,
		TradeStore:       trades,
		Registry:         registry,
		Aggregator:       aggregator,
		Computer:         computer,
		Sink:             sink,
		SubscribeRetries: 1,
	})

	return &managerFixture{
		chainClient: chainClient,
		trades:      trades,
		candleStore: candleStore,
		registry:    registry,
		computer:    computer,
		sink:        sink,
		manager:     manager,
	}
}

func buyEvent(txHash string) chain.TradeEvent {
	return chain.TradeEvent{
		Kind:            chain.EventSharesBought,
		ContractAddress: testContract,
		TxHash:          txHash,
		Amount:          new(big.Int).Mul(big.NewInt(10), big.NewInt(1_000_000_000_000_000_000)), // 10 tokens
		PriceMicroUSD:   big.NewInt(2_5000_0000),                                                 // $2.50
		EthValue:        big.NewInt(12_500_000_000_000_000),                                      // 0.0125 ETH
		Counterparty:    testWallet,
		BlockTime:       time.Date(2026, 3, 10, 13, 59, 30, 0, time.UTC),
	}
}

func TestSubscribeRejectsInvalidAddress(t *testing.T) {
	f := newManagerFixture(t)

	err := f.manager.Subscribe(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)

	err = f.manager.Subscribe(context.Background(), "0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	f := newManagerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		f.manager.Wait()
	}()

	require.NoError(t, f.manager.Subscribe(ctx, testContract))
	assert.True(t, f.manager.Subscribed(testContract))

	// Mixed case resolves to the same subscription.
	require.NoError(t, f.manager.Subscribe(ctx, "0x52908400098527886E0F7030069857D2E4169EE7"))
}

func TestLiveTradeEventFlow(t *testing.T) {
	f := newManagerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		f.manager.Wait()
	}()

	require.NoError(t, f.manager.Subscribe(ctx, testContract))

	f.chainClient.EmitTrade(buyEvent("0xabc"))
	f.sink.waitPublications(t, 2) // trade + snapshot

	stored, err := f.trades.AllByEntity(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	trade := stored[0]
	assert.Equal(t, "a1", trade.EntityID)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.Equal(t, "0xabc", trade.TxHash)
	assert.Equal(t, testWallet, trade.Counterparty)
	assert.True(t, trade.Amount.Equal(decimal.NewFromInt(10)), "amount %s", trade.Amount)
	assert.True(t, trade.PriceUSD.Equal(decimal.RequireFromString("2.5")), "price %s", trade.PriceUSD)
	// 0.0125 ETH at the $2000 oracle rate.
	assert.True(t, trade.AmountUSD.Equal(decimal.RequireFromString("25")), "amountUSD %s", trade.AmountUSD)

	series, err := f.candleStore.Series(ctx, "a1", domain.TimeframeOneMinute)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.True(t, series[0].Volume.Equal(decimal.NewFromInt(10)))

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.snapshots, 1)
	assert.Equal(t, "$2.50", f.sink.snapshots[0].CurrentPrice)
}

func TestDuplicateEventStoresOneTrade(t *testing.T) {
	f := newManagerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		f.manager.Wait()
	}()

	require.NoError(t, f.manager.Subscribe(ctx, testContract))

	ev := buyEvent("0xabc")
	f.chainClient.EmitTrade(ev)
	f.sink.waitPublications(t, 2)

	// Redelivery of the same tx hash must not create a second trade or a
	// second publication.
	f.chainClient.EmitTrade(ev)
	f.chainClient.EmitTrade(buyEvent("0xdef"))
	f.sink.waitPublications(t, 2)

	count, err := f.trades.CountByEntity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 2, f.sink.tradeCount())

	series, err := f.candleStore.Series(ctx, "a1", domain.TimeframeOneMinute)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.True(t, series[0].Volume.Equal(decimal.NewFromInt(20)), "volume %s", series[0].Volume)
}

func TestDuplicateInLedgerSkippedAcrossRestart(t *testing.T) {
	f := newManagerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		f.manager.Wait()
	}()

	// The ledger already has the hash from a previous process; the fresh
	// manager has an empty seen-set.
	rate := decimal.NewFromInt(2000)
	require.NoError(t, f.trades.Insert(ctx, tradeFromEvent("a1", buyEvent("0xabc"), rate)))

	require.NoError(t, f.manager.Subscribe(ctx, testContract))
	f.chainClient.EmitTrade(buyEvent("0xabc"))
	f.chainClient.EmitTrade(buyEvent("0xdef"))
	f.sink.waitPublications(t, 2)

	count, err := f.trades.CountByEntity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCurveEventRecomputesSnapshot(t *testing.T) {
	f := newManagerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		f.manager.Wait()
	}()

	require.NoError(t, f.manager.Subscribe(ctx, testContract))

	// Warm the cache, then change on-chain state.
	f.computer.Compute(ctx, "a1")
	f.chainClient.States[testContract].DisplayPrice = big.NewInt(3_0000_0000)

	f.chainClient.EmitCurveEvent(chain.CurveEvent{
		Kind:            chain.EventDailySellLimitUpdated,
		ContractAddress: testContract,
		TxHash:          "0xfeed",
		BlockTime:       time.Now().UTC(),
	})
	f.sink.waitPublications(t, 1)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.snapshots, 1)
	assert.Equal(t, "$3.00", f.sink.snapshots[0].CurrentPrice)
}

func TestSubscribeAllIsolatesFailures(t *testing.T) {
	f := newManagerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		f.manager.Wait()
	}()

	// A registry row with a malformed address must not block the others.
	require.NoError(t, f.registry.Register(ctx, "broken", "not-an-address"))

	subscribed, err := f.manager.SubscribeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, subscribed)
	assert.True(t, f.manager.Subscribed(testContract))
}

func TestTradeFromEventSell(t *testing.T) {
	ev := chain.TradeEvent{
		Kind:            chain.EventSharesSold,
		ContractAddress: "0x52908400098527886E0F7030069857D2E4169EE7",
		TxHash:          "0x01",
		Amount:          new(big.Int).Mul(big.NewInt(5), big.NewInt(1_000_000_000_000_000_000)),
		PriceMicroUSD:   big.NewInt(1_0000_0000),
		EthValue:        big.NewInt(2_500_000_000_000_000),
		Counterparty:    "0xDE709F2102306220921060314715629080E2FB77",
		BlockTime:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	trade := tradeFromEvent("a1", ev, decimal.NewFromInt(2000))

	assert.Equal(t, domain.SideSell, trade.Side)
	assert.Equal(t, testContract, trade.ContractAddress)
	assert.Equal(t, testWallet, trade.Counterparty)
	assert.Equal(t, "100000000", trade.Price)
	assert.True(t, trade.Amount.Equal(decimal.NewFromInt(5)), "amount %s", trade.Amount)
	assert.True(t, trade.AmountUSD.Equal(decimal.NewFromInt(5)), "amountUSD %s", trade.AmountUSD)
}
