package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/storage"
)

func testTrade(entityID, txHash string, ts time.Time, amountUSD string) *domain.Trade {
	return &domain.Trade{
		EntityID:        entityID,
		ContractAddress: "0x52908400098527886e0f7030069857d2e4169ee7",
		Side:            domain.SideBuy,
		Amount:          decimal.NewFromInt(10),
		Price:           "5000000",
		EthValue:        decimal.RequireFromString("0.004"),
		Counterparty:    "0xde709f2102306220921060314715629080e2fb77",
		TxHash:          txHash,
		AmountUSD:       decimal.RequireFromString(amountUSD),
		PriceUSD:        decimal.RequireFromString("1.5"),
		Timestamp:       ts,
	}
}

func TestTradeStore_InsertAndQuery(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, testTrade("a1", "0xaaa", base, "15")))
	require.NoError(t, store.Insert(ctx, testTrade("a1", "0xbbb", base.Add(time.Minute), "30")))

	trades, err := store.AllByEntity(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "0xaaa", trades[0].TxHash)
	assert.Equal(t, "0xbbb", trades[1].TxHash)
	assert.True(t, trades[0].Amount.Equal(decimal.NewFromInt(10)), "amount = %s", trades[0].Amount)
	assert.True(t, trades[0].Timestamp.Equal(base))

	count, err := store.CountByEntity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	latest, err := store.LatestByEntity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "0xbbb", latest.TxHash)
}

func TestTradeStore_DuplicateTxHash(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, testTrade("a1", "0xabc", ts, "15")))

	err := store.Insert(ctx, testTrade("a1", "0xabc", ts.Add(time.Second), "20"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	exists, err := store.ExistsByTxHash(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := store.CountByEntity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTradeStore_SinceAndSums(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, testTrade("a1", "0x1", base, "10")))
	require.NoError(t, store.Insert(ctx, testTrade("a1", "0x2", base.Add(10*time.Hour), "20.50")))
	require.NoError(t, store.Insert(ctx, testTrade("a2", "0x3", base.Add(10*time.Hour), "40")))

	trades, err := store.SinceByEntity(ctx, "a1", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "0x2", trades[0].TxHash)

	sum, err := store.SumUSDSince(ctx, "a1", base)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("30.50")), "sum = %s", sum)

	// Counterparty sum crosses entities and ignores address case.
	sum, err = store.SumUSDByCounterpartySince(ctx, "0xDE709F2102306220921060314715629080E2FB77", base)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("70.50")), "sum = %s", sum)

	// No trades in window: sum is zero, not an error.
	sum, err = store.SumUSDSince(ctx, "a1", base.Add(48*time.Hour))
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}
