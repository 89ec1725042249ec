package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"artist-shares-engine/internal/domain"
)

func TestCandleStore_CreateAndMerge(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	period := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	key := domain.CandleKey{EntityID: "a1", Timeframe: domain.TimeframeOneMinute, PeriodStart: period}

	if err := store.Apply(ctx, key, decimal.RequireFromString("1.00"), decimal.NewFromInt(10), domain.SideBuy); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := store.Apply(ctx, key, decimal.RequireFromString("1.50"), decimal.NewFromInt(5), domain.SideBuy); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := store.Apply(ctx, key, decimal.RequireFromString("0.90"), decimal.NewFromInt(20), domain.SideSell); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	series, err := store.Series(ctx, "a1", domain.TimeframeOneMinute)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("Expected 1 candle, got %d", len(series))
	}

	c := series[0]
	if !c.Open.Equal(decimal.RequireFromString("1.00")) {
		t.Errorf("open = %s, want 1.00", c.Open)
	}
	if !c.High.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("high = %s, want 1.50", c.High)
	}
	if !c.Low.Equal(decimal.RequireFromString("0.90")) {
		t.Errorf("low = %s, want 0.90", c.Low)
	}
	if !c.Close.Equal(decimal.RequireFromString("0.90")) {
		t.Errorf("close = %s, want 0.90", c.Close)
	}
	if !c.Volume.Equal(decimal.NewFromInt(35)) {
		t.Errorf("volume = %s, want 35", c.Volume)
	}
	if c.LastSide != domain.SideSell {
		t.Errorf("lastSide = %s, want SELL", c.LastSide)
	}
}

func TestCandleStore_SeriesOrderAndIsolation(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	p1 := time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)
	p0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(1)
	one := decimal.NewFromInt(1)

	store.Apply(ctx, domain.CandleKey{EntityID: "a1", Timeframe: domain.TimeframeOneMinute, PeriodStart: p1}, price, one, domain.SideBuy)
	store.Apply(ctx, domain.CandleKey{EntityID: "a1", Timeframe: domain.TimeframeOneMinute, PeriodStart: p0}, price, one, domain.SideBuy)
	store.Apply(ctx, domain.CandleKey{EntityID: "a1", Timeframe: domain.TimeframeFiveMinutes, PeriodStart: p0}, price, one, domain.SideBuy)
	store.Apply(ctx, domain.CandleKey{EntityID: "a2", Timeframe: domain.TimeframeOneMinute, PeriodStart: p0}, price, one, domain.SideBuy)

	series, err := store.Series(ctx, "a1", domain.TimeframeOneMinute)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(series))
	}
	if !series[0].PeriodStart.Equal(p0) {
		t.Errorf("Series not ordered by period start")
	}
}

func TestCandleStore_HasAny(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	ok, err := store.HasAny(ctx, "a1", domain.TimeframeOneMinute)
	if err != nil || ok {
		t.Fatalf("Expected no candles, got ok=%v err=%v", ok, err)
	}

	period := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Apply(ctx, domain.CandleKey{EntityID: "a1", Timeframe: domain.TimeframeOneMinute, PeriodStart: period},
		decimal.NewFromInt(1), decimal.NewFromInt(1), domain.SideBuy)

	ok, err = store.HasAny(ctx, "a1", domain.TimeframeOneMinute)
	if err != nil || !ok {
		t.Fatalf("Expected candles present, got ok=%v err=%v", ok, err)
	}

	// Other timeframe still empty.
	ok, _ = store.HasAny(ctx, "a1", domain.TimeframeOneDay)
	if ok {
		t.Errorf("Expected no 1D candles")
	}
}

func TestCandleStore_ConcurrentApplySameKey(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	period := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	key := domain.CandleKey{EntityID: "a1", Timeframe: domain.TimeframeOneMinute, PeriodStart: period}

	const workers = 8
	const appliesPerWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < appliesPerWorker; i++ {
				store.Apply(ctx, key, decimal.NewFromInt(1), decimal.NewFromInt(1), domain.SideBuy)
			}
		}()
	}
	wg.Wait()

	series, _ := store.Series(ctx, "a1", domain.TimeframeOneMinute)
	if len(series) != 1 {
		t.Fatalf("Expected 1 candle, got %d", len(series))
	}
	if !series[0].Volume.Equal(decimal.NewFromInt(workers * appliesPerWorker)) {
		t.Errorf("Lost updates: volume = %s, want %d", series[0].Volume, workers*appliesPerWorker)
	}
}
