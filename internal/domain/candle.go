package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is a fixed candle bucket width. String values match the
// chart API ("1m", "4H", "1W", ...).
type Timeframe string

const (
	TimeframeOneMinute      Timeframe = "1m"
	TimeframeFiveMinutes    Timeframe = "5m"
	TimeframeFifteenMinutes Timeframe = "15m"
	TimeframeThirtyMinutes  Timeframe = "30m"
	TimeframeOneHour        Timeframe = "1H"
	TimeframeFourHours      Timeframe = "4H"
	TimeframeOneDay         Timeframe = "1D"
	TimeframeOneWeek        Timeframe = "1W"
)

// Timeframes lists every supported timeframe. One independent candle
// series is maintained per entry, all derived from the same trade ledger.
var Timeframes = []Timeframe{
	TimeframeOneMinute,
	TimeframeFiveMinutes,
	TimeframeFifteenMinutes,
	TimeframeThirtyMinutes,
	TimeframeOneHour,
	TimeframeFourHours,
	TimeframeOneDay,
	TimeframeOneWeek,
}

// IntervalSeconds returns the bucket width in seconds.
func (tf Timeframe) IntervalSeconds() int64 {
	switch tf {
	case TimeframeOneMinute:
		return 60
	case TimeframeFiveMinutes:
		return 300
	case TimeframeFifteenMinutes:
		return 900
	case TimeframeThirtyMinutes:
		return 1800
	case TimeframeOneHour:
		return 3600
	case TimeframeFourHours:
		return 14400
	case TimeframeOneDay:
		return 86400
	case TimeframeOneWeek:
		return 604800
	}
	return 0
}

// PeriodStart floors t to the start of the timeframe bucket containing it,
// in UTC: floor(epochSeconds / interval) * interval.
func (tf Timeframe) PeriodStart(t time.Time) time.Time {
	interval := tf.IntervalSeconds()
	epoch := t.UTC().Unix()
	return time.Unix((epoch/interval)*interval, 0).UTC()
}

// ParseTimeframe resolves a timeframe from its string value,
// case-insensitively ("1h" and "1H" are the same timeframe).
func ParseTimeframe(value string) (Timeframe, error) {
	for _, tf := range Timeframes {
		if strings.EqualFold(string(tf), value) {
			return tf, nil
		}
	}
	return "", fmt.Errorf("unknown timeframe value: %q", value)
}

// CandleKey identifies one candle: (entity, timeframe, period start).
type CandleKey struct {
	EntityID    string
	Timeframe   Timeframe
	PeriodStart time.Time
}

// Candle is a mutable OHLCV aggregate keyed by (entity, timeframe, period
// start). Volume only grows within a period; candles are never deleted
// outside a full dev reset.
type Candle struct {
	ID          int64           // BIGSERIAL primary key
	EntityID    string          // artist identifier
	Timeframe   Timeframe       // bucket width
	PeriodStart time.Time       // bucket start, UTC
	Open        decimal.Decimal // USD price of first trade in period
	High        decimal.Decimal // max USD price in period
	Low         decimal.Decimal // min USD price in period
	Close       decimal.Decimal // USD price of latest trade in period
	Volume      decimal.Decimal // sum of token amounts in period
	LastSide    Side            // side of latest trade in period
}
