// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	TradeEventsProcessed  *prometheus.CounterVec
	TradesStored          prometheus.Counter
	DuplicatesSkipped     prometheus.Counter
	CurveEventsProcessed  *prometheus.CounterVec
	EventProcessingErrors *prometheus.CounterVec
	ActiveSubscriptions   prometheus.Gauge

	// Candle metrics
	CandleApplies     prometheus.Counter
	CandleApplyErrors prometheus.Counter

	// Financial metrics
	SnapshotsComputed prometheus.Counter
	SnapshotsDegraded prometheus.Counter
	SnapshotCacheHits prometheus.Counter

	// Backfill metrics
	BackfillDuration *prometheus.HistogramVec
	BackfillTrades   prometheus.Counter

	// Broadcast metrics
	PublicationsSent *prometheus.CounterVec
	ConnectedClients prometheus.Gauge

	// Chain metrics
	ChainCallLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "artist_shares_engine"
	}

	return &Metrics{
		// Ingestion metrics
		TradeEventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trade_events_processed_total",
			Help:      "Total number of trade events processed by side",
		}, []string{"side"}),
		TradesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_stored_total",
			Help:      "Total number of trades stored to the ledger",
		}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of events skipped as duplicate tx hashes",
		}),
		CurveEventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "curve_events_processed_total",
			Help:      "Total number of curve events processed by kind",
		}, []string{"kind"}),
		EventProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_processing_errors_total",
			Help:      "Total number of event processing errors by type",
		}, []string{"event_type", "error_type"}),
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "active_subscriptions",
			Help:      "Number of contracts with a live event subscription",
		}),

		// Candle metrics
		CandleApplies: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "applies_total",
			Help:      "Total number of candle upserts applied",
		}),
		CandleApplyErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "apply_errors_total",
			Help:      "Total number of failed candle upserts",
		}),

		// Financial metrics
		SnapshotsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "financials",
			Name:      "snapshots_computed_total",
			Help:      "Total number of financial snapshots computed",
		}),
		SnapshotsDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "financials",
			Name:      "snapshots_degraded_total",
			Help:      "Total number of computations that fell back to the zero snapshot",
		}),
		SnapshotCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "financials",
			Name:      "snapshot_cache_hits_total",
			Help:      "Total number of snapshot requests served from cache",
		}),

		// Backfill metrics
		BackfillDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "duration_seconds",
			Help:      "Backfill duration per contract in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		BackfillTrades: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "trades_total",
			Help:      "Total number of historical trades replayed by backfill",
		}),

		// Broadcast metrics
		PublicationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "publications_sent_total",
			Help:      "Total number of publications by topic kind",
		}, []string{"kind"}),
		ConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "connected_clients",
			Help:      "Number of connected websocket clients",
		}),

		// Chain metrics
		ChainCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "call_latency_seconds",
			Help:      "Contract call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTradeProcessed increments the trade events processed counter.
func RecordTradeProcessed(side string) {
	DefaultMetrics.TradeEventsProcessed.WithLabelValues(side).Inc()
}

// RecordTradeStored increments the trades stored counter.
func RecordTradeStored() {
	DefaultMetrics.TradesStored.Inc()
}

// RecordDuplicateSkipped increments the duplicate skip counter.
func RecordDuplicateSkipped() {
	DefaultMetrics.DuplicatesSkipped.Inc()
}

// RecordCurveEvent increments the curve events processed counter.
func RecordCurveEvent(kind string) {
	DefaultMetrics.CurveEventsProcessed.WithLabelValues(kind).Inc()
}

// RecordEventError records an event processing error.
func RecordEventError(eventType, errorType string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(eventType, errorType).Inc()
}

// RecordCandleApply records one candle upsert outcome.
func RecordCandleApply(err error) {
	DefaultMetrics.CandleApplies.Inc()
	if err != nil {
		DefaultMetrics.CandleApplyErrors.Inc()
	}
}

// RecordSnapshotComputed records a snapshot computation; degraded marks a
// fall back to the zero snapshot.
func RecordSnapshotComputed(degraded bool) {
	DefaultMetrics.SnapshotsComputed.Inc()
	if degraded {
		DefaultMetrics.SnapshotsDegraded.Inc()
	}
}

// RecordBackfill records one per-contract backfill run.
func RecordBackfill(status string, seconds float64, trades int) {
	DefaultMetrics.BackfillDuration.WithLabelValues(status).Observe(seconds)
	DefaultMetrics.BackfillTrades.Add(float64(trades))
}

// RecordPublication increments the publications counter for a topic kind.
func RecordPublication(kind string) {
	DefaultMetrics.PublicationsSent.WithLabelValues(kind).Inc()
}

// RecordChainCallLatency records contract call latency.
func RecordChainCallLatency(method string, seconds float64) {
	DefaultMetrics.ChainCallLatency.WithLabelValues(method).Observe(seconds)
}
