package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	fetchAttempts   *prometheus.CounterVec
	fetchLatency    *prometheus.HistogramVec
	cacheReads      *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
	queueDrops      prometheus.Counter
	activeSessions  prometheus.Gauge
	samplesStored   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	chainExhausted  *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_fetch_attempts_total",
				Help: "Total provider fetch attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),
		fetchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregator_fetch_duration_seconds",
				Help:    "Duration of provider fetch attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		cacheReads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_cache_reads_total",
				Help: "Cache reads by result (fresh, stale, expired, miss)",
			},
			[]string{"result"},
		),
		broadcasts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_broadcast_messages_total",
				Help: "Messages fanned out to WebSocket sessions",
			},
			[]string{"group", "type"},
		),
		queueDrops: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aggregator_session_queue_drops_total",
				Help: "Messages shed from full per-session outbound queues",
			},
		),
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "aggregator_active_sessions",
				Help: "Currently open WebSocket sessions",
			},
		),
		samplesStored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_telemetry_samples_total",
				Help: "Telemetry samples stored per provider",
			},
			[]string{"provider"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aggregator_last_price",
				Help: "Last fetched price for a symbol",
			},
			[]string{"symbol"},
		),
		chainExhausted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_chain_exhausted_total",
				Help: "Fallback chains exhausted without any provider succeeding",
			},
			[]string{"metric"},
		),
	}
}

// RecordFetchAttempt records one provider fetch attempt.
func (r *Recorder) RecordFetchAttempt(provider, outcome string, seconds float64) {
	r.fetchAttempts.WithLabelValues(provider, outcome).Inc()
	r.fetchLatency.WithLabelValues(provider).Observe(seconds)
}

// RecordCacheRead records the result class of a cache read.
func (r *Recorder) RecordCacheRead(result string) {
	r.cacheReads.WithLabelValues(result).Inc()
}

// RecordBroadcast records messages delivered to sessions in a group.
func (r *Recorder) RecordBroadcast(group, msgType string, delivered int) {
	r.broadcasts.WithLabelValues(group, msgType).Add(float64(delivered))
}

// RecordQueueDrop records a shed message from a full session queue.
func (r *Recorder) RecordQueueDrop() {
	r.queueDrops.Inc()
}

// SetActiveSessions sets the live session gauge.
func (r *Recorder) SetActiveSessions(n int) {
	r.activeSessions.Set(float64(n))
}

// RecordSampleStored counts a stored telemetry sample.
func (r *Recorder) RecordSampleStored(provider string) {
	r.samplesStored.WithLabelValues(provider).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordChainExhausted counts a fully failed fallback chain.
func (r *Recorder) RecordChainExhausted(metric string) {
	r.chainExhausted.WithLabelValues(metric).Inc()
}
