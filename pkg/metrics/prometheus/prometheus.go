package prometheus

import (
	"time"

	"finance-sync/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements MetricsCollector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Transport
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	authRetries    *prometheus.CounterVec

	// Identity
	tokenRefreshes      *prometheus.CounterVec
	tokenRefreshLatency prometheus.Histogram

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Domain cache
	loads       *prometheus.CounterVec
	loadLatency *prometheus.HistogramVec
	mutations   *prometheus.CounterVec
	rollbacks   *prometheus.CounterVec

	// Write-behind store
	queueDepth    *prometheus.GaugeVec
	droppedWrites *prometheus.CounterVec
	asyncWrites   *prometheus.CounterVec
	asyncLatency  *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	buckets := prometheus.ExponentialBuckets(0.001, 2, 14) // 1ms to ~8s

	return &PrometheusCollector{
		namespace: namespace,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests per route, method and status class",
			},
			[]string{"route", "method", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request latency",
				Buckets:   buckets,
			},
			[]string{"route", "method"},
		),
		authRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_retries_total",
				Help:      "Total number of intercepted 401 responses by outcome",
			},
			[]string{"route", "outcome"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of forced ID token refreshes",
			},
			[]string{"status"},
		),
		tokenRefreshLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_refresh_duration_seconds",
				Help:      "Forced ID token refresh latency",
				Buckets:   buckets,
			},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_loads_total",
				Help:      "Total number of collection loads",
			},
			[]string{"collection", "status"},
		),
		loadLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collection_load_duration_seconds",
				Help:      "Collection load latency",
				Buckets:   buckets,
			},
			[]string{"collection"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_mutations_total",
				Help:      "Total number of collection mutations",
			},
			[]string{"collection", "op", "status"},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_rollbacks_total",
				Help:      "Total number of optimistic updates rolled back",
			},
			[]string{"collection"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current write-behind queue depth per store",
			},
			[]string{"store"},
		),
		droppedWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_writes_total",
				Help:      "Total number of dropped write-behind operations per store",
			},
			[]string{"store"},
		),
		asyncWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "async_writes_total",
				Help:      "Total number of write-behind operations per store",
			},
			[]string{"store", "status"},
		),
		asyncLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "async_write_duration_seconds",
				Help:      "Write-behind operation latency",
				Buckets:   buckets,
			},
			[]string{"store"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		pc.requests,
		pc.requestLatency,
		pc.authRetries,
		pc.tokenRefreshes,
		pc.tokenRefreshLatency,
		pc.circuitOpens,
		pc.circuitState,
		pc.loads,
		pc.loadLatency,
		pc.mutations,
		pc.rollbacks,
		pc.queueDepth,
		pc.droppedWrites,
		pc.asyncWrites,
		pc.asyncLatency,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordRequest records a completed API request. Status 0 means no response.
func (pc *PrometheusCollector) RecordRequest(route, method string, status int, duration time.Duration) {
	pc.requests.WithLabelValues(route, method, metrics.StatusClass(status)).Inc()
	pc.requestLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordAuthRetry records a 401 interception.
func (pc *PrometheusCollector) RecordAuthRetry(route string, outcome metrics.AuthRetryOutcome) {
	pc.authRetries.WithLabelValues(route, string(outcome)).Inc()
}

// RecordTokenRefresh records a forced token refresh.
func (pc *PrometheusCollector) RecordTokenRefresh(success bool, duration time.Duration) {
	pc.tokenRefreshes.WithLabelValues(statusLabel(success)).Inc()
	pc.tokenRefreshLatency.Observe(duration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}

// RecordLoad records a collection load.
func (pc *PrometheusCollector) RecordLoad(collection string, success bool, duration time.Duration) {
	pc.loads.WithLabelValues(collection, statusLabel(success)).Inc()
	pc.loadLatency.WithLabelValues(collection).Observe(duration.Seconds())
}

// RecordMutation records an add, update or delete against a collection.
func (pc *PrometheusCollector) RecordMutation(collection, op string, success bool) {
	pc.mutations.WithLabelValues(collection, op, statusLabel(success)).Inc()
}

// RecordRollback records an optimistic update that was reverted.
func (pc *PrometheusCollector) RecordRollback(collection string) {
	pc.rollbacks.WithLabelValues(collection).Inc()
}

// RecordQueueDepth records the current write-behind queue depth.
func (pc *PrometheusCollector) RecordQueueDepth(store string, depth int) {
	pc.queueDepth.WithLabelValues(store).Set(float64(depth))
}

// RecordWriteDropped records a dropped write-behind operation.
func (pc *PrometheusCollector) RecordWriteDropped(store string) {
	pc.droppedWrites.WithLabelValues(store).Inc()
}

// RecordAsyncWrite records a write-behind operation.
func (pc *PrometheusCollector) RecordAsyncWrite(store string, success bool, duration time.Duration) {
	pc.asyncWrites.WithLabelValues(store, statusLabel(success)).Inc()
	pc.asyncLatency.WithLabelValues(store).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
