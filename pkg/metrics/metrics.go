package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting sync-layer metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory).
type MetricsCollector interface {
	// Transport
	RecordRequest(route, method string, status int, duration time.Duration)
	RecordAuthRetry(route string, outcome AuthRetryOutcome)

	// Identity session
	RecordTokenRefresh(success bool, duration time.Duration)

	// Circuit breaker
	RecordCircuitState(name string, state CircuitState)

	// Domain cache
	RecordLoad(collection string, success bool, duration time.Duration)
	RecordMutation(collection, op string, success bool)
	RecordRollback(collection string)

	// Write-behind store
	RecordQueueDepth(store string, depth int)
	RecordWriteDropped(store string)
	RecordAsyncWrite(store string, success bool, duration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the service has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// AuthRetryOutcome is how a 401 interception ended.
type AuthRetryOutcome string

const (
	// AuthReplayed means the refresh succeeded and the request was replayed.
	AuthReplayed AuthRetryOutcome = "replayed"
	// AuthRefreshFailed means the refresh callback failed; the original 401 surfaced.
	AuthRefreshFailed AuthRetryOutcome = "refresh_failed"
	// AuthRejected means the replay also returned 401.
	AuthRejected AuthRetryOutcome = "rejected"
)

// StatusClass buckets an HTTP status for labels. Zero means no response.
func StatusClass(status int) string {
	switch {
	case status == 0:
		return "network_error"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// NoOpCollector is a no-op implementation of MetricsCollector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

func (NoOpCollector) RecordRequest(route, method string, status int, duration time.Duration) {}
func (NoOpCollector) RecordAuthRetry(route string, outcome AuthRetryOutcome)                {}
func (NoOpCollector) RecordTokenRefresh(success bool, duration time.Duration)               {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState)                    {}
func (NoOpCollector) RecordLoad(collection string, success bool, duration time.Duration)    {}
func (NoOpCollector) RecordMutation(collection, op string, success bool)                    {}
func (NoOpCollector) RecordRollback(collection string)                                      {}
func (NoOpCollector) RecordQueueDepth(store string, depth int)                              {}
func (NoOpCollector) RecordWriteDropped(store string)                                       {}
func (NoOpCollector) RecordAsyncWrite(store string, success bool, duration time.Duration)   {}

// MultiCollector forwards every record to each of its collectors.
type MultiCollector []MetricsCollector

var _ MetricsCollector = MultiCollector(nil)

func (m MultiCollector) RecordRequest(route, method string, status int, duration time.Duration) {
	for _, c := range m {
		c.RecordRequest(route, method, status, duration)
	}
}

func (m MultiCollector) RecordAuthRetry(route string, outcome AuthRetryOutcome) {
	for _, c := range m {
		c.RecordAuthRetry(route, outcome)
	}
}

func (m MultiCollector) RecordTokenRefresh(success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordTokenRefresh(success, duration)
	}
}

func (m MultiCollector) RecordCircuitState(name string, state CircuitState) {
	for _, c := range m {
		c.RecordCircuitState(name, state)
	}
}

func (m MultiCollector) RecordLoad(collection string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordLoad(collection, success, duration)
	}
}

func (m MultiCollector) RecordMutation(collection, op string, success bool) {
	for _, c := range m {
		c.RecordMutation(collection, op, success)
	}
}

func (m MultiCollector) RecordRollback(collection string) {
	for _, c := range m {
		c.RecordRollback(collection)
	}
}

func (m MultiCollector) RecordQueueDepth(store string, depth int) {
	for _, c := range m {
		c.RecordQueueDepth(store, depth)
	}
}

func (m MultiCollector) RecordWriteDropped(store string) {
	for _, c := range m {
		c.RecordWriteDropped(store)
	}
}

func (m MultiCollector) RecordAsyncWrite(store string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordAsyncWrite(store, success, duration)
	}
}
