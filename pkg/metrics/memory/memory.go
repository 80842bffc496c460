package memory

import (
	"sync"
	"time"

	"finance-sync/pkg/metrics"
)

// MemoryCollector implements MetricsCollector in memory. It backs tests and
// the inspection server's JSON metrics endpoint.
type MemoryCollector struct {
	mu sync.RWMutex

	routes      map[string]*RouteMetrics
	collections map[string]*CollectionMetrics
	stores      map[string]*StoreMetrics
	circuits    map[string]*CircuitMetrics

	tokenRefreshes      int64
	tokenRefreshFailure int64
}

// RouteMetrics holds transport metrics for one route.
type RouteMetrics struct {
	Requests       int64            `json:"requests"`
	ByStatusClass  map[string]int64 `json:"by_status_class"`
	AuthRetries    map[string]int64 `json:"auth_retries"`
	TotalLatency   time.Duration    `json:"total_latency"`
	LastStatusCode int              `json:"last_status_code"`
}

// CollectionMetrics holds domain cache metrics for one collection.
type CollectionMetrics struct {
	Loads        int64            `json:"loads"`
	LoadFailures int64            `json:"load_failures"`
	Mutations    map[string]int64 `json:"mutations"`
	Failures     map[string]int64 `json:"failures"`
	Rollbacks    int64            `json:"rollbacks"`
}

// StoreMetrics holds write-behind metrics for one store.
type StoreMetrics struct {
	QueueDepth    int   `json:"queue_depth"`
	DroppedWrites int64 `json:"dropped_writes"`
	AsyncWrites   int64 `json:"async_writes"`
	AsyncErrors   int64 `json:"async_errors"`
}

// CircuitMetrics holds circuit breaker metrics for one breaker.
type CircuitMetrics struct {
	State metrics.CircuitState `json:"state"`
	Opens int64                `json:"opens"`
}

var _ metrics.MetricsCollector = (*MemoryCollector)(nil)

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		routes:      make(map[string]*RouteMetrics),
		collections: make(map[string]*CollectionMetrics),
		stores:      make(map[string]*StoreMetrics),
		circuits:    make(map[string]*CircuitMetrics),
	}
}

// route, collection and store must be called with mu held.
func (mc *MemoryCollector) route(name string) *RouteMetrics {
	rm, ok := mc.routes[name]
	if !ok {
		rm = &RouteMetrics{
			ByStatusClass: make(map[string]int64),
			AuthRetries:   make(map[string]int64),
		}
		mc.routes[name] = rm
	}
	return rm
}

func (mc *MemoryCollector) collection(name string) *CollectionMetrics {
	cm, ok := mc.collections[name]
	if !ok {
		cm = &CollectionMetrics{
			Mutations: make(map[string]int64),
			Failures:  make(map[string]int64),
		}
		mc.collections[name] = cm
	}
	return cm
}

func (mc *MemoryCollector) store(name string) *StoreMetrics {
	sm, ok := mc.stores[name]
	if !ok {
		sm = &StoreMetrics{}
		mc.stores[name] = sm
	}
	return sm
}

// RecordRequest records a completed API request.
func (mc *MemoryCollector) RecordRequest(route, method string, status int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	rm := mc.route(route)
	rm.Requests++
	rm.ByStatusClass[metrics.StatusClass(status)]++
	rm.TotalLatency += duration
	rm.LastStatusCode = status
}

// RecordAuthRetry records a 401 interception.
func (mc *MemoryCollector) RecordAuthRetry(route string, outcome metrics.AuthRetryOutcome) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.route(route).AuthRetries[string(outcome)]++
}

// RecordTokenRefresh records a forced token refresh.
func (mc *MemoryCollector) RecordTokenRefresh(success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.tokenRefreshes++
	if !success {
		mc.tokenRefreshFailure++
	}
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cm, ok := mc.circuits[name]
	if !ok {
		cm = &CircuitMetrics{}
		mc.circuits[name] = cm
	}

	// Count transitions to open
	if cm.State != metrics.CircuitOpen && state == metrics.CircuitOpen {
		cm.Opens++
	}
	cm.State = state
}

// RecordLoad records a collection load.
func (mc *MemoryCollector) RecordLoad(collection string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cm := mc.collection(collection)
	cm.Loads++
	if !success {
		cm.LoadFailures++
	}
}

// RecordMutation records an add, update or delete against a collection.
func (mc *MemoryCollector) RecordMutation(collection, op string, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cm := mc.collection(collection)
	cm.Mutations[op]++
	if !success {
		cm.Failures[op]++
	}
}

// RecordRollback records an optimistic update that was reverted.
func (mc *MemoryCollector) RecordRollback(collection string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.collection(collection).Rollbacks++
}

// RecordQueueDepth records the current write-behind queue depth.
func (mc *MemoryCollector) RecordQueueDepth(store string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.store(store).QueueDepth = depth
}

// RecordWriteDropped records a dropped write-behind operation.
func (mc *MemoryCollector) RecordWriteDropped(store string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.store(store).DroppedWrites++
}

// RecordAsyncWrite records a write-behind operation.
func (mc *MemoryCollector) RecordAsyncWrite(store string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	sm := mc.store(store)
	sm.AsyncWrites++
	if !success {
		sm.AsyncErrors++
	}
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Routes              map[string]RouteMetrics      `json:"routes"`
	Collections         map[string]CollectionMetrics `json:"collections"`
	Stores              map[string]StoreMetrics      `json:"stores"`
	Circuits            map[string]CircuitMetrics    `json:"circuits"`
	TokenRefreshes      int64                        `json:"token_refreshes"`
	TokenRefreshFailure int64                        `json:"token_refresh_failures"`
}

// Snapshot returns a deep copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := Snapshot{
		Routes:              make(map[string]RouteMetrics, len(mc.routes)),
		Collections:         make(map[string]CollectionMetrics, len(mc.collections)),
		Stores:              make(map[string]StoreMetrics, len(mc.stores)),
		Circuits:            make(map[string]CircuitMetrics, len(mc.circuits)),
		TokenRefreshes:      mc.tokenRefreshes,
		TokenRefreshFailure: mc.tokenRefreshFailure,
	}

	for name, rm := range mc.routes {
		cp := *rm
		cp.ByStatusClass = copyCounts(rm.ByStatusClass)
		cp.AuthRetries = copyCounts(rm.AuthRetries)
		snapshot.Routes[name] = cp
	}
	for name, cm := range mc.collections {
		cp := *cm
		cp.Mutations = copyCounts(cm.Mutations)
		cp.Failures = copyCounts(cm.Failures)
		snapshot.Collections[name] = cp
	}
	for name, sm := range mc.stores {
		snapshot.Stores[name] = *sm
	}
	for name, cm := range mc.circuits {
		snapshot.Circuits[name] = *cm
	}

	return snapshot
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.routes = make(map[string]*RouteMetrics)
	mc.collections = make(map[string]*CollectionMetrics)
	mc.stores = make(map[string]*StoreMetrics)
	mc.circuits = make(map[string]*CircuitMetrics)
	mc.tokenRefreshes = 0
	mc.tokenRefreshFailure = 0
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
