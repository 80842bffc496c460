package writer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"finance-sync/pkg/kv"
	"finance-sync/pkg/logging"
	"finance-sync/pkg/metrics"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AsyncStore is a write-behind kv.Store. Set and Delete return once the
// operation is queued; workers apply them to the backing store. Each key
// hashes to one worker, so operations on the same key apply in order.
// Reads see queued writes before they reach the backend.
type AsyncStore struct {
	store      kv.Store
	shards     []chan writeOp
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	config     AsyncStoreConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
	storeName  string

	// pending holds the newest queued op per key; applied holds the newest
	// applied seq for keys whose pending op is newer still
	mu      sync.RWMutex
	pending map[string]writeOp
	applied map[string]uint64
	seq     uint64

	// Statistics (accessed atomically)
	inflight      int64
	droppedWrites int64
	totalWrites   int64
	failedWrites  int64

	errMu    sync.Mutex
	drainErr error

	metricsTicker *time.Ticker
	metricsStop   chan struct{}
}

type opKind int

const (
	opSet opKind = iota
	opDelete
)

type writeOp struct {
	kind  opKind
	key   string
	value string
	ttl   time.Duration
	seq   uint64
}

// AsyncStoreConfig configures the write-behind store.
type AsyncStoreConfig struct {
	// QueueSize is the bounded queue size per worker (default: 64)
	QueueSize int `yaml:"queue_size"`

	// Workers is the number of shards/workers (default: 2)
	Workers int `yaml:"workers"`

	// MaxWaitTime is the max time to wait if a queue is full (default: 10ms)
	MaxWaitTime time.Duration `yaml:"max_wait_time"`

	// WriteTimeout bounds each backend call (default: 5s)
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

var _ kv.Store = (*AsyncStore)(nil)

// NewAsyncStore wraps store. Close must be called to drain and stop workers.
func NewAsyncStore(store kv.Store, config AsyncStoreConfig) *AsyncStore {
	return NewAsyncStoreWithMetrics(store, config, metrics.NoOpCollector{})
}

// NewAsyncStoreWithMetrics wraps store and reports queue metrics to collector.
func NewAsyncStoreWithMetrics(store kv.Store, config AsyncStoreConfig, collector metrics.MetricsCollector) *AsyncStore {
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime <= 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &AsyncStore{
		store:         store,
		shards:        make([]chan writeOp, config.Workers),
		ctx:           ctx,
		cancelFunc:    cancel,
		config:        config,
		metrics:       collector,
		logger:        logging.Global().Named("writer").Named(store.Name()),
		storeName:     store.Name(),
		pending:       make(map[string]writeOp),
		applied:       make(map[string]uint64),
		metricsTicker: time.NewTicker(5 * time.Second),
		metricsStop:   make(chan struct{}),
	}

	for i := range w.shards {
		w.shards[i] = make(chan writeOp, config.QueueSize)
		w.wg.Add(1)
		go w.worker(w.shards[i])
	}

	go w.reportMetrics()

	return w
}

// Name returns the wrapped store's name.
func (w *AsyncStore) Name() string {
	return "async(" + w.storeName + ")"
}

// Get returns the newest queued value for key, or reads through.
func (w *AsyncStore) Get(ctx context.Context, key string) (string, error) {
	w.mu.RLock()
	op, ok := w.pending[key]
	w.mu.RUnlock()

	if ok {
		if op.kind == opDelete {
			return "", kv.ErrKeyNotFound
		}
		return op.value, nil
	}
	return w.store.Get(ctx, key)
}

// Set queues a write. ttl is applied when the backend write happens.
func (w *AsyncStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	return w.enqueue(ctx, writeOp{kind: opSet, key: key, value: value, ttl: ttl})
}

// Delete queues a delete.
func (w *AsyncStore) Delete(ctx context.Context, key string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	return w.enqueue(ctx, writeOp{kind: opDelete, key: key})
}

// Keys merges queued writes with the backend's keys when it can list them.
func (w *AsyncStore) Keys(ctx context.Context) ([]string, error) {
	set := make(map[string]bool)
	if lister, ok := w.store.(kv.Lister); ok {
		keys, err := lister.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			set[k] = true
		}
	}

	w.mu.RLock()
	for k, op := range w.pending {
		set[k] = op.kind == opSet
	}
	w.mu.RUnlock()

	keys := make([]string, 0, len(set))
	for k, live := range set {
		if live {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (w *AsyncStore) enqueue(ctx context.Context, op writeOp) error {
	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	w.mu.Lock()
	w.seq++
	op.seq = w.seq
	prev, hadPrev := w.pending[op.key]
	w.pending[op.key] = op
	w.mu.Unlock()

	atomic.AddInt64(&w.inflight, 1)
	shard := w.shards[xxhash.Sum64String(op.key)%uint64(len(w.shards))]

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	var err error
	select {
	case shard <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.droppedWrites, 1)
		w.metrics.RecordWriteDropped(w.storeName)
		w.logger.Warn("write dropped, queue full", zap.String("key", op.key))
		err = ErrQueueFull
	case <-ctx.Done():
		err = ctx.Err()
	case <-w.ctx.Done():
		err = ErrWriterClosed
	}

	// Not queued: restore the previous op only while it is still outstanding.
	atomic.AddInt64(&w.inflight, -1)
	w.mu.Lock()
	if cur, ok := w.pending[op.key]; ok && cur.seq == op.seq {
		if hadPrev && w.applied[op.key] < prev.seq {
			w.pending[op.key] = prev
		} else {
			delete(w.pending, op.key)
			delete(w.applied, op.key)
		}
	}
	w.mu.Unlock()
	return err
}

func (w *AsyncStore) worker(queue <-chan writeOp) {
	defer w.wg.Done()

	for {
		select {
		case op := <-queue:
			w.apply(op)
		case <-w.ctx.Done():
			for {
				select {
				case op := <-queue:
					if err := w.apply(op); err != nil {
						w.errMu.Lock()
						w.drainErr = multierr.Append(w.drainErr, err)
						w.errMu.Unlock()
					}
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncStore) apply(op writeOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	var err error
	switch op.kind {
	case opSet:
		err = w.store.Set(ctx, op.key, op.value, op.ttl)
	case opDelete:
		err = w.store.Delete(ctx, op.key)
	}
	w.metrics.RecordAsyncWrite(w.storeName, err == nil, time.Since(start))

	if err != nil {
		atomic.AddInt64(&w.failedWrites, 1)
		w.logger.Error("write-behind failed",
			zap.String("key", op.key),
			zap.String("error_type", kv.ClassifyError(err)),
			zap.Error(err),
		)
	}

	// Drop the pending entry unless a newer op replaced it.
	w.mu.Lock()
	if cur, ok := w.pending[op.key]; ok {
		if cur.seq == op.seq {
			delete(w.pending, op.key)
			delete(w.applied, op.key)
		} else if op.seq > w.applied[op.key] {
			w.applied[op.key] = op.seq
		}
	}
	w.mu.Unlock()
	atomic.AddInt64(&w.inflight, -1)

	return err
}

// Flush waits until every queued operation has been applied.
func (w *AsyncStore) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if atomic.LoadInt64(&w.inflight) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrFlushTimeout
		case <-ticker.C:
		}
	}
}

// Close stops accepting writes, drains the queues and closes the backend.
// Drain failures and the backend's Close error are combined.
func (w *AsyncStore) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.metricsStop)
		w.metricsTicker.Stop()

		w.cancelFunc()
		w.wg.Wait()

		w.errMu.Lock()
		defer w.errMu.Unlock()

		// Ops that raced the shutdown signal.
		for _, shard := range w.shards {
			for len(shard) > 0 {
				w.drainErr = multierr.Append(w.drainErr, w.apply(<-shard))
			}
		}

		err = multierr.Append(w.drainErr, w.store.Close())
	})
	return err
}

func (w *AsyncStore) queueDepth() int {
	depth := 0
	for _, shard := range w.shards {
		depth += len(shard)
	}
	return depth
}

func (w *AsyncStore) reportMetrics() {
	for {
		select {
		case <-w.metricsTicker.C:
			w.metrics.RecordQueueDepth(w.storeName, w.queueDepth())
		case <-w.metricsStop:
			return
		}
	}
}

// Stats returns current statistics about the write-behind store.
func (w *AsyncStore) Stats() AsyncStoreStats {
	return AsyncStoreStats{
		QueueDepth:    w.queueDepth(),
		Pending:       atomic.LoadInt64(&w.inflight),
		DroppedWrites: atomic.LoadInt64(&w.droppedWrites),
		TotalWrites:   atomic.LoadInt64(&w.totalWrites),
		FailedWrites:  atomic.LoadInt64(&w.failedWrites),
	}
}
