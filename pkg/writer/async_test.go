package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"finance-sync/pkg/kv"
	"finance-sync/pkg/kv/memory"
	"finance-sync/pkg/kv/mock"
	metricsmem "finance-sync/pkg/metrics/memory"
)

func flush(t *testing.T, w *AsyncStore) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func TestNewAsyncStore_Defaults(t *testing.T) {
	w := NewAsyncStore(mock.NewMockStore("m"), AsyncStoreConfig{})
	defer w.Close()

	if len(w.shards) != 2 {
		t.Errorf("Expected default 2 workers, got %d", len(w.shards))
	}
	if cap(w.shards[0]) != 64 {
		t.Errorf("Expected default queue size 64, got %d", cap(w.shards[0]))
	}
	if w.config.MaxWaitTime != 10*time.Millisecond {
		t.Errorf("Expected default MaxWaitTime 10ms, got %v", w.config.MaxWaitTime)
	}
	if w.Name() != "async(m)" {
		t.Errorf("Expected name 'async(m)', got '%s'", w.Name())
	}
}

func TestAsyncStore_WriteReachesBackend(t *testing.T) {
	backend := memory.NewMemoryStore(memory.MemoryStoreConfig{})
	w := NewAsyncStore(backend, AsyncStoreConfig{Workers: 1})
	defer w.Close()

	ctx := context.Background()
	if err := w.Set(ctx, "userSettings_currency", "SGD", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	flush(t, w)

	val, err := backend.Get(ctx, "userSettings_currency")
	if err != nil || val != "SGD" {
		t.Errorf("Expected SGD in backend, got %q (%v)", val, err)
	}
	if stats := w.Stats(); stats.TotalWrites != 1 || stats.Pending != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestAsyncStore_ReadYourWrites(t *testing.T) {
	release := make(chan struct{})
	backend := &mock.MockStore{
		SetFunc: func(ctx context.Context, key, value string, ttl time.Duration) error {
			<-release
			return nil
		},
		GetFunc: func(ctx context.Context, key string) (string, error) {
			return "", kv.ErrKeyNotFound
		},
	}
	w := NewAsyncStore(backend, AsyncStoreConfig{Workers: 1})

	ctx := context.Background()
	w.Set(ctx, "userSettings_theme", "light", 0)

	val, err := w.Get(ctx, "userSettings_theme")
	if err != nil || val != "light" {
		t.Errorf("Expected queued value 'light', got %q (%v)", val, err)
	}

	w.Delete(ctx, "userSettings_theme")
	if _, err := w.Get(ctx, "userSettings_theme"); !kv.IsNotFound(err) {
		t.Errorf("Expected queued delete to hide value, got %v", err)
	}

	close(release)
	w.Close()
}

func TestAsyncStore_PerKeyOrdering(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]string)
	backend := &mock.MockStore{
		SetFunc: func(ctx context.Context, key, value string, ttl time.Duration) error {
			mu.Lock()
			seen[key] = append(seen[key], value)
			mu.Unlock()
			return nil
		},
	}

	w := NewAsyncStore(backend, AsyncStoreConfig{Workers: 4, QueueSize: 256})
	defer w.Close()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b", "c"} {
			if err := w.Set(ctx, key, fmt.Sprintf("%03d", i), 0); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
		}
	}
	flush(t, w)

	mu.Lock()
	defer mu.Unlock()
	for key, values := range seen {
		for i := 1; i < len(values); i++ {
			if values[i] < values[i-1] {
				t.Fatalf("Key %s applied out of order: %v", key, values)
			}
		}
	}
}

func TestAsyncStore_QueueFullDrops(t *testing.T) {
	block := make(chan struct{})
	backend := &mock.MockStore{
		SetFunc: func(ctx context.Context, key, value string, ttl time.Duration) error {
			<-block
			return nil
		},
	}

	collector := metricsmem.NewMemoryCollector()
	w := NewAsyncStoreWithMetrics(backend, AsyncStoreConfig{
		Workers:     1,
		QueueSize:   1,
		MaxWaitTime: time.Millisecond,
	}, collector)

	ctx := context.Background()
	var dropped int
	for i := 0; i < 5; i++ {
		if err := w.Set(ctx, fmt.Sprintf("k%d", i), "v", 0); errors.Is(err, ErrQueueFull) {
			dropped++
		}
	}

	if dropped == 0 {
		t.Error("Expected some writes to be dropped")
	}
	if w.Stats().DroppedWrites != int64(dropped) {
		t.Errorf("Expected %d dropped in stats, got %d", dropped, w.Stats().DroppedWrites)
	}
	if collector.Snapshot().Stores["mock"].DroppedWrites != int64(dropped) {
		t.Error("Expected drops to be reported to metrics")
	}

	close(block)
	w.Close()
}

func TestAsyncStore_DroppedWriteRestoresPending(t *testing.T) {
	block := make(chan struct{})
	backend := &mock.MockStore{
		SetFunc: func(ctx context.Context, key, value string, ttl time.Duration) error {
			<-block
			return nil
		},
	}
	w := NewAsyncStore(backend, AsyncStoreConfig{Workers: 1, QueueSize: 1, MaxWaitTime: time.Millisecond})

	ctx := context.Background()
	w.Set(ctx, "busy", "1", 0) // picked up by the worker, blocks
	time.Sleep(20 * time.Millisecond)
	w.Set(ctx, "key", "first", 0) // fills the queue

	if err := w.Set(ctx, "key", "second", 0); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
	if val, _ := w.Get(ctx, "key"); val != "first" {
		t.Errorf("Expected pending value 'first' after drop, got %q", val)
	}

	close(block)
	w.Close()
}

func TestAsyncStore_CanceledWriteSkipsAppliedPending(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	stored := map[string]string{}
	backend := &mock.MockStore{
		SetFunc: func(ctx context.Context, key, value string, ttl time.Duration) error {
			if key == "busy" {
				<-block
				return nil
			}
			mu.Lock()
			stored[key] = value
			mu.Unlock()
			return nil
		},
		GetFunc: func(ctx context.Context, key string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if v, ok := stored[key]; ok {
				return v, nil
			}
			return "", kv.ErrKeyNotFound
		},
	}
	w := NewAsyncStore(backend, AsyncStoreConfig{Workers: 1, QueueSize: 1, MaxWaitTime: 5 * time.Second})

	ctx := context.Background()
	w.Set(ctx, "busy", "1", 0) // picked up by the worker, blocks
	time.Sleep(20 * time.Millisecond)
	w.Set(ctx, "filler", "1", 0) // fills the queue

	// An op for "key" that is already on its way to the backend.
	w.mu.Lock()
	w.seq++
	first := writeOp{kind: opSet, key: "key", value: "first", seq: w.seq}
	w.pending["key"] = first
	w.mu.Unlock()
	atomic.AddInt64(&w.inflight, 1)

	setCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Set(setCtx, "key", "second", 0) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if val, _ := w.Get(ctx, "key"); val == "second" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected 'second' to become pending")
		}
		time.Sleep(time.Millisecond)
	}

	if err := w.apply(first); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	w.mu.RLock()
	_, stale := w.pending["key"]
	w.mu.RUnlock()
	if stale {
		t.Error("Expected no pending entry once 'first' was applied")
	}

	mu.Lock()
	stored["key"] = "external"
	mu.Unlock()
	if val, err := w.Get(ctx, "key"); err != nil || val != "external" {
		t.Errorf("Expected read-through 'external', got %q (%v)", val, err)
	}

	close(block)
	w.Close()
}

func TestAsyncStore_FailedWritesCounted(t *testing.T) {
	backend := mock.NewFailingStore("broken", kv.ErrUnavailable)
	backend.CloseFunc = func() error { return nil }
	w := NewAsyncStore(backend, AsyncStoreConfig{Workers: 1})

	w.Set(context.Background(), "k", "v", 0)
	flush(t, w)

	if w.Stats().FailedWrites != 1 {
		t.Errorf("Expected 1 failed write, got %d", w.Stats().FailedWrites)
	}
	w.Close()
}

func TestAsyncStore_CloseDrainsAndClosesBackend(t *testing.T) {
	backend := mock.NewMockStore("m")
	w := NewAsyncStore(backend, AsyncStoreConfig{Workers: 2})

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		w.Set(ctx, fmt.Sprintf("k%d", i), "v", 0)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if backend.SetCalls() != 20 {
		t.Errorf("Expected 20 backend writes after drain, got %d", backend.SetCalls())
	}
	if backend.CloseCalls() != 1 {
		t.Errorf("Expected backend closed once, got %d", backend.CloseCalls())
	}
	if err := w.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if err := w.Set(ctx, "late", "v", 0); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Expected ErrWriterClosed, got %v", err)
	}
}

func TestAsyncStore_CloseCombinesErrors(t *testing.T) {
	backend := mock.NewMockStore("m")
	backend.CloseFunc = func() error { return errors.New("close failed") }
	w := NewAsyncStore(backend, AsyncStoreConfig{})

	err := w.Close()
	if err == nil || err.Error() != "close failed" {
		t.Errorf("Expected backend close error, got %v", err)
	}
}

func TestAsyncStore_Keys(t *testing.T) {
	backend := memory.NewMemoryStore(memory.MemoryStoreConfig{})
	ctx := context.Background()
	backend.Set(ctx, "existing", "1", 0)
	backend.Set(ctx, "doomed", "1", 0)

	w := NewAsyncStore(backend, AsyncStoreConfig{Workers: 1})
	defer w.Close()

	w.Set(ctx, "queued", "1", 0)
	w.Delete(ctx, "doomed")

	// Queued and applied states must both list the same keys.
	for _, phase := range []string{"queued", "applied"} {
		keys, err := w.Keys(ctx)
		if err != nil {
			t.Fatalf("%s: Keys failed: %v", phase, err)
		}
		if fmt.Sprint(keys) != "[existing queued]" {
			t.Errorf("%s: expected [existing queued], got %v", phase, keys)
		}
		flush(t, w)
	}
}

func TestAsyncStore_InvalidKey(t *testing.T) {
	w := NewAsyncStore(mock.NewMockStore("m"), AsyncStoreConfig{})
	defer w.Close()

	if err := w.Set(context.Background(), "", "v", 0); err == nil {
		t.Error("Expected error for empty key")
	}
}
