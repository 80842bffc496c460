package bloom

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finance-sync/pkg/kv"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomStore fronts a kv.Store with a membership filter so lookups of keys
// that were never written skip the backend. Preference reads at startup
// are the common case: most keys are absent on a fresh install.
type BloomStore struct {
	store  kv.Store
	filter *bloom.BloomFilter
	fpRate float64
	mu     sync.RWMutex

	totalQueries   uint64
	bloomRejected  uint64
	falsePositives uint64
}

// NewBloomStore wraps store. Call Prime to seed the filter with existing keys.
func NewBloomStore(store kv.Store, expectedItems uint, falsePositiveRate float64) *BloomStore {
	if expectedItems == 0 {
		expectedItems = 1000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &BloomStore{
		store:  store,
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		fpRate: falsePositiveRate,
	}
}

// Prime adds every key the wrapped store already holds. The wrapped store
// must implement kv.Lister; otherwise reads of pre-existing keys would be
// rejected, so Prime returns an error.
func (bs *BloomStore) Prime(ctx context.Context) (int, error) {
	lister, ok := bs.store.(kv.Lister)
	if !ok {
		return 0, fmt.Errorf("bloom: store %s cannot list keys", bs.store.Name())
	}

	keys, err := lister.Keys(ctx)
	if err != nil {
		return 0, err
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	for _, key := range keys {
		bs.filter.AddString(key)
	}
	return len(keys), nil
}

func (bs *BloomStore) Name() string {
	return "bloom(" + bs.store.Name() + ")"
}

func (bs *BloomStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bs.mu.Lock()
	bs.totalQueries++
	if !bs.filter.TestString(key) {
		bs.bloomRejected++
		bs.mu.Unlock()
		return "", kv.ErrKeyNotFound
	}
	bs.mu.Unlock()

	value, err := bs.store.Get(ctx, key)
	if kv.IsNotFound(err) {
		bs.mu.Lock()
		bs.falsePositives++
		bs.mu.Unlock()
	}
	return value, err
}

func (bs *BloomStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bs.mu.Lock()
	bs.filter.AddString(key)
	bs.mu.Unlock()

	return bs.store.Set(ctx, key, value, ttl)
}

// Delete removes key from the backend. Bloom filters cannot forget, so a
// later Get falls through to the store and counts as a false positive.
func (bs *BloomStore) Delete(ctx context.Context, key string) error {
	return bs.store.Delete(ctx, key)
}

func (bs *BloomStore) Close() error {
	return bs.store.Close()
}

// Reset clears the filter and counters.
func (bs *BloomStore) Reset() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	bs.filter = bloom.NewWithEstimates(uint(bs.filter.Cap()), bs.fpRate)
	bs.totalQueries = 0
	bs.bloomRejected = 0
	bs.falsePositives = 0
}

// Stats returns filter effectiveness counters.
func (bs *BloomStore) Stats() BloomStats {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	rejectionRate := 0.0
	falsePositiveRate := 0.0
	if bs.totalQueries > 0 {
		rejectionRate = float64(bs.bloomRejected) / float64(bs.totalQueries)
		if queried := bs.totalQueries - bs.bloomRejected; queried > 0 {
			falsePositiveRate = float64(bs.falsePositives) / float64(queried)
		}
	}

	return BloomStats{
		TotalQueries:      bs.totalQueries,
		BloomRejected:     bs.bloomRejected,
		FalsePositives:    bs.falsePositives,
		RejectionRate:     rejectionRate,
		FalsePositiveRate: falsePositiveRate,
		FilterCapacity:    uint(bs.filter.Cap()),
	}
}

type BloomStats struct {
	TotalQueries      uint64
	BloomRejected     uint64
	FalsePositives    uint64
	RejectionRate     float64
	FalsePositiveRate float64
	FilterCapacity    uint
}
