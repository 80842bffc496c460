package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"finance-sync/pkg/kv"
)

// MemoryStore is an in-process kv.Store. It is safe for concurrent use and
// drops expired entries both lazily on read and from a background sweeper.
type MemoryStore struct {
	// data stores the entries
	data map[string]*kv.Entry

	// mu protects data and closed
	mu     sync.RWMutex
	closed bool

	config MemoryStoreConfig

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	wg            sync.WaitGroup
}

// MemoryStoreConfig holds configuration for the memory store
type MemoryStoreConfig struct {
	// Name is the store identifier
	Name string

	// CleanupInterval is how often expired entries are swept (default: 1m)
	CleanupInterval time.Duration

	// Now overrides the clock, for tests
	Now func() time.Time
}

var (
	_ kv.Store  = (*MemoryStore)(nil)
	_ kv.Lister = (*MemoryStore)(nil)
)

// NewMemoryStore creates a memory store and starts its sweeper goroutine.
// Close must be called to stop it.
func NewMemoryStore(config MemoryStoreConfig) *MemoryStore {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &MemoryStore{
		data:          make(map[string]*kv.Entry),
		config:        config,
		stopCleanup:   make(chan struct{}),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
	}

	s.wg.Add(1)
	go s.cleanup()

	return s
}

// Get returns the value for key, or kv.ErrKeyNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return "", kv.ErrClosed
	}
	entry, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return "", kv.ErrKeyNotFound
	}

	if entry.IsExpired(s.config.Now()) {
		s.mu.Lock()
		// Re-check: a concurrent Set may have replaced the entry.
		if current, ok := s.data[key]; ok && current == entry {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return "", kv.ErrKeyNotFound
	}

	return entry.Value, nil
}

// Set stores value under key. A ttl of 0 never expires.
func (s *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}

	s.data[key] = &kv.Entry{
		Key:       key,
		Value:     value,
		ExpiresAt: kv.ExpiryFor(s.config.Now(), ttl),
	}
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	delete(s.data, key)
	return nil
}

// Keys returns the live keys in sorted order.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}

	now := s.config.Now()
	keys := make([]string, 0, len(s.data))
	for key, entry := range s.data {
		if !entry.IsExpired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Name returns the store name.
func (s *MemoryStore) Name() string {
	return s.config.Name
}

// Close stops the sweeper and drops all data. Closing twice is a no-op.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.data = nil
	s.mu.Unlock()

	s.cleanupTicker.Stop()
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

// Len returns the number of stored entries, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) cleanup() {
	defer s.wg.Done()

	for {
		select {
		case <-s.cleanupTicker.C:
			s.removeExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.Now()
	for key, entry := range s.data {
		if entry.IsExpired(now) {
			delete(s.data, key)
		}
	}
}
