package mock

import (
	"context"
	"sync/atomic"
	"time"

	"finance-sync/pkg/kv"
)

// MockStore is a kv.Store for tests. Set the hooks to customize behavior;
// call counts are tracked atomically.
type MockStore struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value string, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	NameFunc   func() string
	CloseFunc  func() error

	getCalls    int64
	setCalls    int64
	deleteCalls int64
	closeCalls  int64
}

var _ kv.Store = (*MockStore)(nil)

func (m *MockStore) Get(ctx context.Context, key string) (string, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", nil
}

func (m *MockStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	atomic.AddInt64(&m.setCalls, 1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

func (m *MockStore) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock"
}

func (m *MockStore) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// GetCalls returns the number of Get calls (thread-safe).
func (m *MockStore) GetCalls() int {
	return int(atomic.LoadInt64(&m.getCalls))
}

// SetCalls returns the number of Set calls (thread-safe).
func (m *MockStore) SetCalls() int {
	return int(atomic.LoadInt64(&m.setCalls))
}

// DeleteCalls returns the number of Delete calls (thread-safe).
func (m *MockStore) DeleteCalls() int {
	return int(atomic.LoadInt64(&m.deleteCalls))
}

// CloseCalls returns the number of Close calls (thread-safe).
func (m *MockStore) CloseCalls() int {
	return int(atomic.LoadInt64(&m.closeCalls))
}

// NewMockStore creates a MockStore where every operation succeeds.
func NewMockStore(name string) *MockStore {
	return &MockStore{
		NameFunc: func() string { return name },
	}
}

// NewMockStoreWithDefaults creates a MockStore that behaves like an empty
// store: Get reports kv.ErrKeyNotFound.
func NewMockStoreWithDefaults(name string) *MockStore {
	return &MockStore{
		NameFunc: func() string { return name },
		GetFunc: func(ctx context.Context, key string) (string, error) {
			return "", kv.ErrKeyNotFound
		},
	}
}

// NewFailingStore creates a MockStore whose every operation returns err.
func NewFailingStore(name string, err error) *MockStore {
	return &MockStore{
		NameFunc:   func() string { return name },
		GetFunc:    func(ctx context.Context, key string) (string, error) { return "", err },
		SetFunc:    func(ctx context.Context, key, value string, ttl time.Duration) error { return err },
		DeleteFunc: func(ctx context.Context, key string) error { return err },
	}
}
