package kv

import (
	"context"
	"time"
)

// Store is the local persistent key-value store used for the cached auth token,
// the identity provider's refresh token and the user preferences.
// Values are plain strings; callers that need structure encode it themselves.
type Store interface {
	// Get returns the value stored under key.
	// Returns ErrKeyNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A ttl of 0 keeps the value until it is deleted.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the store in logs and metrics (e.g., "memory", "redis").
	Name() string

	// Close releases any resources held by the store.
	Close() error
}

// Lister is implemented by stores that can enumerate their keys.
// The bloom wrapper uses it to prime its filter.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Entry is a stored value with its expiry. A zero ExpiresAt never expires.
type Entry struct {
	Key       string
	Value     string
	ExpiresAt time.Time
}

// IsExpired reports whether the entry has expired as of now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// ExpiryFor converts a ttl into an absolute expiry. A ttl <= 0 yields the zero time.
func ExpiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
