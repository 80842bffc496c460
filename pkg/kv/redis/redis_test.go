package redis

import (
	"context"
	"slices"
	"testing"
	"time"

	"finance-sync/pkg/kv"
)

func setupTestRedis(t *testing.T) *RedisStore {
	config := DefaultRedisStoreConfig()
	config.Name = "TestRedis"
	config.KeyPrefix = "test:finsync:"
	config.DialTimeout = 2 * time.Second

	r, err := NewRedisStore(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	ctx := context.Background()
	keys, _ := r.Keys(ctx)
	for _, key := range keys {
		r.Delete(ctx, key)
	}
	return r
}

func TestNewRedisStore_NoAddress(t *testing.T) {
	_, err := NewRedisStore(RedisStoreConfig{Name: "empty"})
	if err == nil {
		t.Fatal("Expected error when no address is configured")
	}
}

func TestRedisStore_SetGet(t *testing.T) {
	r := setupTestRedis(t)
	defer r.Close()

	if r.Name() != "TestRedis" {
		t.Errorf("Expected name 'TestRedis', got '%s'", r.Name())
	}

	ctx := context.Background()
	if err := r.Set(ctx, "userSettings_theme", "dark", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := r.Get(ctx, "userSettings_theme")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "dark" {
		t.Errorf("Expected 'dark', got '%s'", val)
	}
}

func TestRedisStore_GetMiss(t *testing.T) {
	r := setupTestRedis(t)
	defer r.Close()

	if _, err := r.Get(context.Background(), "nope"); !kv.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestRedisStore_TTL(t *testing.T) {
	r := setupTestRedis(t)
	defer r.Close()

	ctx := context.Background()
	if err := r.Set(ctx, "short", "v", time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := r.Get(ctx, "short"); !kv.IsNotFound(err) {
		t.Errorf("Expected expiry, got %v", err)
	}
}

func TestRedisStore_DeleteAndKeys(t *testing.T) {
	r := setupTestRedis(t)
	defer r.Close()

	ctx := context.Background()
	r.Set(ctx, "a", "1", 0)
	r.Set(ctx, "b", "2", 0)
	r.Delete(ctx, "a")

	keys, err := r.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if slices.Contains(keys, "a") || !slices.Contains(keys, "b") {
		t.Errorf("Expected only 'b' to remain, got %v", keys)
	}
}
