package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finance-sync/pkg/kv"

	"github.com/redis/rueidis"
)

// RedisStore is a kv.Store backed by Redis. It lets a desktop or server
// deployment share preferences and the persisted refresh token across
// processes.
type RedisStore struct {
	client rueidis.Client
	name   string
	config RedisStoreConfig
}

type RedisStoreConfig struct {
	Name string `yaml:"name"`
	// Addr is the Redis server address for single node/sentinel mode.
	// For cluster mode, use ClusterAddrs instead.
	Addr string `yaml:"addr"`
	// ClusterAddrs enables cluster mode when set.
	ClusterAddrs []string `yaml:"cluster_addrs"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	// DB is the Redis database number. Cluster mode only supports DB 0.
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// SentinelAddrs enables sentinel mode when set.
	SentinelAddrs     []string `yaml:"sentinel_addrs"`
	SentinelMasterSet string   `yaml:"sentinel_master_set"`
	SentinelUsername  string   `yaml:"sentinel_username"`
	SentinelPassword  string   `yaml:"sentinel_password"`
}

func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "finsync:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

var (
	_ kv.Store  = (*RedisStore)(nil)
	_ kv.Lister = (*RedisStore)(nil)
)

func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr, ClusterAddrs, or SentinelAddrs)")
	}

	clientOpts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
	}
	if len(config.SentinelAddrs) > 0 {
		clientOpts.Sentinel = rueidis.SentinelOption{
			MasterSet: config.SentinelMasterSet,
			Username:  config.SentinelUsername,
			Password:  config.SentinelPassword,
		}
	}

	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, kv.WrapError(fmt.Errorf("connect: %w", err), config.Name, "open")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, kv.WrapError(fmt.Errorf("%w: ping: %v", kv.ErrUnavailable, err), config.Name, "open")
	}

	return &RedisStore{
		client: client,
		name:   config.Name,
		config: config,
	}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.config.KeyPrefix+key).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return "", kv.ErrKeyNotFound
		}
		return "", kv.WrapError(err, r.name, "get")
	}

	value, err := resp.ToString()
	if err != nil {
		return "", kv.WrapError(fmt.Errorf("decode response: %w", err), r.name, "get")
	}
	return value, nil
}

// Set stores value. A ttl of 0 persists without expiry.
func (r *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	fullKey := r.config.KeyPrefix + key
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = r.client.B().Set().Key(fullKey).Value(value).Ex(ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(fullKey).Value(value).Build()
	}

	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return kv.WrapError(err, r.name, "set")
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(r.config.KeyPrefix+key).Build()).Error(); err != nil {
		return kv.WrapError(err, r.name, "delete")
	}
	return nil
}

// Keys lists every key under the configured prefix, prefix stripped.
func (r *RedisStore) Keys(ctx context.Context) ([]string, error) {
	resp := r.client.Do(ctx, r.client.B().Keys().Pattern(r.config.KeyPrefix+"*").Build())
	if err := resp.Error(); err != nil {
		return nil, kv.WrapError(err, r.name, "keys")
	}

	keys, err := resp.AsStrSlice()
	if err != nil {
		return nil, kv.WrapError(fmt.Errorf("decode response: %w", err), r.name, "keys")
	}

	result := make([]string, len(keys))
	for i, key := range keys {
		result[i] = strings.TrimPrefix(key, r.config.KeyPrefix)
	}
	return result, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return kv.WrapError(err, r.name, "ping")
	}
	return nil
}

func (r *RedisStore) Name() string {
	return r.name
}

func (r *RedisStore) Close() error {
	r.client.Close()
	return nil
}
