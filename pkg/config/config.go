package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"finance-sync/pkg/identity/firebase"
	"finance-sync/pkg/kv/postgres"
	"finance-sync/pkg/kv/redis"
	"finance-sync/pkg/logging"
	"finance-sync/pkg/resilience"
	"finance-sync/pkg/transport"
	"finance-sync/pkg/writer"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v2"
)

// DefaultBaseURL is the API root used when nothing else is configured; it
// reaches the host machine from an Android emulator.
const DefaultBaseURL = "http://10.0.2.2:8000"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	API        transport.ClientConfig     `yaml:"api"`
	Firebase   firebase.Config            `yaml:"firebase"`
	Store      StoreConfig                `yaml:"store"`
	Logging    logging.Config             `yaml:"logging"`
	Metrics    MetricsConfig              `yaml:"metrics"`
	Server     ServerConfig               `yaml:"server"`
	Resilience resilience.ResilientConfig `yaml:"resilience"`
}

// StoreConfig selects and tunes the key-value store behind the session
// token and preferences.
type StoreConfig struct {
	// Driver is memory, redis or postgres
	Driver string `yaml:"driver"`

	// CleanupInterval sweeps expired entries of the memory driver
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	Redis    redis.RedisStoreConfig       `yaml:"redis"`
	Postgres postgres.PostgresStoreConfig `yaml:"postgres"`

	// BloomExpectedItems sizes the negative-lookup filter. Zero disables it.
	BloomExpectedItems uint `yaml:"bloom_expected_items"`

	// BloomFalsePositiveRate is the filter's target false-positive rate
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate"`

	// WriteBehind queues writes instead of waiting on the backend
	WriteBehind bool `yaml:"write_behind"`

	Async writer.AsyncStoreConfig `yaml:"async"`
}

// MetricsConfig configures metric collection.
type MetricsConfig struct {
	// Namespace prefixes every Prometheus metric
	Namespace string `yaml:"namespace"`
}

// ServerConfig configures the inspection server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used before any file or environment
// overrides.
func Default() Config {
	return Config{
		API:     transport.ClientConfig{BaseURL: DefaultBaseURL, UserAgent: "finance-sync"},
		Logging: logging.DefaultConfig(),
		Store: StoreConfig{
			Driver:                 DriverMemory,
			CleanupInterval:        time.Minute,
			Redis:                  redis.DefaultRedisStoreConfig(),
			Postgres:               postgres.DefaultPostgresStoreConfig(),
			BloomExpectedItems:     1000,
			BloomFalsePositiveRate: 0.01,
			WriteBehind:            true,
		},
		Metrics:    MetricsConfig{Namespace: "finsync"},
		Server:     ServerConfig{Addr: ":8080"},
		Resilience: resilience.DefaultResilientConfig(),
	}
}

// Load builds the configuration in three passes: defaults, the YAML file at
// path (skipped when path is empty), then environment variables. Variables
// from envFiles (default ".env") are loaded first without overriding the
// process environment; missing env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := firstEnv("FINANCE_API_BASE_URL", "EXPO_PUBLIC_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := firstEnv("FIREBASE_API_KEY", "EXPO_PUBLIC_FIREBASE_API_KEY"); v != "" {
		c.Firebase.APIKey = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: REDIS_DB: %v", ErrInvalidConfig, err)
		}
		c.Store.Redis.DB = db
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Store.Postgres.DSN = v
	}
	if v, ok := os.LookupEnv("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v := os.Getenv("METRICS_NAMESPACE"); v != "" {
		c.Metrics.Namespace = v
	}
	if v := os.Getenv("API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: API_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		c.Resilience.Timeout = d
	}
	c.Logging = logging.ApplyEnv(c.Logging)
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the fields the composition root depends on.
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api.base_url %q must be an absolute http(s) URL", ErrInvalidConfig, c.API.BaseURL)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.Redis.Addr == "" && len(c.Store.Redis.ClusterAddrs) == 0 && len(c.Store.Redis.SentinelAddrs) == 0 {
			return fmt.Errorf("%w: store.redis needs an address", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" && c.Store.Postgres.Host == "" {
			return fmt.Errorf("%w: store.postgres needs a dsn or host", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: store.driver %q (want %s, %s or %s)", ErrInvalidConfig, c.Store.Driver, DriverMemory, DriverRedis, DriverPostgres)
	}

	if c.Store.BloomExpectedItems > 0 && (c.Store.BloomFalsePositiveRate <= 0 || c.Store.BloomFalsePositiveRate >= 1) {
		return fmt.Errorf("%w: store.bloom_false_positive_rate must be in (0, 1)", ErrInvalidConfig)
	}
	if c.Resilience.Timeout < 0 {
		return fmt.Errorf("%w: resilience.timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}
