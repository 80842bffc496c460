package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"finance-sync/pkg/kv"

	_ "github.com/lib/pq"
)

// PostgresStore is a kv.Store backed by a single PostgreSQL table. Expired
// rows are filtered on read and removed by Purge.
type PostgresStore struct {
	db     *sql.DB
	name   string
	config PostgresStoreConfig
	now    func() time.Time
}

// PostgresStoreConfig holds PostgreSQL connection configuration.
type PostgresStoreConfig struct {
	Name string `yaml:"name"`
	// DSN overrides the individual connection fields when set.
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	// Table holds the entries and is created on open.
	Table       string        `yaml:"table"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	MaxOpenConn int           `yaml:"max_open_conns"`
}

// DefaultPostgresStoreConfig returns default PostgreSQL configuration.
func DefaultPostgresStoreConfig() PostgresStoreConfig {
	return PostgresStoreConfig{
		Name:        "postgres",
		Host:        "localhost",
		Port:        5432,
		User:        "postgres",
		Password:    "postgres",
		Database:    "finsync",
		SSLMode:     "disable",
		Table:       "finsync_kv",
		DialTimeout: 5 * time.Second,
		MaxOpenConn: 5,
	}
}

var (
	_ kv.Store  = (*PostgresStore)(nil)
	_ kv.Lister = (*PostgresStore)(nil)
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ConnString returns the lib/pq connection string for config.
func (c PostgresStoreConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewPostgresStore opens a connection pool, pings it and creates the table.
func NewPostgresStore(config PostgresStoreConfig) (*PostgresStore, error) {
	if config.Name == "" {
		config.Name = "postgres"
	}
	if config.Table == "" {
		config.Table = "finsync_kv"
	}
	if !tableName.MatchString(config.Table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", config.Table)
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.MaxOpenConn <= 0 {
		config.MaxOpenConn = 5
	}

	db, err := sql.Open("postgres", config.ConnString())
	if err != nil {
		return nil, kv.WrapError(fmt.Errorf("connect: %w", err), config.Name, "open")
	}

	db.SetMaxOpenConns(config.MaxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, kv.WrapError(fmt.Errorf("%w: ping: %v", kv.ErrUnavailable, err), config.Name, "open")
	}

	p := &PostgresStore{
		db:     db,
		name:   config.Name,
		config: config,
		now:    time.Now,
	}
	if err := p.initTable(ctx); err != nil {
		db.Close()
		return nil, kv.WrapError(fmt.Errorf("init table: %w", err), config.Name, "open")
	}
	return p, nil
}

func (p *PostgresStore) initTable(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ` + p.config.Table + ` (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + p.config.Table + `_expires_at ON ` + p.config.Table + `(expires_at)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", err
	}

	query := `SELECT value FROM ` + p.config.Table + `
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	var value string
	err := p.db.QueryRowContext(ctx, query, key, p.now()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", kv.ErrKeyNotFound
	}
	if err != nil {
		return "", kv.WrapError(err, p.name, "get")
	}
	return value, nil
}

// Set upserts value. A ttl of 0 persists without expiry.
func (p *PostgresStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	var expiresAt sql.NullTime
	if exp := kv.ExpiryFor(p.now(), ttl); !exp.IsZero() {
		expiresAt = sql.NullTime{Time: exp, Valid: true}
	}

	query := `INSERT INTO ` + p.config.Table + ` (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

	if _, err := p.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return kv.WrapError(err, p.name, "set")
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, `DELETE FROM `+p.config.Table+` WHERE key = $1`, key); err != nil {
		return kv.WrapError(err, p.name, "delete")
	}
	return nil
}

// Keys lists every unexpired key in key order.
func (p *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	query := `SELECT key FROM ` + p.config.Table + `
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY key`

	rows, err := p.db.QueryContext(ctx, query, p.now())
	if err != nil {
		return nil, kv.WrapError(err, p.name, "keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, kv.WrapError(fmt.Errorf("scan key: %w", err), p.name, "keys")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, kv.WrapError(err, p.name, "keys")
	}
	return keys, nil
}

// Purge deletes expired rows and returns how many were removed.
func (p *PostgresStore) Purge(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM `+p.config.Table+` WHERE expires_at IS NOT NULL AND expires_at <= $1`, p.now())
	if err != nil {
		return 0, kv.WrapError(err, p.name, "purge")
	}
	return res.RowsAffected()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return kv.WrapError(err, p.name, "ping")
	}
	return nil
}

func (p *PostgresStore) Name() string {
	return p.name
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
