package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"finance-sync/pkg/api"
	"finance-sync/pkg/config"
	"finance-sync/pkg/finance"
	"finance-sync/pkg/identity"
	"finance-sync/pkg/identity/firebase"
	"finance-sync/pkg/kv"
	"finance-sync/pkg/kv/bloom"
	"finance-sync/pkg/kv/memory"
	"finance-sync/pkg/kv/postgres"
	"finance-sync/pkg/kv/redis"
	"finance-sync/pkg/logging"
	"finance-sync/pkg/metrics"
	metricsmem "finance-sync/pkg/metrics/memory"
	promcollector "finance-sync/pkg/metrics/prometheus"
	"finance-sync/pkg/prefs"
	"finance-sync/pkg/resilience"
	"finance-sync/pkg/rest"
	"finance-sync/pkg/transport"
	"finance-sync/pkg/writer"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options overrides collaborators New would otherwise build from config.
type Options struct {
	// HTTPClient sends every outbound request (default: http.DefaultClient)
	HTTPClient resilience.Doer

	// Store replaces the configured store driver. Bloom and write-behind
	// wrapping still apply.
	Store kv.Store

	// Now overrides the clock of the ledger and the inspection server
	Now func() time.Time
}

// App wires the sync layer together: the persisted store, the API
// transport, the identity session, preferences and the ledger cache.
type App struct {
	Config   config.Config
	Store    kv.Store
	Client   *transport.Client
	API      *rest.API
	Provider *firebase.Provider // nil without an API key
	Session  *identity.Session
	Prefs    *prefs.Preferences
	Cache    *finance.Cache
	Metrics  *metricsmem.MemoryCollector
	Registry *prometheus.Registry
	Server   *api.Server // nil when disabled

	logger *logging.Logger
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	loads  sync.WaitGroup

	mu          sync.Mutex
	loadedUID   string
	unsubscribe func()

	closeOnce sync.Once
	closeErr  error
}

// New builds every component but starts nothing; call Start.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	memCollector := metricsmem.NewMemoryCollector()
	registry := prometheus.NewRegistry()
	pc := promcollector.NewPrometheusCollector(cfg.Metrics.Namespace)
	if err := pc.Register(registry); err != nil {
		return nil, fmt.Errorf("app: register metrics: %w", err)
	}
	collector := metrics.MultiCollector{memCollector, pc}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:   cfg,
		Metrics:  memCollector,
		Registry: registry,
		logger:   logging.Global().Named("app"),
		now:      opts.Now,
		ctx:      ctx,
		cancel:   cancel,
	}

	store, err := openStore(ctx, cfg.Store, opts.Store, collector)
	if err != nil {
		cancel()
		return nil, err
	}
	a.Store = store

	apiDoer := resilience.NewResilientDoerWithMetrics(opts.HTTPClient, cfg.Resilience, collector)
	a.Client = transport.NewClientWithMetrics(cfg.API, apiDoer, collector)
	a.API = rest.NewAPI(a.Client)

	sessionConfig := identity.SessionConfig{
		Sink:    a.Client,
		Store:   store,
		Metrics: collector,
	}
	identityResilience := cfg.Resilience
	identityResilience.Name = "identity"
	identityDoer := resilience.NewResilientDoerWithMetrics(opts.HTTPClient, identityResilience, collector)
	provider, err := firebase.NewProvider(cfg.Firebase, identityDoer, store)
	switch {
	case err == nil:
		a.Provider = provider
		sessionConfig.Provider = provider
	case errors.Is(err, firebase.ErrMissingAPIKey):
		a.logger.Warn("firebase API key not set, running signed out")
	default:
		cancel()
		store.Close()
		return nil, err
	}
	a.Session = identity.NewSession(sessionConfig)
	a.Client.SetRefreshHandler(a.Session.TransportRefresh)
	a.Client.SetUnauthorizedHandler(a.Session.HandleUnauthorized)

	a.Prefs = prefs.New(store)
	a.Cache = finance.NewCache(finance.CacheConfig{
		Backend: a.API,
		Metrics: collector,
		Now:     opts.Now,
	})

	if cfg.Server.Addr != "" {
		serverConfig := api.DefaultServerConfig()
		serverConfig.Address = cfg.Server.Addr
		a.Server = api.NewServer(api.Deps{
			Session:  a.Session,
			Ledger:   a.Cache,
			Prefs:    a.Prefs,
			Metrics:  memCollector,
			Registry: registry,
			Now:      opts.Now,
		}, serverConfig)
	}

	return a, nil
}

// openStore builds the store stack: the driver, then the bloom filter, then
// the write-behind queue.
func openStore(ctx context.Context, cfg config.StoreConfig, base kv.Store, collector metrics.MetricsCollector) (kv.Store, error) {
	if base == nil {
		switch cfg.Driver {
		case config.DriverRedis:
			rs, err := redis.NewRedisStore(cfg.Redis)
			if err != nil {
				return nil, fmt.Errorf("app: open store: %w", err)
			}
			base = rs
		case config.DriverPostgres:
			ps, err := postgres.NewPostgresStore(cfg.Postgres)
			if err != nil {
				return nil, fmt.Errorf("app: open store: %w", err)
			}
			if n, err := ps.Purge(ctx); err != nil {
				logging.Global().Named("app").Warn("failed to purge expired entries", zap.Error(err))
			} else if n > 0 {
				logging.Global().Named("app").Debug("purged expired entries", zap.Int64("count", n))
			}
			base = ps
		default:
			base = memory.NewMemoryStore(memory.MemoryStoreConfig{
				Name:            config.DriverMemory,
				CleanupInterval: cfg.CleanupInterval,
			})
		}
	}

	store := base
	if cfg.BloomExpectedItems > 0 {
		bs := bloom.NewBloomStore(base, cfg.BloomExpectedItems, cfg.BloomFalsePositiveRate)
		if _, err := bs.Prime(ctx); err != nil {
			base.Close()
			return nil, fmt.Errorf("app: prime bloom filter: %w", err)
		}
		store = bs
	}
	if cfg.WriteBehind {
		store = writer.NewAsyncStoreWithMetrics(store, cfg.Async, collector)
	}
	return store, nil
}

// Start loads preferences, resumes a saved session and starts the session
// and the inspection server. The ledger loads in the background each time a
// different user signs in and empties on sign-out.
func (a *App) Start(ctx context.Context) error {
	a.Prefs.Load(ctx)

	if a.Provider != nil {
		if err := a.Provider.Restore(ctx); err != nil {
			a.logger.Warn("failed to restore saved session", zap.Error(err))
		}
	}

	unsubscribe := a.Session.Subscribe(a.onSession)
	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.mu.Unlock()

	if err := a.Session.Start(ctx); err != nil && !errors.Is(err, identity.ErrProviderNotConfigured) {
		return err
	}

	if a.Server != nil {
		if err := a.Server.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) onSession(state identity.State, user *identity.User) {
	switch state {
	case identity.StateAuthenticated:
		if user == nil {
			return
		}
		a.mu.Lock()
		if a.loadedUID == user.UID || a.ctx.Err() != nil {
			a.mu.Unlock()
			return
		}
		a.loadedUID = user.UID
		a.loads.Add(1)
		a.mu.Unlock()

		go func() {
			defer a.loads.Done()
			if err := a.Sync(a.ctx); err != nil {
				a.logger.Warn("initial sync incomplete", zap.String("uid", user.UID), zap.Error(err))
			}
		}()

	case identity.StateUnauthenticated:
		a.mu.Lock()
		a.loadedUID = ""
		a.mu.Unlock()
		a.Cache.Reset()
	}
}

// Sync reloads every collection and the current month's calendar. Every
// load runs; their errors are combined.
func (a *App) Sync(ctx context.Context) error {
	now := a.now()
	return multierr.Combine(
		a.Cache.LoadAll(ctx),
		a.Cache.LoadCalendar(ctx, now.Year(), now.Month()),
	)
}

// Close stops the server, unsubscribes from the session, waits for
// background loads and closes the store, flushing queued writes.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var err error
		if a.Server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = multierr.Append(err, a.Server.Stop(ctx))
			cancel()
		}

		a.mu.Lock()
		unsubscribe := a.unsubscribe
		a.unsubscribe = nil
		a.cancel()
		a.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		a.Session.Close()
		a.loads.Wait()

		err = multierr.Append(err, a.Store.Close())
		a.closeErr = err
	})
	return a.closeErr
}
