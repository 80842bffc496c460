package finance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finance-sync/pkg/logging"
	"finance-sync/pkg/metrics"
	"finance-sync/pkg/rest"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CacheConfig wires a Cache to its collaborators.
type CacheConfig struct {
	Backend Backend
	Metrics metrics.MetricsCollector
	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Cache holds the signed-in user's collections in memory. Loads replace a
// whole collection; edits and deletes apply locally first and are reverted
// when the server rejects them. Network calls never run under the lock.
type Cache struct {
	backend Backend
	metrics metrics.MetricsCollector
	logger  *logging.Logger
	now     func() time.Time
	loads   singleflight.Group

	mu            sync.RWMutex
	transactions  []Transaction
	accounts      []Account
	categories    []Category
	budgets       []Budget
	goals         []Goal
	calendar      Calendar
	calendarYear  int
	calendarMonth time.Month
	// generation changes on Reset; loads started before it are discarded.
	generation uint64

	obsMu     sync.Mutex
	observers map[int]func(Collection)
	nextObs   int
}

// NewCache creates an empty cache.
func NewCache(config CacheConfig) *Cache {
	collector := config.Metrics
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		backend:   config.Backend,
		metrics:   collector,
		logger:    logging.Global().Named("finance"),
		now:       now,
		calendar:  Calendar{},
		observers: make(map[int]func(Collection)),
	}
}

// OnChange registers fn to be called after a collection changes and returns
// a func that removes it.
func (c *Cache) OnChange(fn func(Collection)) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Cache) notify(coll Collection) {
	c.obsMu.Lock()
	observers := make([]func(Collection), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.obsMu.Unlock()

	for _, fn := range observers {
		fn(coll)
	}
}

// Reset empties every collection; used on sign-out. Loads still in flight
// are discarded when they return.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.generation++
	c.transactions = nil
	c.accounts = nil
	c.categories = nil
	c.budgets = nil
	c.goals = nil
	c.calendar = Calendar{}
	c.calendarYear, c.calendarMonth = 0, 0
	c.mu.Unlock()

	for _, coll := range []Collection{
		CollectionTransactions, CollectionAccounts, CollectionCategories,
		CollectionBudgets, CollectionGoals, CollectionCalendar,
	} {
		c.notify(coll)
	}
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// load runs fetch once per key at a time. fetch returns an apply func that
// installs the result under the write lock.
func (c *Cache) load(ctx context.Context, coll Collection, key string, fetch func(ctx context.Context) (func(), error)) error {
	_, err, _ := c.loads.Do(key, func() (interface{}, error) {
		start := time.Now()
		gen := c.currentGeneration()

		apply, err := fetch(ctx)
		c.metrics.RecordLoad(string(coll), err == nil, time.Since(start))
		if err != nil {
			c.logger.Warn("load failed, keeping cached collection",
				zap.String("collection", string(coll)),
				zap.Error(err),
			)
			return nil, err
		}

		c.mu.Lock()
		stale := gen != c.generation
		if !stale {
			apply()
		}
		c.mu.Unlock()

		if stale {
			c.logger.Debug("discarding load after reset", zap.String("collection", string(coll)))
			return nil, nil
		}
		c.notify(coll)
		return nil, nil
	})
	return err
}

// LoadAccounts replaces the accounts. When the server has none, a default
// "Cash" account is created.
func (c *Cache) LoadAccounts(ctx context.Context) error {
	return c.load(ctx, CollectionAccounts, string(CollectionAccounts), func(ctx context.Context) (func(), error) {
		rows, err := c.backend.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			created, err := c.backend.CreateAccount(ctx, rest.AccountCreate{Name: DefaultAccountName})
			if err != nil {
				return nil, fmt.Errorf("finance: create default account: %w", err)
			}
			c.logger.Info("created default account", zap.String("id", created.ID))
			rows = append(rows, *created)
		}

		accounts := make([]Account, 0, len(rows))
		for _, r := range rows {
			accounts = append(accounts, fromRestAccount(r))
		}
		return func() { c.accounts = accounts }, nil
	})
}

// LoadCategories replaces the categories and re-resolves the icons and
// colors derived from them.
func (c *Cache) LoadCategories(ctx context.Context) error {
	return c.load(ctx, CollectionCategories, string(CollectionCategories), func(ctx context.Context) (func(), error) {
		rows, err := c.backend.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		categories := make([]Category, 0, len(rows))
		for _, r := range rows {
			categories = append(categories, fromRestCategory(r))
		}
		return func() {
			c.categories = categories
			c.transactions = reresolveIcons(c.transactions, categories)
			c.budgets = reresolveColors(c.budgets, categories)
		}, nil
	})
}

func reresolveIcons(txns []Transaction, categories []Category) []Transaction {
	if len(txns) == 0 {
		return txns
	}
	out := make([]Transaction, len(txns))
	for i, t := range txns {
		t.Icon = resolveIcon(t.Category, categories)
		out[i] = t
	}
	return out
}

func reresolveColors(budgets []Budget, categories []Category) []Budget {
	if len(budgets) == 0 {
		return budgets
	}
	out := make([]Budget, len(budgets))
	for i, b := range budgets {
		b.Color = resolveColor(b.Category, categories)
		out[i] = b
	}
	return out
}

// LoadTransactions replaces the transactions.
func (c *Cache) LoadTransactions(ctx context.Context) error {
	return c.load(ctx, CollectionTransactions, string(CollectionTransactions), func(ctx context.Context) (func(), error) {
		rows, err := c.backend.ListTransactions(ctx)
		if err != nil {
			return nil, err
		}
		return func() {
			txns := make([]Transaction, 0, len(rows))
			for _, r := range rows {
				txns = append(txns, fromRestTransaction(r, c.categories, "Unknown"))
			}
			c.transactions = txns
		}, nil
	})
}

// LoadGoals replaces the goals.
func (c *Cache) LoadGoals(ctx context.Context) error {
	return c.load(ctx, CollectionGoals, string(CollectionGoals), func(ctx context.Context) (func(), error) {
		rows, err := c.backend.ListGoals(ctx)
		if err != nil {
			return nil, err
		}
		goals := make([]Goal, 0, len(rows))
		for _, r := range rows {
			goals = append(goals, fromRestGoal(r))
		}
		return func() { c.goals = goals }, nil
	})
}

// LoadBudgets replaces the budgets.
func (c *Cache) LoadBudgets(ctx context.Context) error {
	return c.load(ctx, CollectionBudgets, string(CollectionBudgets), func(ctx context.Context) (func(), error) {
		rows, err := c.backend.ListBudgets(ctx)
		if err != nil {
			return nil, err
		}
		return func() {
			budgets := make([]Budget, 0, len(rows))
			for _, r := range rows {
				budgets = append(budgets, fromRestBudget(r, c.categories))
			}
			c.budgets = budgets
		}, nil
	})
}

// LoadCalendar replaces the calendar with the report for month of year.
func (c *Cache) LoadCalendar(ctx context.Context, year int, month time.Month) error {
	key := fmt.Sprintf("%s:%04d-%02d", CollectionCalendar, year, month)
	return c.load(ctx, CollectionCalendar, key, func(ctx context.Context) (func(), error) {
		report, err := c.backend.CalendarReport(ctx, year, int(month))
		if err != nil {
			return nil, err
		}
		cal := fromRestCalendar(report)
		return func() {
			c.calendar = cal
			c.calendarYear, c.calendarMonth = year, month
		}, nil
	})
}

// LoadAll loads accounts and categories, then transactions, goals and
// budgets so icons and colors resolve against fresh categories. Every load
// runs; the first error is returned.
func (c *Cache) LoadAll(ctx context.Context) error {
	var first errgroup.Group
	first.Go(func() error { return c.LoadAccounts(ctx) })
	first.Go(func() error { return c.LoadCategories(ctx) })
	firstErr := first.Wait()

	var second errgroup.Group
	second.Go(func() error { return c.LoadTransactions(ctx) })
	second.Go(func() error { return c.LoadGoals(ctx) })
	second.Go(func() error { return c.LoadBudgets(ctx) })
	if err := second.Wait(); firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// reloadAfter refreshes a dependent collection after a successful write.
// Failures are logged; the write itself already succeeded.
func (c *Cache) reloadAfter(ctx context.Context, reload func(context.Context) error, coll Collection) {
	if err := reload(ctx); err != nil {
		c.logger.Warn("dependent reload failed",
			zap.String("collection", string(coll)),
			zap.Error(err),
		)
	}
}

// DefaultAccountName is the account created when the server has none.
const DefaultAccountName = "Cash"

// Transactions returns a copy of the transactions, most recent first.
func (c *Cache) Transactions() []Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Transaction(nil), c.transactions...)
}

// Accounts returns a copy of the accounts.
func (c *Cache) Accounts() []Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Account(nil), c.accounts...)
}

// Categories returns a copy of the categories.
func (c *Cache) Categories() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Category(nil), c.categories...)
}

// Budgets returns a copy of the budgets.
func (c *Cache) Budgets() []Budget {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Budget(nil), c.budgets...)
}

// Goals returns a copy of the goals.
func (c *Cache) Goals() []Goal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Goal(nil), c.goals...)
}

// Goal returns the goal with id.
func (c *Cache) Goal(id string) (Goal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range c.goals {
		if g.ID == id {
			return g, true
		}
	}
	return Goal{}, false
}

// Calendar returns a copy of the loaded calendar and the month it covers.
func (c *Cache) Calendar() (Calendar, int, time.Month) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calendar.clone(), c.calendarYear, c.calendarMonth
}

// Icon resolves the icon for a category name.
func (c *Cache) Icon(category string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return resolveIcon(category, c.categories)
}

// Color resolves the color for a category name.
func (c *Cache) Color(category string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return resolveColor(category, c.categories)
}

func (c *Cache) defaultAccount() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.accounts) == 0 {
		return "", false
	}
	return c.accounts[0].ID, true
}
