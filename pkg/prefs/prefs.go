package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"finance-sync/pkg/kv"
	"finance-sync/pkg/logging"

	"go.uber.org/zap"
)

var settingsKeys = kv.NewKeyPattern("userSettings", "_")

// Store keys.
var (
	CurrencyKey = settingsKeys.MustBuild("currency")
	ThemeKey    = settingsKeys.MustBuild("theme")
)

// Currency is an ISO 4217 code from the supported set.
type Currency string

const (
	MYR Currency = "MYR"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	SGD Currency = "SGD"
)

var symbols = map[Currency]string{
	MYR: "RM",
	USD: "$",
	EUR: "€",
	GBP: "£",
	SGD: "S$",
}

// Currencies lists the supported currencies in display order.
var Currencies = []Currency{MYR, USD, EUR, GBP, SGD}

// Valid reports whether c is supported.
func (c Currency) Valid() bool {
	_, ok := symbols[c]
	return ok
}

// Symbol returns the display symbol, or the code itself when unsupported.
func (c Currency) Symbol() string {
	if s, ok := symbols[c]; ok {
		return s
	}
	return string(c)
}

// Theme is the UI color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

const (
	DefaultCurrency = MYR
	DefaultTheme    = ThemeDark
)

// ErrUnsupportedCurrency is returned by SetCurrency for codes outside Currencies.
var ErrUnsupportedCurrency = errors.New("prefs: unsupported currency")

// Snapshot is a point-in-time copy of the preferences.
type Snapshot struct {
	Currency       Currency `json:"currency"`
	CurrencySymbol string   `json:"currency_symbol"`
	Theme          Theme    `json:"theme"`
	DarkMode       bool     `json:"dark_mode"`
}

// Preferences holds the currency and theme choices, backed by a kv.Store.
// In-memory values change before the write so a failed write still leaves
// the session with the user's choice.
type Preferences struct {
	store  kv.Store
	logger *logging.Logger

	mu       sync.RWMutex
	currency Currency
	theme    Theme
	loaded   bool
}

// New creates preferences with default values; call Load to read the store.
func New(store kv.Store) *Preferences {
	return &Preferences{
		store:    store,
		logger:   logging.Global().Named("prefs"),
		currency: DefaultCurrency,
		theme:    DefaultTheme,
	}
}

// Load reads both settings. Missing, unreadable or unknown values keep
// their defaults; read failures are logged, never returned.
func (p *Preferences) Load(ctx context.Context) {
	currency, err := p.store.Get(ctx, CurrencyKey)
	switch {
	case err == nil:
		if c := Currency(currency); c.Valid() {
			p.mu.Lock()
			p.currency = c
			p.mu.Unlock()
		} else {
			p.logger.Warn("ignoring unknown stored currency", zap.String("currency", currency))
		}
	case !kv.IsNotFound(err):
		p.logger.Error("failed to load currency", zap.Error(err))
	}

	theme, err := p.store.Get(ctx, ThemeKey)
	switch {
	case err == nil:
		p.mu.Lock()
		if Theme(theme) == ThemeDark {
			p.theme = ThemeDark
		} else {
			p.theme = ThemeLight
		}
		p.mu.Unlock()
	case !kv.IsNotFound(err):
		p.logger.Error("failed to load theme", zap.Error(err))
	}

	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
}

// Loaded reports whether Load has completed.
func (p *Preferences) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Currency returns the selected currency.
func (p *Preferences) Currency() Currency {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currency
}

// Symbol returns the selected currency's symbol.
func (p *Preferences) Symbol() string {
	return p.Currency().Symbol()
}

// Theme returns the selected theme.
func (p *Preferences) Theme() Theme {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theme
}

// IsDark reports whether the dark theme is selected.
func (p *Preferences) IsDark() bool {
	return p.Theme() == ThemeDark
}

// SetCurrency selects c and persists it.
func (p *Preferences) SetCurrency(ctx context.Context, c Currency) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, string(c))
	}
	p.mu.Lock()
	p.currency = c
	p.mu.Unlock()

	if err := p.store.Set(ctx, CurrencyKey, string(c), 0); err != nil {
		p.logger.Error("failed to save currency", zap.Error(err))
		return err
	}
	return nil
}

// ToggleTheme flips between dark and light, persists the result and
// returns it.
func (p *Preferences) ToggleTheme(ctx context.Context) (Theme, error) {
	p.mu.Lock()
	if p.theme == ThemeDark {
		p.theme = ThemeLight
	} else {
		p.theme = ThemeDark
	}
	theme := p.theme
	p.mu.Unlock()

	if err := p.store.Set(ctx, ThemeKey, string(theme), 0); err != nil {
		p.logger.Error("failed to save theme", zap.Error(err))
		return theme, err
	}
	return theme, nil
}

// Snapshot returns the current values.
func (p *Preferences) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Currency:       p.currency,
		CurrencySymbol: p.currency.Symbol(),
		Theme:          p.theme,
		DarkMode:       p.theme == ThemeDark,
	}
}
