package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"finance-sync/pkg/kv"
	"finance-sync/pkg/logging"
	"finance-sync/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Observer is notified after every state change.
type Observer func(state State, user *User)

// SessionConfig wires a Session to its collaborators. Provider may be nil,
// in which case the session settles as unauthenticated.
type SessionConfig struct {
	Provider Provider
	Sink     TokenSink
	Store    kv.Store
	Metrics  metrics.MetricsCollector
}

// Session tracks who is signed in and keeps the transport's bearer token
// current.
type Session struct {
	provider Provider
	sink     TokenSink
	store    kv.Store
	metrics  metrics.MetricsCollector
	logger   *logging.Logger
	refresh  singleflight.Group

	mu          sync.RWMutex
	state       State
	user        *User
	token       string
	lastErr     error
	started     bool
	baseCtx     context.Context
	unsubscribe func()
	observers   map[int]Observer
	nextID      int

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSession creates an uninitialized session.
func NewSession(config SessionConfig) *Session {
	collector := config.Metrics
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &Session{
		provider:  config.Provider,
		sink:      config.Sink,
		store:     config.Store,
		metrics:   collector,
		logger:    logging.Global().Named("identity"),
		observers: make(map[int]Observer),
		ready:     make(chan struct{}),
	}
}

// Start subscribes to the provider's session changes. Calling it again is a
// no-op. A token persisted by a previous run is handed to the sink straight
// away so early requests carry it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.baseCtx = context.WithoutCancel(ctx)

	if s.provider == nil {
		s.state = StateUnauthenticated
		s.lastErr = ErrProviderNotConfigured
		s.mu.Unlock()
		s.logger.Warn("no identity provider configured")
		s.markReady()
		s.notify()
		return ErrProviderNotConfigured
	}
	s.state = StateInitializing
	s.mu.Unlock()

	s.restoreToken(ctx)

	unsubscribe := s.provider.OnSessionChange(s.handleChange)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

// Close unsubscribes from the provider.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Session) restoreToken(ctx context.Context) {
	if s.store == nil || s.sink == nil {
		return
	}
	token, err := s.store.Get(ctx, TokenKey)
	if err != nil {
		if !kv.IsNotFound(err) {
			s.logger.Warn("failed to read persisted token", zap.Error(err))
		}
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.sink.SetAuthToken(token)
}

func (s *Session) handleChange(user *User) {
	s.mu.RLock()
	ctx := s.baseCtx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if user == nil {
		s.mu.Lock()
		s.state = StateUnauthenticated
		s.user = nil
		s.token = ""
		s.mu.Unlock()

		if s.sink != nil {
			s.sink.ClearAuthToken()
		}
		if s.store != nil {
			if err := s.store.Delete(ctx, TokenKey); err != nil {
				s.logger.Warn("failed to delete persisted token", zap.Error(err))
			}
		}
		s.logger.Info("signed out")
		s.markReady()
		s.notify()
		return
	}

	token, err := s.provider.IDToken(ctx, false)
	if err != nil {
		// The first event must settle the session; later failures keep it.
		s.mu.Lock()
		s.lastErr = wrapAuthError("token", err)
		settle := s.state == StateInitializing
		if settle {
			s.state = StateUnauthenticated
			s.user = nil
			s.token = ""
		}
		s.mu.Unlock()
		s.logger.Error("failed to fetch ID token", zap.String("uid", user.UID), zap.Error(err))
		if settle && s.sink != nil {
			s.sink.ClearAuthToken()
		}
		s.markReady()
		if settle {
			s.notify()
		}
		return
	}

	u := *user
	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = &u
	s.token = token.Value
	s.lastErr = nil
	s.mu.Unlock()

	s.applyToken(ctx, token)
	s.logger.Info("signed in", zap.String("uid", u.UID))
	s.markReady()
	s.notify()
}

// applyToken forwards token to the sink and persists it until it expires.
func (s *Session) applyToken(ctx context.Context, token Token) {
	if s.sink != nil {
		s.sink.SetAuthToken(token.Value)
	}
	if s.store == nil {
		return
	}

	var ttl time.Duration
	if !token.ExpiresAt.IsZero() {
		ttl = time.Until(token.ExpiresAt)
		if ttl <= 0 {
			return
		}
	}
	if err := s.store.Set(ctx, TokenKey, token.Value, ttl); err != nil {
		s.logger.Warn("failed to persist token", zap.Error(err))
	}
}

func (s *Session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) notify() {
	s.mu.RLock()
	state := s.state
	var user *User
	if s.user != nil {
		u := *s.user
		user = &u
	}
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(state, user)
	}
}

// Subscribe registers fn for state changes and returns a func that removes it.
func (s *Session) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Login signs in with email and password. State changes when the provider
// reports the new session.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if s.provider == nil {
		return wrapAuthError("login", ErrProviderNotConfigured)
	}
	if err := s.provider.SignIn(ctx, email, password); err != nil {
		s.logger.Warn("login failed", zap.Error(err))
		return wrapAuthError("login", err)
	}
	return nil
}

// Register creates an account and sets its display name.
func (s *Session) Register(ctx context.Context, email, password, displayName string) error {
	if s.provider == nil {
		return wrapAuthError("register", ErrProviderNotConfigured)
	}
	if _, err := s.provider.SignUp(ctx, email, password); err != nil {
		s.logger.Warn("registration failed", zap.Error(err))
		return wrapAuthError("register", err)
	}
	if displayName == "" {
		return nil
	}
	if err := s.provider.UpdateDisplayName(ctx, displayName); err != nil {
		return wrapAuthError("register", err)
	}
	return nil
}

// Logout signs out of the provider.
func (s *Session) Logout(ctx context.Context) error {
	if s.provider == nil {
		return wrapAuthError("logout", ErrProviderNotConfigured)
	}
	if err := s.provider.SignOut(ctx); err != nil {
		return wrapAuthError("logout", err)
	}
	return nil
}

// RefreshToken forces a new ID token and forwards it to the sink.
// Concurrent callers share one provider round trip.
func (s *Session) RefreshToken(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", wrapAuthError("refresh", ErrProviderNotConfigured)
	}
	if s.State() != StateAuthenticated {
		return "", ErrNotAuthenticated
	}

	v, err, _ := s.refresh.Do("refresh", func() (interface{}, error) {
		start := time.Now()
		token, err := s.provider.IDToken(ctx, true)
		s.metrics.RecordTokenRefresh(err == nil, time.Since(start))
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		s.token = token.Value
		s.mu.Unlock()
		s.applyToken(ctx, token)
		s.logger.Debug("token refreshed")
		return token.Value, nil
	})
	if err != nil {
		s.mu.Lock()
		s.lastErr = wrapAuthError("refresh", err)
		s.mu.Unlock()
		return "", wrapAuthError("refresh", err)
	}
	return v.(string), nil
}

// TransportRefresh is the refresh callback for transport.Client. A failed
// refresh signs the user out.
func (s *Session) TransportRefresh(ctx context.Context) error {
	if _, err := s.RefreshToken(ctx); err != nil {
		s.logger.Warn("refresh failed, signing out", zap.Error(err))
		if errors.Is(err, ErrNotAuthenticated) {
			return err
		}
		if logoutErr := s.Logout(ctx); logoutErr != nil {
			s.logger.Error("logout after failed refresh", zap.Error(logoutErr))
		}
		return err
	}
	return nil
}

// HandleUnauthorized is the transport's callback for a 401 that survived a
// refresh. The server no longer accepts this user, so the session ends.
func (s *Session) HandleUnauthorized(ctx context.Context) {
	if s.State() != StateAuthenticated {
		return
	}
	s.logger.Warn("token rejected after refresh, signing out")
	if err := s.Logout(ctx); err != nil {
		s.logger.Error("logout after rejected token", zap.Error(err))
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Token returns the current ID token, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// LastError returns the most recent provider failure.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Initializing is true until the provider has reported the first session state.
func (s *Session) Initializing() bool {
	select {
	case <-s.ready:
		return false
	default:
		return true
	}
}

// WaitReady blocks until initialization finishes or ctx is done.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
