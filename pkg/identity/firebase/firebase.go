package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"finance-sync/pkg/identity"
	"finance-sync/pkg/kv"
	"finance-sync/pkg/logging"
	"finance-sync/pkg/resilience"

	"go.uber.org/zap"
)

// RefreshTokenKey is the store key the refresh token is kept under.
var RefreshTokenKey = kv.NewKeyPattern("firebase", ":").MustBuild("refreshToken")

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"

	// refreshWindow is how close to expiry a cached ID token is renewed.
	refreshWindow = 5 * time.Minute
)

// ErrMissingAPIKey is returned by NewProvider without an API key.
var ErrMissingAPIKey = errors.New("firebase: API key is required")

// Config configures the REST provider.
type Config struct {
	APIKey      string `yaml:"api_key"`
	IdentityURL string `yaml:"identity_url"`
	TokenURL    string `yaml:"token_url"`
}

// Provider implements identity.Provider over the Identity Toolkit and
// Secure Token REST APIs.
type Provider struct {
	config Config
	doer   resilience.Doer
	store  kv.Store
	logger *logging.Logger
	now    func() time.Time

	mu           sync.Mutex
	user         *identity.User
	idToken      string
	expiresAt    time.Time
	refreshToken string
	listeners    map[int]func(*identity.User)
	nextID       int
}

// NewProvider creates a provider. doer defaults to http.DefaultClient; store
// may be nil, in which case sessions do not survive restarts.
func NewProvider(config Config, doer resilience.Doer, store kv.Store) (*Provider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.IdentityURL == "" {
		config.IdentityURL = DefaultIdentityURL
	}
	if config.TokenURL == "" {
		config.TokenURL = DefaultTokenURL
	}
	config.IdentityURL = strings.TrimRight(config.IdentityURL, "/")
	config.TokenURL = strings.TrimRight(config.TokenURL, "/")
	if doer == nil {
		doer = http.DefaultClient
	}

	return &Provider{
		config:    config,
		doer:      doer,
		store:     store,
		logger:    logging.Global().Named("firebase"),
		now:       time.Now,
		listeners: make(map[int]func(*identity.User)),
	}, nil
}

// Restore resumes the session saved by a previous run. A stale refresh
// token is discarded and the provider stays signed out.
func (p *Provider) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	refreshToken, err := p.store.Get(ctx, RefreshTokenKey)
	if err != nil {
		if kv.IsNotFound(err) {
			return nil
		}
		return err
	}

	p.mu.Lock()
	p.refreshToken = refreshToken
	p.mu.Unlock()

	if _, err := p.refresh(ctx); err != nil {
		p.logger.Warn("saved session could not be restored", zap.Error(err))
		p.clear(ctx)
		return nil
	}
	p.notify()
	return nil
}

// OnSessionChange implements identity.Provider.
func (p *Provider) OnSessionChange(fn func(*identity.User)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	user := p.currentUserLocked()
	p.mu.Unlock()

	fn(user)

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// CurrentUser returns the signed-in user, or nil.
func (p *Provider) CurrentUser() *identity.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentUserLocked()
}

func (p *Provider) currentUserLocked() *identity.User {
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// IDToken implements identity.Provider.
func (p *Provider) IDToken(ctx context.Context, forceRefresh bool) (identity.Token, error) {
	p.mu.Lock()
	if p.user == nil {
		p.mu.Unlock()
		return identity.Token{}, identity.ErrNotAuthenticated
	}
	token := identity.Token{Value: p.idToken, ExpiresAt: p.expiresAt}
	fresh := token.Value != "" && p.now().Add(refreshWindow).Before(p.expiresAt)
	p.mu.Unlock()

	if fresh && !forceRefresh {
		return token, nil
	}
	return p.refresh(ctx)
}

type authResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

type credentials struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// SignIn implements identity.Provider.
func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	var resp authResponse
	err := p.post(ctx, p.identityURL("accounts:signInWithPassword"),
		credentials{Email: email, Password: password, ReturnSecureToken: true}, &resp)
	if err != nil {
		return err
	}
	p.signedIn(ctx, resp)
	return nil
}

// SignUp implements identity.Provider.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	var resp authResponse
	err := p.post(ctx, p.identityURL("accounts:signUp"),
		credentials{Email: email, Password: password, ReturnSecureToken: true}, &resp)
	if err != nil {
		return nil, err
	}
	return p.signedIn(ctx, resp), nil
}

// UpdateDisplayName implements identity.Provider.
func (p *Provider) UpdateDisplayName(ctx context.Context, displayName string) error {
	token, err := p.IDToken(ctx, false)
	if err != nil {
		return err
	}

	req := struct {
		IDToken           string `json:"idToken"`
		DisplayName       string `json:"displayName"`
		ReturnSecureToken bool   `json:"returnSecureToken"`
	}{token.Value, displayName, false}
	if err := p.post(ctx, p.identityURL("accounts:update"), req, nil); err != nil {
		return err
	}

	p.mu.Lock()
	if p.user != nil {
		p.user.DisplayName = displayName
	}
	p.mu.Unlock()
	return nil
}

// SignOut implements identity.Provider.
func (p *Provider) SignOut(ctx context.Context) error {
	p.clear(ctx)
	p.notify()
	return nil
}

func (p *Provider) signedIn(ctx context.Context, resp authResponse) *identity.User {
	claims := parseClaims(resp.IDToken)
	user := &identity.User{UID: resp.LocalID, Email: resp.Email, DisplayName: resp.DisplayName}
	claims.fill(user)

	p.mu.Lock()
	p.user = user
	p.idToken = resp.IDToken
	p.expiresAt = p.expiry(claims, resp.ExpiresIn)
	p.refreshToken = resp.RefreshToken
	u := *user
	p.mu.Unlock()

	p.saveRefreshToken(ctx, resp.RefreshToken)
	p.logger.Info("signed in", zap.String("uid", u.UID))
	p.notify()
	return &u
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// refresh exchanges the refresh token for a new ID token.
func (p *Provider) refresh(ctx context.Context) (identity.Token, error) {
	p.mu.Lock()
	refreshToken := p.refreshToken
	p.mu.Unlock()
	if refreshToken == "" {
		return identity.Token{}, identity.ErrNotAuthenticated
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var resp refreshResponse
	err := p.do(ctx, p.config.TokenURL+"/token?key="+url.QueryEscape(p.config.APIKey),
		"application/x-www-form-urlencoded", []byte(form.Encode()), &resp)
	if err != nil {
		return identity.Token{}, err
	}

	claims := parseClaims(resp.IDToken)
	expiresAt := p.expiry(claims, resp.ExpiresIn)

	p.mu.Lock()
	if p.user == nil {
		p.user = &identity.User{UID: resp.UserID}
	}
	claims.fill(p.user)
	p.idToken = resp.IDToken
	p.expiresAt = expiresAt
	if resp.RefreshToken != "" {
		p.refreshToken = resp.RefreshToken
	}
	newRefresh := p.refreshToken
	p.mu.Unlock()

	if newRefresh != refreshToken {
		p.saveRefreshToken(ctx, newRefresh)
	}
	return identity.Token{Value: resp.IDToken, ExpiresAt: expiresAt}, nil
}

func (p *Provider) clear(ctx context.Context) {
	p.mu.Lock()
	p.user = nil
	p.idToken = ""
	p.expiresAt = time.Time{}
	p.refreshToken = ""
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Delete(ctx, RefreshTokenKey); err != nil {
			p.logger.Warn("failed to delete refresh token", zap.Error(err))
		}
	}
}

func (p *Provider) saveRefreshToken(ctx context.Context, token string) {
	if p.store == nil || token == "" {
		return
	}
	if err := p.store.Set(ctx, RefreshTokenKey, token, 0); err != nil {
		p.logger.Warn("failed to persist refresh token", zap.Error(err))
	}
}

func (p *Provider) notify() {
	p.mu.Lock()
	user := p.currentUserLocked()
	listeners := make([]func(*identity.User), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(user)
	}
}

func (p *Provider) expiry(c claims, expiresIn string) time.Time {
	if !c.ExpiresAt.IsZero() {
		return c.ExpiresAt
	}
	if secs, err := strconv.Atoi(expiresIn); err == nil {
		return p.now().Add(time.Duration(secs) * time.Second)
	}
	return time.Time{}
}

func (p *Provider) identityURL(method string) string {
	return p.config.IdentityURL + "/" + method + "?key=" + url.QueryEscape(p.config.APIKey)
}

func (p *Provider) post(ctx context.Context, target string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("firebase: encode request: %w", err)
	}
	return p.do(ctx, target, "application/json", body, out)
}

func (p *Provider) do(ctx context.Context, target, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("firebase: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.doer.Do(req)
	if err != nil {
		return &identity.AuthError{Op: "provider", Message: "Network error. Please check your connection.", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("firebase: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("firebase: decode response: %w", err)
	}
	return nil
}
