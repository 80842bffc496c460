package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finance-sync/pkg/kv"
)

// State is the lifecycle of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// TokenKey is the store key the current ID token is persisted under.
var TokenKey = kv.NewKeyPattern("finance-assistant", ":").MustBuild("idToken")

var (
	// ErrProviderNotConfigured is reported when the session has no identity provider.
	ErrProviderNotConfigured = errors.New("identity: provider not configured")

	// ErrNotAuthenticated is returned by RefreshToken when no user is signed in.
	ErrNotAuthenticated = errors.New("identity: not authenticated")
)

// User is the signed-in principal as reported by the provider.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Token is a bearer ID token and its expiry. A zero ExpiresAt is unknown.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Provider is the external identity service.
type Provider interface {
	// OnSessionChange registers fn for sign-in and sign-out events. The
	// current state is delivered once on registration. The returned func
	// unregisters fn.
	OnSessionChange(fn func(*User)) (unsubscribe func())

	// IDToken returns the current user's ID token, refreshing it when
	// forceRefresh is set or it is close to expiry.
	IDToken(ctx context.Context, forceRefresh bool) (Token, error)

	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) (*User, error)
	UpdateDisplayName(ctx context.Context, displayName string) error
	SignOut(ctx context.Context) error
}

// TokenSink receives the bearer token; transport.Client implements it.
type TokenSink interface {
	SetAuthToken(token string)
	ClearAuthToken()
}

// AuthError is a failed identity operation with a user-facing message.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity: %s failed", e.Op)
	}
	return fmt.Sprintf("identity: %s: %s", e.Op, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err carries an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func wrapAuthError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return &AuthError{Op: op, Message: ae.Message, Err: ae.Err}
	}
	return &AuthError{Op: op, Message: err.Error(), Err: err}
}
