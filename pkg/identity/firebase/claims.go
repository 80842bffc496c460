package firebase

import (
	"time"

	"finance-sync/pkg/identity"

	"github.com/golang-jwt/jwt/v4"
)

type claims struct {
	UserID    string
	Email     string
	Name      string
	ExpiresAt time.Time
}

// parseClaims reads the ID token payload without verifying the signature;
// the backend verifies tokens, the client only needs expiry and profile.
func parseClaims(token string) claims {
	var c claims
	if token == "" {
		return c
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return c
	}

	c.UserID, _ = mc["user_id"].(string)
	if c.UserID == "" {
		c.UserID, _ = mc["sub"].(string)
	}
	c.Email, _ = mc["email"].(string)
	c.Name, _ = mc["name"].(string)
	if exp, ok := mc["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return c
}

func (c claims) fill(u *identity.User) {
	if c.UserID != "" {
		u.UID = c.UserID
	}
	if c.Email != "" {
		u.Email = c.Email
	}
	if c.Name != "" {
		u.DisplayName = c.Name
	}
}
