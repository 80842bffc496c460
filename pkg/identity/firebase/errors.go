package firebase

import (
	"encoding/json"
	"fmt"
	"strings"

	"finance-sync/pkg/identity"
)

var messages = map[string]string{
	"EMAIL_NOT_FOUND":             "No account found with this email.",
	"INVALID_PASSWORD":            "Incorrect password.",
	"INVALID_LOGIN_CREDENTIALS":   "Incorrect email or password.",
	"USER_DISABLED":               "This account has been disabled.",
	"EMAIL_EXISTS":                "An account with this email already exists.",
	"INVALID_EMAIL":               "The email address is badly formatted.",
	"WEAK_PASSWORD":               "Password should be at least 6 characters.",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts. Please try again later.",
	"TOKEN_EXPIRED":               "Your session has expired. Please sign in again.",
	"INVALID_REFRESH_TOKEN":       "Your session has expired. Please sign in again.",
	"USER_NOT_FOUND":              "No account found for this session.",
}

// ProviderError is the error code reported by the identity service.
type ProviderError struct {
	Status int
	Code   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("firebase: %s (status %d)", e.Code, e.Status)
}

// decodeError turns {"error":{"message":"CODE : detail"}} into an
// *identity.AuthError carrying a readable message.
func decodeError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	code := ""
	if err := json.Unmarshal(body, &envelope); err == nil {
		code = envelope.Error.Message
	}
	if code == "" {
		code = fmt.Sprintf("HTTP_%d", status)
	}

	key, detail, _ := strings.Cut(code, " : ")
	key = strings.TrimSpace(key)
	message, ok := messages[key]
	if !ok {
		message = strings.TrimSpace(detail)
		if message == "" {
			message = key
		}
	}

	return &identity.AuthError{
		Op:      "provider",
		Message: message,
		Err:     &ProviderError{Status: status, Code: key},
	}
}
