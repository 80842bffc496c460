package kv

import (
	"errors"
	"fmt"
	"strings"
)

// Common store errors.
var (
	// ErrKeyNotFound is returned when a key does not exist or has expired
	ErrKeyNotFound = errors.New("kv: key not found")

	// ErrInvalidKey is returned when a key is empty, too long or contains control characters
	ErrInvalidKey = errors.New("kv: invalid key")

	// ErrUnavailable is returned when the backing store cannot be reached
	ErrUnavailable = errors.New("kv: store unavailable")

	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("kv: store closed")
)

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ClassifyError returns a short label for err, used as a metrics label.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrClosed):
		return "closed"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connect") || strings.Contains(msg, "dial"):
		return "connection"
	case strings.Contains(msg, "marshal") || strings.Contains(msg, "decode"):
		return "serialization"
	default:
		return "other"
	}
}

// WrapError adds the store name and operation to err.
func WrapError(err error, store string, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("kv store %s %s: %w", store, operation, err)
}
