package finance

import (
	"errors"
	"fmt"
	"net/http"

	"finance-sync/pkg/rest"
	"finance-sync/pkg/transport"
)

var (
	// ErrNotFound is returned when an id is not in the cached collection.
	ErrNotFound = errors.New("finance: not found")

	// ErrNoAccount is returned when a transaction needs an account and none exists.
	ErrNoAccount = errors.New("finance: no account available")

	// ErrProtectedCategory is returned when deleting a built-in category.
	ErrProtectedCategory = errors.New("finance: built-in categories cannot be deleted")

	// ErrReadOnlyEvent is returned when editing a calendar event that is not a user bill.
	ErrReadOnlyEvent = errors.New("finance: only user bills can be changed")
)

// ValidationError is a client-side check that failed before any call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("finance: invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// validate runs a request DTO's checks and maps failures to *ValidationError.
func validate(v interface{ Validate() error }) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	var fe *rest.FieldError
	if errors.As(err, &fe) {
		return &ValidationError{Field: fe.Field, Message: fe.Message}
	}
	return err
}

// TransferStage names the write of a goal transfer that failed.
type TransferStage string

const (
	StageProgress TransferStage = "progress"
	StageLedger   TransferStage = "ledger"
)

// GoalTransferError reports a failed deposit or withdrawal. When the ledger
// write fails after the progress write succeeded, a reversing progress
// write is attempted; Compensated reports whether it went through.
type GoalTransferError struct {
	GoalID          string
	Stage           TransferStage
	Err             error
	Compensated     bool
	CompensationErr error
}

func (e *GoalTransferError) Error() string {
	msg := fmt.Sprintf("finance: goal %s transfer failed at %s write: %v", e.GoalID, e.Stage, e.Err)
	switch {
	case e.Stage != StageLedger:
	case e.Compensated:
		msg += " (progress reverted)"
	case e.CompensationErr != nil:
		msg += fmt.Sprintf(" (revert failed: %v)", e.CompensationErr)
	}
	return msg
}

func (e *GoalTransferError) Unwrap() error {
	return e.Err
}

// protectedCategory maps the server's 403 on category delete.
func protectedCategory(err error) error {
	if transport.StatusCode(err) == http.StatusForbidden {
		return fmt.Errorf("%w: %w", ErrProtectedCategory, err)
	}
	return err
}
