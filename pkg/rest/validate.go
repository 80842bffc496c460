package rest

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// FieldError is a request DTO that failed client-side validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var timeOfDay = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidTimeOfDay reports whether s is HH:MM on a 24 hour clock.
func ValidTimeOfDay(s string) bool {
	return timeOfDay.MatchString(s)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &FieldError{Field: field, Message: "is required"}
	}
	return nil
}

func positive(field string, value float64) error {
	if value <= 0 {
		return &FieldError{Field: field, Message: "must be greater than 0"}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))}
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (a AccountCreate) Validate() error {
	return required("name", a.Name)
}

func (c CategoryCreate) Validate() error {
	return firstError(
		required("name", c.Name),
		oneOf("type", c.Type, TypeIncome, TypeExpense),
	)
}

func (t TransactionWrite) Validate() error {
	var dateErr error
	if t.TransactionDate.IsZero() {
		dateErr = &FieldError{Field: "transaction_date", Message: "is required"}
	}
	var timeErr error
	if !ValidTimeOfDay(t.TransactionTime) {
		timeErr = &FieldError{Field: "transaction_time", Message: "must be HH:MM"}
	}
	return firstError(
		dateErr,
		timeErr,
		oneOf("type", t.Type, TypeIncome, TypeExpense),
		positive("amount", t.Amount),
		required("category", t.Category),
		required("merchant", t.Merchant),
		required("account_id", t.AccountID),
	)
}

func (g GoalCreate) Validate() error {
	var dateErr error
	if g.TargetDate.IsZero() {
		dateErr = &FieldError{Field: "target_date", Message: "is required"}
	}
	var savedErr error
	if g.CurrentSaved < 0 {
		savedErr = &FieldError{Field: "current_saved", Message: "must not be negative"}
	}
	return firstError(
		required("name", g.Name),
		positive("target_amount", g.TargetAmount),
		dateErr,
		savedErr,
	)
}

func (b BudgetWrite) Validate() error {
	return firstError(
		required("category", b.Category),
		positive("limit_amount", b.LimitAmount),
		oneOf("period", b.Period, PeriodMonthly, PeriodWeekly),
	)
}

func (b BillWrite) Validate() error {
	var dateErr error
	if b.NextDueDate.IsZero() {
		dateErr = &FieldError{Field: "next_due_date", Message: "is required"}
	}
	return firstError(
		required("name", b.Name),
		positive("amount", b.Amount),
		dateErr,
		oneOf("frequency", b.Frequency, BillFrequencies...),
	)
}
