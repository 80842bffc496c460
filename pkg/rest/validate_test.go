package rest

import (
	"errors"
	"testing"
	"time"
)

func TestValidTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"00:00", true},
		{"09:05", true},
		{"23:59", true},
		{"24:00", false},
		{"9:05", false},
		{"12:60", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidTimeOfDay(tt.in); got != tt.want {
			t.Errorf("ValidTimeOfDay(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestValidate(t *testing.T) {
	today := NewDate(time.Now())
	validTxn := TransactionWrite{
		TransactionDate: today,
		TransactionTime: "12:00",
		Type:            TypeExpense,
		Amount:          10,
		Category:        "Food",
		Merchant:        "Cafe",
		AccountID:       "a1",
	}
	noTime := validTxn
	noTime.TransactionTime = ""
	badType := validTxn
	badType.Type = "Transfer"

	tests := []struct {
		name  string
		in    interface{ Validate() error }
		field string
	}{
		{"account ok", AccountCreate{Name: "Cash"}, ""},
		{"account blank", AccountCreate{Name: "  "}, "name"},
		{"category ok", CategoryCreate{Name: "Pets", Type: TypeExpense}, ""},
		{"category type", CategoryCreate{Name: "Pets", Type: "Other"}, "type"},
		{"txn ok", validTxn, ""},
		{"txn time", noTime, "transaction_time"},
		{"txn type", badType, "type"},
		{"goal ok", GoalCreate{Name: "Trip", TargetAmount: 500, TargetDate: today}, ""},
		{"goal date", GoalCreate{Name: "Trip", TargetAmount: 500}, "target_date"},
		{"goal saved", GoalCreate{Name: "Trip", TargetAmount: 500, TargetDate: today, CurrentSaved: -1}, "current_saved"},
		{"budget ok", BudgetWrite{Category: "Food", LimitAmount: 100, Period: PeriodWeekly}, ""},
		{"budget period", BudgetWrite{Category: "Food", LimitAmount: 100, Period: "Daily"}, "period"},
		{"bill ok", BillWrite{Name: "Rent", Amount: 900, NextDueDate: today, Frequency: "Bi-Weekly"}, ""},
		{"bill frequency", BillWrite{Name: "Rent", Amount: 900, NextDueDate: today, Frequency: "Weekly"}, "frequency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("Expected FieldError, got %v", err)
			}
			if fe.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, fe.Field)
			}
		})
	}
}
