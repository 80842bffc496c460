package rest

import (
	"github.com/shopspring/decimal"
)

// Wire enums.
const (
	TypeIncome  = "Income"
	TypeExpense = "Expense"

	PeriodMonthly = "Monthly"
	PeriodWeekly  = "Weekly"

	EventBillDue        = "Bill Due"
	EventIncomeExpected = "Income Expected"
	EventBudgetReset    = "Budget Reset"
	EventUserBill       = "User Bill"
)

// BillFrequencies lists the recurrence values the server accepts.
var BillFrequencies = []string{"Monthly", "Bi-Weekly", "Quarterly", "Annually"}

// Responses decode money as decimal.Decimal; requests send float64 since
// the server models amounts as JSON numbers.

type Account struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id,omitempty"`
	Name           string          `json:"name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

type AccountCreate struct {
	Name string `json:"name"`
}

type Category struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	IsDefault bool   `json:"is_default"`
}

type CategoryCreate struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id,omitempty"`
	TransactionDate Date            `json:"transaction_date"`
	TransactionTime string          `json:"transaction_time,omitempty"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Category        string          `json:"category"`
	Merchant        string          `json:"merchant"`
	AccountID       string          `json:"account_id"`
}

type TransactionWrite struct {
	TransactionDate Date    `json:"transaction_date"`
	TransactionTime string  `json:"transaction_time"`
	Type            string  `json:"type"`
	Amount          float64 `json:"amount"`
	Category        string  `json:"category"`
	Merchant        string  `json:"merchant"`
	AccountID       string  `json:"account_id"`
}

type Goal struct {
	ID                        string          `json:"id"`
	UserID                    string          `json:"user_id,omitempty"`
	Name                      string          `json:"name"`
	TargetAmount              decimal.Decimal `json:"target_amount"`
	TargetDate                Date            `json:"target_date"`
	CurrentSaved              decimal.Decimal `json:"current_saved"`
	DaysRemaining             int             `json:"days_remaining"`
	AmountToSave              decimal.Decimal `json:"amount_to_save"`
	DailyInvestmentRequired   decimal.Decimal `json:"daily_investment_required"`
	WeeklyInvestmentRequired  decimal.Decimal `json:"weekly_investment_required"`
	MonthlyInvestmentRequired decimal.Decimal `json:"monthly_investment_required"`
}

type GoalCreate struct {
	Name         string  `json:"name"`
	TargetAmount float64 `json:"target_amount"`
	TargetDate   Date    `json:"target_date"`
	CurrentSaved float64 `json:"current_saved"`
}

type GoalProgress struct {
	AmountChange float64 `json:"amount_change"`
}

type GoalProgressResult struct {
	Message  string          `json:"message"`
	NewSaved decimal.Decimal `json:"new_saved"`
}

type Budget struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id,omitempty"`
	Name               string          `json:"name"`
	Category           string          `json:"category"`
	LimitAmount        decimal.Decimal `json:"limit_amount"`
	Period             string          `json:"period"`
	CurrentSpending    decimal.Decimal `json:"current_spending"`
	RemainingBudget    decimal.Decimal `json:"remaining_budget"`
	DaysRemaining      int             `json:"days_remaining"`
	DailySpendingLimit decimal.Decimal `json:"daily_spending_limit"`
}

type BudgetWrite struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	LimitAmount float64 `json:"limit_amount"`
	Period      string  `json:"period"`
}

type Bill struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id,omitempty"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	NextDueDate Date            `json:"next_due_date"`
	Frequency   string          `json:"frequency"`
	Category    string          `json:"category"`
}

type BillWrite struct {
	Name        string  `json:"name"`
	Amount      float64 `json:"amount"`
	NextDueDate Date    `json:"next_due_date"`
	Frequency   string  `json:"frequency"`
	Category    string  `json:"category,omitempty"`
}

// CalendarEvent amounts are signed: negative for bills.
type CalendarEvent struct {
	ID        string           `json:"id,omitempty"`
	EventDate Date             `json:"event_date"`
	Type      string           `json:"type"`
	Name      string           `json:"name"`
	Amount    *decimal.Decimal `json:"amount"`
	Source    string           `json:"source,omitempty"`
}

// CalendarReport maps ISO dates to that day's events.
type CalendarReport map[string][]CalendarEvent
