package finance

import (
	"time"

	"finance-sync/pkg/rest"

	"github.com/shopspring/decimal"
)

// Direction is whether a transaction adds to or subtracts from the balance.
type Direction string

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

// Valid reports whether d is Income or Expense.
func (d Direction) Valid() bool {
	return d == Income || d == Expense
}

func (d Direction) wire() string {
	if d == Income {
		return rest.TypeIncome
	}
	return rest.TypeExpense
}

func directionFromWire(t string) Direction {
	if t == rest.TypeIncome {
		return Income
	}
	return Expense
}

// SavingsCategory labels goals and the transactions goal transfers write.
const SavingsCategory = "Savings"

// Collection names a cached collection; used for change notifications and
// metric labels.
type Collection string

const (
	CollectionTransactions Collection = "transactions"
	CollectionAccounts     Collection = "accounts"
	CollectionCategories   Collection = "categories"
	CollectionBudgets      Collection = "budgets"
	CollectionGoals        Collection = "goals"
	CollectionCalendar     Collection = "calendar"
)

// Transaction is a ledger entry. Date is the calendar date at UTC midnight.
type Transaction struct {
	ID          string          `json:"id"`
	Direction   Direction       `json:"direction"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Time        string          `json:"time"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	AccountID   string          `json:"account_id,omitempty"`
}

// signed returns the amount's contribution to the balance.
func (t Transaction) signed() decimal.Decimal {
	if t.Direction == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

type Account struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	IsDefault bool      `json:"is_default"`
}

// Budget mirrors the server's budget. Spent, Remaining, DailyLimit and
// DaysRemaining are server-derived and trusted as-is.
type Budget struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Allocated     decimal.Decimal `json:"allocated"`
	Period        string          `json:"period"`
	Spent         decimal.Decimal `json:"spent"`
	Remaining     decimal.Decimal `json:"remaining"`
	DailyLimit    decimal.Decimal `json:"daily_limit"`
	DaysRemaining int             `json:"days_remaining"`
	Color         string          `json:"color"`
}

// WeeklySafeLimit is a display hint: the remaining amount for weekly
// budgets, seven days of the daily limit otherwise, never negative.
func (b Budget) WeeklySafeLimit() decimal.Decimal {
	var v decimal.Decimal
	if b.Period == rest.PeriodWeekly {
		v = b.Remaining
	} else {
		v = b.DailyLimit.Mul(decimal.NewFromInt(7))
	}
	return decimal.Max(v, decimal.Zero)
}

type Goal struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Target        decimal.Decimal `json:"target"`
	Current       decimal.Decimal `json:"current"`
	Deadline      time.Time       `json:"deadline"`
	Category      string          `json:"category"`
	DaysRemaining int             `json:"days_remaining"`
	AmountToSave  decimal.Decimal `json:"amount_to_save"`
	DailyNeeded   decimal.Decimal `json:"daily_needed"`
	WeeklyNeeded  decimal.Decimal `json:"weekly_needed"`
	MonthlyNeeded decimal.Decimal `json:"monthly_needed"`
}

// Progress is Current/Target, or 0 when Target is 0.
func (g Goal) Progress() float64 {
	if g.Target.Sign() <= 0 {
		return 0
	}
	return g.Current.Div(g.Target).InexactFloat64()
}

// Completed reports whether the target has been reached.
func (g Goal) Completed() bool {
	return g.Current.GreaterThanOrEqual(g.Target)
}

// CalendarEvent is one entry of the monthly calendar report. Amount is
// signed, negative for bills, and nil when the server sends none.
type CalendarEvent struct {
	ID     string           `json:"id,omitempty"`
	Date   time.Time        `json:"date"`
	Type   string           `json:"type"`
	Name   string           `json:"name"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Source string           `json:"source,omitempty"`
}

// Editable reports whether the event is a user-entered bill.
func (e CalendarEvent) Editable() bool {
	return e.Type == rest.EventUserBill
}

// Calendar maps ISO dates to the events on that day.
type Calendar map[string][]CalendarEvent

func (cal Calendar) clone() Calendar {
	out := make(Calendar, len(cal))
	for day, events := range cal {
		out[day] = append([]CalendarEvent(nil), events...)
	}
	return out
}

// MonthlySummary aggregates one calendar month of transactions.
type MonthlySummary struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
	Count    int             `json:"count"`
}

// CategoryTotal is the expense total of one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// BudgetProgress aggregates all budgets.
type BudgetProgress struct {
	Total     decimal.Decimal `json:"total"`
	Spent     decimal.Decimal `json:"spent"`
	Progress  float64         `json:"progress"`
	Remaining decimal.Decimal `json:"remaining"`
}

// NewTransaction is the input to AddTransaction. Zero Date means today,
// empty Time means now and empty Description becomes "Manual Entry".
type NewTransaction struct {
	Direction   Direction
	Category    string
	Amount      decimal.Decimal
	Date        time.Time
	Time        string
	Description string
}

// NewCategory is the input to AddCategory. Empty Color picks a random one.
type NewCategory struct {
	Name      string
	Direction Direction
	Icon      string
	Color     string
}

// BudgetInput is the input to AddBudget and UpdateBudget.
type BudgetInput struct {
	Category  string
	Allocated decimal.Decimal
	Period    string
}

// NewGoal is the input to AddGoal. A positive InitialDeposit is also
// written to the ledger.
type NewGoal struct {
	Title          string
	Target         decimal.Decimal
	Deadline       time.Time
	InitialDeposit decimal.Decimal
}

// BillInput is the input to AddBill and UpdateBill. Empty Category
// defaults to "Housing".
type BillInput struct {
	Name        string
	Amount      decimal.Decimal
	NextDueDate time.Time
	Frequency   string
	Category    string
}

// DefaultBillCategory is used when a bill has no category.
const DefaultBillCategory = "Housing"
