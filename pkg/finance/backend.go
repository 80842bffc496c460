package finance

import (
	"context"
	"encoding/json"
	"time"

	"finance-sync/pkg/rest"
	"finance-sync/pkg/transport"

	"github.com/shopspring/decimal"
)

// Backend is the REST surface the cache calls; *rest.API implements it.
type Backend interface {
	ListAccounts(ctx context.Context) ([]rest.Account, error)
	CreateAccount(ctx context.Context, in rest.AccountCreate) (*rest.Account, error)

	ListCategories(ctx context.Context) ([]rest.Category, error)
	CreateCategory(ctx context.Context, in rest.CategoryCreate) (*rest.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListTransactions(ctx context.Context) ([]rest.Transaction, error)
	CreateTransaction(ctx context.Context, in rest.TransactionWrite) (*rest.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, in rest.TransactionWrite) error
	DeleteTransaction(ctx context.Context, id string) error
	ExtractReceipt(ctx context.Context, accountID string, att transport.Attachment) ([]rest.Transaction, error)

	ListGoals(ctx context.Context) ([]rest.Goal, error)
	CreateGoal(ctx context.Context, in rest.GoalCreate) (*rest.Goal, error)
	UpdateGoalProgress(ctx context.Context, id string, change float64) (*rest.GoalProgressResult, error)
	DeleteGoal(ctx context.Context, id string) error

	ListBudgets(ctx context.Context) ([]rest.Budget, error)
	CreateBudget(ctx context.Context, in rest.BudgetWrite) (*rest.Budget, error)
	UpdateBudget(ctx context.Context, id string, in rest.BudgetWrite) error
	DeleteBudget(ctx context.Context, id string) error

	CalendarReport(ctx context.Context, year, month int) (rest.CalendarReport, error)
	CreateBill(ctx context.Context, in rest.BillWrite) (*rest.Bill, error)
	UpdateBill(ctx context.Context, id string, in rest.BillWrite) error
	DeleteBill(ctx context.Context, id string) error

	Simulate(ctx context.Context, question string) (json.RawMessage, error)
	FinancialHealth(ctx context.Context) (json.RawMessage, error)
	Forecast(ctx context.Context) (json.RawMessage, error)
	AutoBudget(ctx context.Context) (json.RawMessage, error)
}

var _ Backend = (*rest.API)(nil)

// dateOf is t's calendar date at UTC midnight, in t's own location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fromRestTransaction(in rest.Transaction, categories []Category, unknown string) Transaction {
	t := Transaction{
		ID:          in.ID,
		Direction:   directionFromWire(in.Type),
		Category:    in.Category,
		Amount:      in.Amount,
		Date:        dateOf(in.TransactionDate.Time),
		Time:        in.TransactionTime,
		Description: in.Merchant,
		Icon:        resolveIcon(in.Category, categories),
		AccountID:   in.AccountID,
	}
	if t.Time == "" {
		t.Time = "00:00"
	}
	if t.Description == "" {
		t.Description = unknown
	}
	return t
}

func (t Transaction) toWrite(accountID string) rest.TransactionWrite {
	return rest.TransactionWrite{
		TransactionDate: rest.NewDate(t.Date),
		TransactionTime: t.Time,
		Type:            t.Direction.wire(),
		Amount:          t.Amount.InexactFloat64(),
		Category:        t.Category,
		Merchant:        t.Description,
		AccountID:       accountID,
	}
}

func fromRestAccount(in rest.Account) Account {
	return Account{ID: in.ID, Name: in.Name, Balance: in.CurrentBalance}
}

func fromRestCategory(in rest.Category) Category {
	return Category{
		ID:        in.ID,
		Name:      in.Name,
		Direction: directionFromWire(in.Type),
		Icon:      in.Icon,
		Color:     in.Color,
		IsDefault: in.IsDefault,
	}
}

func fromRestBudget(in rest.Budget, categories []Category) Budget {
	period := in.Period
	if period == "" {
		period = rest.PeriodMonthly
	}
	return Budget{
		ID:            in.ID,
		Name:          in.Name,
		Category:      in.Category,
		Allocated:     in.LimitAmount,
		Period:        period,
		Spent:         in.CurrentSpending,
		Remaining:     in.RemainingBudget,
		DailyLimit:    in.DailySpendingLimit,
		DaysRemaining: in.DaysRemaining,
		Color:         resolveColor(in.Category, categories),
	}
}

func (b BudgetInput) toWrite() rest.BudgetWrite {
	return rest.BudgetWrite{
		Name:        b.Category + " Budget",
		Category:    b.Category,
		LimitAmount: b.Allocated.InexactFloat64(),
		Period:      b.Period,
	}
}

func fromRestGoal(in rest.Goal) Goal {
	return Goal{
		ID:            in.ID,
		Title:         in.Name,
		Target:        in.TargetAmount,
		Current:       in.CurrentSaved,
		Deadline:      dateOf(in.TargetDate.Time),
		Category:      SavingsCategory,
		DaysRemaining: in.DaysRemaining,
		AmountToSave:  in.AmountToSave,
		DailyNeeded:   in.DailyInvestmentRequired,
		WeeklyNeeded:  in.WeeklyInvestmentRequired,
		MonthlyNeeded: in.MonthlyInvestmentRequired,
	}
}

func fromRestCalendar(in rest.CalendarReport) Calendar {
	out := make(Calendar, len(in))
	for day, events := range in {
		converted := make([]CalendarEvent, 0, len(events))
		for _, e := range events {
			converted = append(converted, CalendarEvent{
				ID:     e.ID,
				Date:   dateOf(e.EventDate.Time),
				Type:   e.Type,
				Name:   e.Name,
				Amount: e.Amount,
				Source: e.Source,
			})
		}
		out[day] = converted
	}
	return out
}

func (b BillInput) toWrite() rest.BillWrite {
	category := b.Category
	if category == "" {
		category = DefaultBillCategory
	}
	return rest.BillWrite{
		Name:        b.Name,
		Amount:      b.Amount.InexactFloat64(),
		NextDueDate: rest.NewDate(b.NextDueDate),
		Frequency:   b.Frequency,
		Category:    category,
	}
}

// billAmount is the signed calendar amount of a bill.
func billAmount(amount decimal.Decimal) *decimal.Decimal {
	v := amount.Abs().Neg()
	return &v
}
