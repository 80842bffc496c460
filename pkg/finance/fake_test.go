package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"finance-sync/pkg/rest"
	"finance-sync/pkg/transport"

	"github.com/shopspring/decimal"
)

// fakeBackend is an in-memory Backend. Setting fail[method] makes that
// method return the error.
type fakeBackend struct {
	mu           sync.Mutex
	accounts     []rest.Account
	categories   []rest.Category
	transactions []rest.Transaction
	goals        []rest.Goal
	budgets      []rest.Budget
	calendar     rest.CalendarReport
	extracted    []rest.Transaction

	nextID          int
	fail            map[string]error
	calls           map[string]int
	progressChanges []float64
	lastTxnWrite    rest.TransactionWrite
	lastBudgetWrite rest.BudgetWrite
	lastCategory    rest.CategoryCreate
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts: []rest.Account{{ID: "acc-1", Name: "Cash"}},
		fail:     make(map[string]error),
		calls:    make(map[string]int),
		calendar: rest.CalendarReport{},
	}
}

func (f *fakeBackend) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.fail[method]
}

func (f *fakeBackend) setFail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

func (f *fakeBackend) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeBackend) ListAccounts(ctx context.Context) ([]rest.Account, error) {
	if err := f.enter("ListAccounts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rest.Account(nil), f.accounts...), nil
}

func (f *fakeBackend) CreateAccount(ctx context.Context, in rest.AccountCreate) (*rest.Account, error) {
	if err := f.enter("CreateAccount"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a := rest.Account{ID: f.id("acc"), Name: in.Name}
	f.accounts = append(f.accounts, a)
	return &a, nil
}

func (f *fakeBackend) ListCategories(ctx context.Context) ([]rest.Category, error) {
	if err := f.enter("ListCategories"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rest.Category(nil), f.categories...), nil
}

func (f *fakeBackend) CreateCategory(ctx context.Context, in rest.CategoryCreate) (*rest.Category, error) {
	if err := f.enter("CreateCategory"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCategory = in
	cat := rest.Category{ID: f.id("cat"), Name: in.Name, Type: in.Type, Icon: in.Icon, Color: in.Color}
	f.categories = append(f.categories, cat)
	return &cat, nil
}

func (f *fakeBackend) DeleteCategory(ctx context.Context, id string) error {
	return f.enter("DeleteCategory")
}

func (f *fakeBackend) ListTransactions(ctx context.Context) ([]rest.Transaction, error) {
	if err := f.enter("ListTransactions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rest.Transaction(nil), f.transactions...), nil
}

func (f *fakeBackend) CreateTransaction(ctx context.Context, in rest.TransactionWrite) (*rest.Transaction, error) {
	if err := f.enter("CreateTransaction"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTxnWrite = in
	t := rest.Transaction{
		ID:              f.id("txn"),
		TransactionDate: in.TransactionDate,
		TransactionTime: in.TransactionTime,
		Type:            in.Type,
		Amount:          decimal.NewFromFloat(in.Amount),
		Category:        in.Category,
		Merchant:        in.Merchant,
		AccountID:       in.AccountID,
	}
	f.transactions = append([]rest.Transaction{t}, f.transactions...)
	return &t, nil
}

func (f *fakeBackend) UpdateTransaction(ctx context.Context, id string, in rest.TransactionWrite) error {
	if err := f.enter("UpdateTransaction"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTxnWrite = in
	return nil
}

func (f *fakeBackend) DeleteTransaction(ctx context.Context, id string) error {
	return f.enter("DeleteTransaction")
}

func (f *fakeBackend) ExtractReceipt(ctx context.Context, accountID string, att transport.Attachment) ([]rest.Transaction, error) {
	if err := f.enter("ExtractReceipt"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rest.Transaction(nil), f.extracted...), nil
}

func (f *fakeBackend) ListGoals(ctx context.Context) ([]rest.Goal, error) {
	if err := f.enter("ListGoals"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rest.Goal(nil), f.goals...), nil
}

func (f *fakeBackend) CreateGoal(ctx context.Context, in rest.GoalCreate) (*rest.Goal, error) {
	if err := f.enter("CreateGoal"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g := rest.Goal{
		ID:           f.id("goal"),
		Name:         in.Name,
		TargetAmount: decimal.NewFromFloat(in.TargetAmount),
		TargetDate:   in.TargetDate,
		CurrentSaved: decimal.NewFromFloat(in.CurrentSaved),
	}
	f.goals = append(f.goals, g)
	return &g, nil
}

func (f *fakeBackend) UpdateGoalProgress(ctx context.Context, id string, change float64) (*rest.GoalProgressResult, error) {
	f.mu.Lock()
	f.progressChanges = append(f.progressChanges, change)
	f.mu.Unlock()
	if err := f.enter("UpdateGoalProgress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.goals {
		if f.goals[i].ID == id {
			f.goals[i].CurrentSaved = f.goals[i].CurrentSaved.Add(decimal.NewFromFloat(change))
			return &rest.GoalProgressResult{Message: "ok", NewSaved: f.goals[i].CurrentSaved}, nil
		}
	}
	return &rest.GoalProgressResult{Message: "ok"}, nil
}

func (f *fakeBackend) DeleteGoal(ctx context.Context, id string) error {
	if err := f.enter("DeleteGoal"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, g := range f.goals {
		if g.ID == id {
			f.goals = append(f.goals[:i], f.goals[i+1:]...)
			if g.CurrentSaved.IsPositive() {
				f.transactions = append([]rest.Transaction{{
					ID:       f.id("refund"),
					Type:     rest.TypeIncome,
					Amount:   g.CurrentSaved,
					Category: SavingsCategory,
					Merchant: "Refund from Goal: " + g.Name,
				}}, f.transactions...)
			}
			break
		}
	}
	return nil
}

func (f *fakeBackend) ListBudgets(ctx context.Context) ([]rest.Budget, error) {
	if err := f.enter("ListBudgets"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rest.Budget(nil), f.budgets...), nil
}

func (f *fakeBackend) CreateBudget(ctx context.Context, in rest.BudgetWrite) (*rest.Budget, error) {
	if err := f.enter("CreateBudget"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBudgetWrite = in
	b := rest.Budget{
		ID:          f.id("budget"),
		Name:        in.Name,
		Category:    in.Category,
		LimitAmount: decimal.NewFromFloat(in.LimitAmount),
		Period:      in.Period,
	}
	f.budgets = append(f.budgets, b)
	return &b, nil
}

func (f *fakeBackend) UpdateBudget(ctx context.Context, id string, in rest.BudgetWrite) error {
	if err := f.enter("UpdateBudget"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBudgetWrite = in
	for i := range f.budgets {
		if f.budgets[i].ID == id {
			f.budgets[i].Name = in.Name
			f.budgets[i].Category = in.Category
			f.budgets[i].LimitAmount = decimal.NewFromFloat(in.LimitAmount)
			f.budgets[i].Period = in.Period
		}
	}
	return nil
}

func (f *fakeBackend) DeleteBudget(ctx context.Context, id string) error {
	return f.enter("DeleteBudget")
}

func (f *fakeBackend) CalendarReport(ctx context.Context, year, month int) (rest.CalendarReport, error) {
	if err := f.enter("CalendarReport"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(rest.CalendarReport, len(f.calendar))
	for k, v := range f.calendar {
		out[k] = append([]rest.CalendarEvent(nil), v...)
	}
	return out, nil
}

func (f *fakeBackend) CreateBill(ctx context.Context, in rest.BillWrite) (*rest.Bill, error) {
	if err := f.enter("CreateBill"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	amount := decimal.NewFromFloat(-in.Amount)
	day := in.NextDueDate.String()
	b := rest.Bill{ID: f.id("bill"), Name: in.Name, Amount: decimal.NewFromFloat(in.Amount), NextDueDate: in.NextDueDate, Frequency: in.Frequency, Category: in.Category}
	f.calendar[day] = append(f.calendar[day], rest.CalendarEvent{
		ID: b.ID, EventDate: in.NextDueDate, Type: rest.EventUserBill, Name: in.Name, Amount: &amount, Source: "user",
	})
	return &b, nil
}

func (f *fakeBackend) UpdateBill(ctx context.Context, id string, in rest.BillWrite) error {
	if err := f.enter("UpdateBill"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	amount := decimal.NewFromFloat(-in.Amount)
	for _, events := range f.calendar {
		for i := range events {
			if events[i].ID == id {
				events[i].Name = fmt.Sprintf("%s (RM %.2f)", in.Name, in.Amount)
				events[i].Amount = &amount
			}
		}
	}
	return nil
}

func (f *fakeBackend) DeleteBill(ctx context.Context, id string) error {
	if err := f.enter("DeleteBill"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for day, events := range f.calendar {
		kept := events[:0]
		for _, e := range events {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(f.calendar, day)
		} else {
			f.calendar[day] = kept
		}
	}
	return nil
}

func (f *fakeBackend) Simulate(ctx context.Context, question string) (json.RawMessage, error) {
	if err := f.enter("Simulate"); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"answer":"ok"}`), nil
}

func (f *fakeBackend) FinancialHealth(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"score":80}`), f.enter("FinancialHealth")
}

func (f *fakeBackend) Forecast(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[]`), f.enter("Forecast")
}

func (f *fakeBackend) AutoBudget(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{}`), f.enter("AutoBudget")
}

var _ Backend = (*fakeBackend)(nil)
