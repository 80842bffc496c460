package finance

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"finance-sync/pkg/rest"
	"finance-sync/pkg/transport"

	"github.com/shopspring/decimal"
)

func loadedCache(t *testing.T, f *fakeBackend) *Cache {
	t.Helper()
	c, _ := newTestCache(t, f)
	if err := c.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	return c
}

func recomputedBalance(txns []Transaction) decimal.Decimal {
	income, expense := decimal.Zero, decimal.Zero
	for _, t := range txns {
		if t.Direction == Income {
			income = income.Add(t.Amount)
		} else {
			expense = expense.Add(t.Amount)
		}
	}
	return income.Sub(expense)
}

func TestCache_AddTransaction(t *testing.T) {
	f := newFakeBackend()
	f.transactions = []rest.Transaction{restTxn("t0", rest.TypeIncome, "Salary", "100", "2025-03-01")}
	c := loadedCache(t, f)
	budgetLoads := f.callCount("ListBudgets")

	saved, err := c.AddTransaction(context.Background(), NewTransaction{
		Direction: Expense,
		Category:  "Food",
		Amount:    dec("12.50"),
	})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}

	if saved.ID == "" {
		t.Error("Expected server id")
	}
	if saved.Description != "Manual Entry" {
		t.Errorf("Expected Manual Entry, got %q", saved.Description)
	}
	if saved.Time != "10:30" {
		t.Errorf("Expected current time 10:30, got %q", saved.Time)
	}
	if !saved.Date.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected today's date, got %v", saved.Date)
	}
	if f.lastTxnWrite.AccountID != "acc-1" || f.lastTxnWrite.Type != rest.TypeExpense || f.lastTxnWrite.Amount != 12.5 {
		t.Errorf("Unexpected request %+v", f.lastTxnWrite)
	}

	txns := c.Transactions()
	if len(txns) != 2 || txns[0].ID != saved.ID {
		t.Errorf("Expected new transaction first, got %+v", txns)
	}
	if f.callCount("ListBudgets") != budgetLoads+1 {
		t.Error("Expected expense to reload budgets")
	}

	if _, err := c.AddTransaction(context.Background(), NewTransaction{Direction: Income, Category: "Gift", Amount: dec("5")}); err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	if f.callCount("ListBudgets") != budgetLoads+1 {
		t.Error("Expected income not to reload budgets")
	}
}

func TestCache_AddTransactionValidation(t *testing.T) {
	f := newFakeBackend()
	c := loadedCache(t, f)

	tests := []struct {
		name  string
		in    NewTransaction
		field string
	}{
		{"zero amount", NewTransaction{Direction: Expense, Category: "Food"}, "amount"},
		{"negative amount", NewTransaction{Direction: Expense, Category: "Food", Amount: dec("-1")}, "amount"},
		{"no category", NewTransaction{Direction: Expense, Amount: dec("1")}, "category"},
		{"bad direction", NewTransaction{Direction: "transfer", Category: "Food", Amount: dec("1")}, "direction"},
		{"bad time", NewTransaction{Direction: Income, Category: "Gift", Amount: dec("1"), Time: "7pm"}, "transaction_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AddTransaction(context.Background(), tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
	if f.callCount("CreateTransaction") != 0 {
		t.Errorf("Expected no server calls, got %d", f.callCount("CreateTransaction"))
	}
}

func TestCache_AddTransactionNoAccount(t *testing.T) {
	f := newFakeBackend()
	c, _ := newTestCache(t, f)

	_, err := c.AddTransaction(context.Background(), NewTransaction{Direction: Income, Category: "Gift", Amount: dec("1")})
	if !errors.Is(err, ErrNoAccount) {
		t.Errorf("Expected ErrNoAccount, got %v", err)
	}
}

func TestCache_MonthlySummaryRoundTrip(t *testing.T) {
	f := newFakeBackend()
	f.transactions = []rest.Transaction{
		restTxn("t1", rest.TypeIncome, "Salary", "3000", "2025-02-28"),
		restTxn("t2", rest.TypeExpense, "Food", "40", "2025-04-01"),
	}
	c := loadedCache(t, f)

	before := c.MonthlySummary(2025, time.March)
	_, err := c.AddTransaction(context.Background(), NewTransaction{
		Direction: Expense,
		Category:  "Food",
		Amount:    dec("25.25"),
		Date:      time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	after := c.MonthlySummary(2025, time.March)

	if after.Count != before.Count+1 {
		t.Errorf("Expected count %d, got %d", before.Count+1, after.Count)
	}
	if !after.Expenses.Sub(before.Expenses).Equal(dec("25.25")) {
		t.Errorf("Expected expenses to grow by 25.25, got %s -> %s", before.Expenses, after.Expenses)
	}
	if !after.Balance.Equal(after.Income.Sub(after.Expenses)) {
		t.Errorf("Expected balance = income - expenses, got %+v", after)
	}
}

func TestCache_BalanceReplay(t *testing.T) {
	f := newFakeBackend()
	c := loadedCache(t, f)
	ctx := context.Background()

	steps := []func() error{
		func() error {
			_, err := c.AddTransaction(ctx, NewTransaction{Direction: Income, Category: "Salary", Amount: dec("2000")})
			return err
		},
		func() error {
			_, err := c.AddTransaction(ctx, NewTransaction{Direction: Expense, Category: "Food", Amount: dec("50.10")})
			return err
		},
		func() error {
			_, err := c.AddTransaction(ctx, NewTransaction{Direction: Expense, Category: "Transport", Amount: dec("19.90")})
			return err
		},
		func() error {
			txn := c.Transactions()[0]
			txn.Amount = dec("30")
			txn.Direction = Income
			return c.UpdateTransaction(ctx, txn)
		},
		func() error {
			return c.DeleteTransaction(ctx, c.Transactions()[1].ID)
		},
		func() error {
			f.setFail("UpdateTransaction", errors.New("rejected"))
			txn := c.Transactions()[0]
			txn.Amount = dec("999")
			c.UpdateTransaction(ctx, txn)
			return nil
		},
	}

	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		want := recomputedBalance(c.Transactions())
		if got := c.CurrentBalance(); !got.Equal(want) {
			t.Errorf("Step %d: expected balance %s, got %s", i, want, got)
		}
	}

	if got := c.CurrentBalance(); !got.Equal(dec("2030")) {
		t.Errorf("Expected final balance 2030, got %s", got)
	}
}

func TestCache_UpdateTransactionRollback(t *testing.T) {
	f := newFakeBackend()
	f.transactions = []rest.Transaction{
		restTxn("t1", rest.TypeExpense, "Food", "50", "2025-03-01"),
		restTxn("t2", rest.TypeIncome, "Salary", "2000", "2025-03-01"),
	}
	c, collector := newTestCache(t, f)
	if err := c.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	before := c.Transactions()
	f.setFail("UpdateTransaction", &transport.HTTPError{Status: 500, Message: "boom"})

	edited := before[0]
	edited.Amount = dec("75")
	edited.Category = "Shopping"
	if err := c.UpdateTransaction(context.Background(), edited); err == nil {
		t.Fatal("Expected update error")
	}

	if after := c.Transactions(); !reflect.DeepEqual(before, after) {
		t.Errorf("Expected collection restored\nbefore: %+v\nafter:  %+v", before, after)
	}
	snap := collector.Snapshot().Collections["transactions"]
	if snap.Rollbacks != 1 || snap.Failures["update"] != 1 {
		t.Errorf("Expected 1 rollback and 1 failed update, got %+v", snap)
	}
}

func TestCache_UpdateTransactionVisibleDuringCall(t *testing.T) {
	f := newFakeBackend()
	f.transactions = []rest.Transaction{restTxn("t1", rest.TypeExpense, "Food", "50", "2025-03-01")}
	c := loadedCache(t, f)

	var seen decimal.Decimal
	c.backend = &observingBackend{fakeBackend: f, onUpdate: func() { seen = c.Transactions()[0].Amount }}

	edited := c.Transactions()[0]
	edited.Amount = dec("60")
	if err := c.UpdateTransaction(context.Background(), edited); err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}
	if !seen.Equal(dec("60")) {
		t.Errorf("Expected optimistic value during the call, got %s", seen)
	}
	if f.lastTxnWrite.TransactionDate.String() != "2025-03-01" {
		t.Errorf("Expected date kept, got %s", f.lastTxnWrite.TransactionDate)
	}
}

type observingBackend struct {
	*fakeBackend
	onUpdate func()
}

func (o *observingBackend) UpdateTransaction(ctx context.Context, id string, in rest.TransactionWrite) error {
	o.onUpdate()
	return o.fakeBackend.UpdateTransaction(ctx, id, in)
}

func TestCache_UpdateTransactionNotFound(t *testing.T) {
	f := newFakeBackend()
	c := loadedCache(t, f)

	err := c.UpdateTransaction(context.Background(), Transaction{
		ID: "missing", Direction: Expense, Category: "Food", Amount: dec("1"), Date: testNow, Description: "x",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if f.callCount("UpdateTransaction") != 0 {
		t.Error("Expected no server call")
	}
}

func TestCache_DeleteTransaction(t *testing.T) {
	f := newFakeBackend()
	f.transactions = []rest.Transaction{
		restTxn("t1", rest.TypeExpense, "Food", "50", "2025-03-01"),
		restTxn("t2", rest.TypeIncome, "Salary", "2000", "2025-03-01"),
	}
	c := loadedCache(t, f)
	ctx := context.Background()
	budgetLoads := f.callCount("ListBudgets")

	f.setFail("DeleteTransaction", errors.New("offline"))
	before := c.Transactions()
	if err := c.DeleteTransaction(ctx, "t1"); err == nil {
		t.Fatal("Expected delete error")
	}
	if !reflect.DeepEqual(before, c.Transactions()) {
		t.Error("Expected collection restored after failed delete")
	}

	f.setFail("DeleteTransaction", nil)
	if err := c.DeleteTransaction(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTransaction failed: %v", err)
	}
	if len(c.Transactions()) != 1 {
		t.Errorf("Expected 1 transaction left, got %d", len(c.Transactions()))
	}
	if f.callCount("ListBudgets") != budgetLoads+1 {
		t.Error("Expected expense delete to reload budgets")
	}

	if err := c.DeleteTransaction(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCache_UploadReceipt(t *testing.T) {
	f := newFakeBackend()
	f.transactions = []rest.Transaction{restTxn("t0", rest.TypeIncome, "Salary", "100", "2025-03-01")}
	f.extracted = []rest.Transaction{
		{ID: "r1", TransactionDate: restDate("2025-03-14"), Type: rest.TypeExpense, Amount: dec("8.40"), Category: "Food"},
		{ID: "r2", TransactionDate: restDate("2025-03-14"), Type: rest.TypeExpense, Amount: dec("3"), Category: "Transport", Merchant: "Bus"},
	}
	f.accounts = nil
	c, _ := newTestCache(t, f)
	c.LoadTransactions(context.Background())

	got, err := c.UploadReceipt(context.Background(), transport.Attachment{URI: "file:///tmp/r.jpg"})
	if err != nil {
		t.Fatalf("UploadReceipt failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 extracted, got %d", len(got))
	}
	if f.callCount("CreateAccount") != 1 {
		t.Error("Expected accounts to load and create the default account")
	}

	txns := c.Transactions()
	if len(txns) != 3 || txns[0].ID != "r1" || txns[1].ID != "r2" || txns[2].ID != "t0" {
		t.Errorf("Expected extracted transactions first in order, got %+v", txns)
	}
	if txns[0].Description != "Unknown Merchant" || txns[1].Description != "Bus" {
		t.Errorf("Unexpected descriptions %q, %q", txns[0].Description, txns[1].Description)
	}
	if txns[0].Time != "10:30" {
		t.Errorf("Expected current time, got %q", txns[0].Time)
	}
	if f.callCount("ListBudgets") != 1 {
		t.Error("Expected budgets reload after upload")
	}
}
