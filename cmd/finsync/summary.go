package main

import (
	"fmt"
	"io"
	"time"

	"finance-sync/pkg/finance"

	"github.com/shopspring/decimal"
)

// ledger is the part of finance.Cache the summary reads.
type ledger interface {
	CurrentBalance() decimal.Decimal
	MonthlySummary(year int, month time.Month) finance.MonthlySummary
	CategorySpending() []finance.CategoryTotal
	Goals() []finance.Goal
}

var _ ledger = (*finance.Cache)(nil)

// writeSummary prints the balance, the month of now, spending per category
// and goal progress.
func writeSummary(w io.Writer, symbol string, l ledger, now time.Time) {
	month := l.MonthlySummary(now.Year(), now.Month())

	fmt.Fprintf(w, "Balance:        %s%s\n", symbol, l.CurrentBalance().StringFixed(2))
	fmt.Fprintf(w, "This month:     +%s%s / -%s%s (%d transactions)\n",
		symbol, month.Income.StringFixed(2), symbol, month.Expenses.StringFixed(2), month.Count)
	for _, c := range l.CategorySpending() {
		fmt.Fprintf(w, "  %-20s %s%s\n", c.Category, symbol, c.Amount.StringFixed(2))
	}
	for _, g := range l.Goals() {
		fmt.Fprintf(w, "Goal %-15s %3.0f%%\n", g.Title, g.Progress()*100)
	}
}
