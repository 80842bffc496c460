package finance

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Views are recomputed from the current collections on every call.

// CurrentBalance is total income minus total expenses.
func (c *Cache) CurrentBalance() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return balance(c.transactions)
}

func balance(txns []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.signed())
	}
	return total
}

// MonthlySummary aggregates the transactions dated in month of year.
func (c *Cache) MonthlySummary(year int, month time.Month) MonthlySummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := MonthlySummary{Income: decimal.Zero, Expenses: decimal.Zero}
	for _, t := range c.transactions {
		if t.Date.Year() != year || t.Date.Month() != month {
			continue
		}
		s.Count++
		if t.Direction == Income {
			s.Income = s.Income.Add(t.Amount)
		} else {
			s.Expenses = s.Expenses.Add(t.Amount)
		}
	}
	s.Balance = s.Income.Sub(s.Expenses)
	return s
}

// CategorySpending totals expenses per category, largest first. Equal
// totals are ordered by name.
func (c *Cache) CategorySpending() []CategoryTotal {
	c.mu.RLock()
	totals := make(map[string]decimal.Decimal)
	for _, t := range c.transactions {
		if t.Direction != Expense {
			continue
		}
		totals[t.Category] = totals[t.Category].Add(t.Amount)
	}
	c.mu.RUnlock()

	out := make([]CategoryTotal, 0, len(totals))
	for category, amount := range totals {
		out = append(out, CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Amount.Cmp(out[j].Amount); cmp != 0 {
			return cmp > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// RecentTransactions returns transactions dated on or after the start of
// the day days ago.
func (c *Cache) RecentTransactions(days int) []Transaction {
	cutoff := dateOf(c.now()).AddDate(0, 0, -days)
	return c.filter(func(t Transaction) bool { return !t.Date.Before(cutoff) })
}

// SearchTransactions matches query case-insensitively against description,
// category and amount.
func (c *Cache) SearchTransactions(query string) []Transaction {
	q := strings.ToLower(query)
	return c.filter(func(t Transaction) bool {
		return strings.Contains(strings.ToLower(t.Description), q) ||
			strings.Contains(strings.ToLower(t.Category), q) ||
			strings.Contains(t.Amount.String(), q)
	})
}

// TransactionsByDateRange returns transactions dated within [start, end].
func (c *Cache) TransactionsByDateRange(start, end time.Time) []Transaction {
	from, to := dateOf(start), dateOf(end)
	return c.filter(func(t Transaction) bool {
		return !t.Date.Before(from) && !t.Date.After(to)
	})
}

// TransactionsByCategory returns transactions in category.
func (c *Cache) TransactionsByCategory(category string) []Transaction {
	return c.filter(func(t Transaction) bool { return t.Category == category })
}

func (c *Cache) filter(keep func(Transaction) bool) []Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Transaction
	for _, t := range c.transactions {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// BudgetByCategory returns the first budget for category.
func (c *Cache) BudgetByCategory(category string) (Budget, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.budgets {
		if b.Category == category {
			return b, true
		}
	}
	return Budget{}, false
}

// TotalBudgetProgress sums every budget. Progress is capped at 1 and
// Remaining never goes below zero.
func (c *Cache) TotalBudgetProgress() BudgetProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := BudgetProgress{Total: decimal.Zero, Spent: decimal.Zero}
	for _, b := range c.budgets {
		p.Total = p.Total.Add(b.Allocated)
		p.Spent = p.Spent.Add(b.Spent)
	}
	if p.Total.IsPositive() {
		p.Progress = decimal.Min(p.Spent.Div(p.Total), decimal.NewFromInt(1)).InexactFloat64()
	}
	p.Remaining = decimal.Max(p.Total.Sub(p.Spent), decimal.Zero)
	return p
}
