package finance

import (
	"context"

	"finance-sync/pkg/transport"
)

func byTransactionID(id string) func(Transaction) bool {
	return func(t Transaction) bool { return t.ID == id }
}

func (c *Cache) clock() string {
	return c.now().Format("15:04")
}

// AddTransaction saves a transaction against the first account and prepends
// it once the server has assigned an id. Expenses reload budgets.
func (c *Cache) AddTransaction(ctx context.Context, in NewTransaction) (*Transaction, error) {
	accountID, ok := c.defaultAccount()
	if !ok {
		return nil, ErrNoAccount
	}

	t := Transaction{
		Direction:   in.Direction,
		Category:    in.Category,
		Amount:      in.Amount,
		Date:        dateOf(in.Date),
		Time:        in.Time,
		Description: in.Description,
	}
	if in.Date.IsZero() {
		t.Date = dateOf(c.now())
	}
	if t.Time == "" {
		t.Time = c.clock()
	}
	if t.Description == "" {
		t.Description = "Manual Entry"
	}
	if !t.Direction.Valid() {
		return nil, &ValidationError{Field: "direction", Message: "must be income or expense"}
	}

	req := t.toWrite(accountID)
	if err := validate(req); err != nil {
		return nil, err
	}

	saved, err := c.backend.CreateTransaction(ctx, req)
	c.recordCreate(CollectionTransactions, err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	t.ID = saved.ID
	t.AccountID = accountID
	t.Icon = resolveIcon(t.Category, c.categories)
	if saved.Merchant != "" {
		t.Description = saved.Merchant
	}
	if !saved.TransactionDate.IsZero() {
		t.Date = dateOf(saved.TransactionDate.Time)
	}
	c.transactions = append([]Transaction{t}, c.transactions...)
	c.mu.Unlock()
	c.notify(CollectionTransactions)

	if t.Direction == Expense {
		c.reloadAfter(ctx, c.LoadBudgets, CollectionBudgets)
	}
	return &t, nil
}

// UpdateTransaction replaces the transaction with the same ID. The cache
// shows the edit immediately and reverts it if the server rejects it.
func (c *Cache) UpdateTransaction(ctx context.Context, t Transaction) error {
	accountID := t.AccountID
	if accountID == "" {
		var ok bool
		if accountID, ok = c.defaultAccount(); !ok {
			return ErrNoAccount
		}
	}
	if t.Time == "" {
		t.Time = "00:00"
	}
	if !t.Direction.Valid() {
		return &ValidationError{Field: "direction", Message: "must be income or expense"}
	}
	req := t.toWrite(accountID)
	if err := validate(req); err != nil {
		return err
	}

	t.AccountID = accountID
	var previous Transaction
	err := optimistic(c, CollectionTransactions, "update", &c.transactions,
		func(txns []Transaction) ([]Transaction, error) {
			updated := t
			updated.Icon = resolveIcon(t.Category, c.categories)
			out, ok := replaceWhere(txns, byTransactionID(t.ID), func(old Transaction) Transaction {
				previous = old
				return updated
			})
			if !ok {
				return nil, ErrNotFound
			}
			return out, nil
		},
		func() error { return c.backend.UpdateTransaction(ctx, t.ID, req) },
	)
	if err != nil {
		return err
	}

	if t.Direction == Expense || previous.Direction == Expense {
		c.reloadAfter(ctx, c.LoadBudgets, CollectionBudgets)
	}
	return nil
}

// DeleteTransaction removes a transaction, restoring it if the server
// rejects the delete. Expenses reload budgets.
func (c *Cache) DeleteTransaction(ctx context.Context, id string) error {
	var removed Transaction
	err := optimistic(c, CollectionTransactions, "delete", &c.transactions,
		func(txns []Transaction) ([]Transaction, error) {
			for _, t := range txns {
				if t.ID == id {
					removed = t
				}
			}
			out, ok := removeWhere(txns, byTransactionID(id))
			if !ok {
				return nil, ErrNotFound
			}
			return out, nil
		},
		func() error { return c.backend.DeleteTransaction(ctx, id) },
	)
	if err != nil {
		return err
	}

	if removed.Direction == Expense {
		c.reloadAfter(ctx, c.LoadBudgets, CollectionBudgets)
	}
	return nil
}

// UploadReceipt sends a receipt for extraction against the first account,
// loading accounts first if none are cached. The extracted transactions are
// prepended in server order and budgets reload.
func (c *Cache) UploadReceipt(ctx context.Context, att transport.Attachment) ([]Transaction, error) {
	accountID, ok := c.defaultAccount()
	if !ok {
		if err := c.LoadAccounts(ctx); err != nil {
			return nil, err
		}
		if accountID, ok = c.defaultAccount(); !ok {
			return nil, ErrNoAccount
		}
	}

	rows, err := c.backend.ExtractReceipt(ctx, accountID, att)
	c.metrics.RecordMutation(string(CollectionTransactions), "extract", err == nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	clock := c.clock()
	c.mu.Lock()
	extracted := make([]Transaction, 0, len(rows))
	for _, r := range rows {
		t := fromRestTransaction(r, c.categories, "Unknown Merchant")
		t.Time = clock
		extracted = append(extracted, t)
	}
	c.transactions = append(append([]Transaction(nil), extracted...), c.transactions...)
	c.mu.Unlock()
	c.notify(CollectionTransactions)

	c.reloadAfter(ctx, c.LoadBudgets, CollectionBudgets)
	return extracted, nil
}
