package finance

import (
	"context"
)

func byBudgetID(id string) func(Budget) bool {
	return func(b Budget) bool { return b.ID == id }
}

// AddBudget creates a budget named after its category and reloads budgets
// for the server-derived figures.
func (c *Cache) AddBudget(ctx context.Context, in BudgetInput) error {
	req := in.toWrite()
	if err := validate(req); err != nil {
		return err
	}
	_, err := c.backend.CreateBudget(ctx, req)
	c.recordCreate(CollectionBudgets, err)
	if err != nil {
		return err
	}
	c.reloadAfter(ctx, c.LoadBudgets, CollectionBudgets)
	return nil
}

// UpdateBudget changes a budget's category, limit or period. The local copy
// changes first; spent and remaining are refreshed from the server after.
func (c *Cache) UpdateBudget(ctx context.Context, id string, in BudgetInput) error {
	req := in.toWrite()
	if err := validate(req); err != nil {
		return err
	}
	err := optimistic(c, CollectionBudgets, "update", &c.budgets,
		func(budgets []Budget) ([]Budget, error) {
			out, ok := replaceWhere(budgets, byBudgetID(id), func(b Budget) Budget {
				b.Name = req.Name
				b.Category = in.Category
				b.Allocated = in.Allocated
				b.Period = in.Period
				b.Color = resolveColor(in.Category, c.categories)
				return b
			})
			if !ok {
				return nil, ErrNotFound
			}
			return out, nil
		},
		func() error { return c.backend.UpdateBudget(ctx, id, req) },
	)
	if err != nil {
		return err
	}
	c.reloadAfter(ctx, c.LoadBudgets, CollectionBudgets)
	return nil
}

// DeleteBudget removes a budget. Ledger data is untouched.
func (c *Cache) DeleteBudget(ctx context.Context, id string) error {
	return optimistic(c, CollectionBudgets, "delete", &c.budgets,
		func(budgets []Budget) ([]Budget, error) {
			out, ok := removeWhere(budgets, byBudgetID(id))
			if !ok {
				return nil, ErrNotFound
			}
			return out, nil
		},
		func() error { return c.backend.DeleteBudget(ctx, id) },
	)
}
