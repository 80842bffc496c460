package finance

import (
	"context"
	"encoding/json"
)

// Reports are computed server-side and returned undecoded.

// Simulate asks the assistant a what-if question.
func (c *Cache) Simulate(ctx context.Context, question string) (json.RawMessage, error) {
	if question == "" {
		return nil, &ValidationError{Field: "question", Message: "is required"}
	}
	return c.backend.Simulate(ctx, question)
}

func (c *Cache) FinancialHealth(ctx context.Context) (json.RawMessage, error) {
	return c.backend.FinancialHealth(ctx)
}

func (c *Cache) Forecast(ctx context.Context) (json.RawMessage, error) {
	return c.backend.Forecast(ctx)
}

func (c *Cache) AutoBudget(ctx context.Context) (json.RawMessage, error) {
	return c.backend.AutoBudget(ctx)
}
