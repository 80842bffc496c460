package finance

import (
	"context"
	"fmt"

	"finance-sync/pkg/rest"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func byGoalID(id string) func(Goal) bool {
	return func(g Goal) bool { return g.ID == id }
}

// AddGoal creates a goal and reloads goals. A positive initial deposit is
// also recorded as a Savings expense.
func (c *Cache) AddGoal(ctx context.Context, in NewGoal) error {
	req := rest.GoalCreate{
		Name:         in.Title,
		TargetAmount: in.Target.InexactFloat64(),
		TargetDate:   rest.NewDate(in.Deadline),
		CurrentSaved: in.InitialDeposit.InexactFloat64(),
	}
	if err := validate(req); err != nil {
		return err
	}

	_, err := c.backend.CreateGoal(ctx, req)
	c.recordCreate(CollectionGoals, err)
	if err != nil {
		return err
	}
	c.reloadAfter(ctx, c.LoadGoals, CollectionGoals)

	if in.InitialDeposit.IsPositive() {
		_, err := c.AddTransaction(ctx, NewTransaction{
			Direction:   Expense,
			Category:    SavingsCategory,
			Amount:      in.InitialDeposit,
			Description: "Initial deposit for Goal: " + in.Title,
		})
		if err != nil {
			return fmt.Errorf("finance: record initial deposit: %w", err)
		}
	}
	return nil
}

// UpdateGoalProgress moves change into (positive) or out of (negative) a
// goal. The saved amount never drops below zero; the amount actually moved
// is sent to the server and written to the ledger as a Savings transaction,
// an expense for deposits and income for withdrawals. The goal shows the
// new amount immediately and reverts if either write fails. If the ledger
// write fails after the progress write, the progress is reversed on the
// server.
func (c *Cache) UpdateGoalProgress(ctx context.Context, goalID string, change decimal.Decimal) (*Goal, error) {
	if change.IsZero() {
		return nil, &ValidationError{Field: "amount", Message: "must not be zero"}
	}

	var applied decimal.Decimal
	var title string
	err := optimistic(c, CollectionGoals, "progress", &c.goals,
		func(goals []Goal) ([]Goal, error) {
			var found bool
			var out []Goal
			out, found = replaceWhere(goals, byGoalID(goalID), func(g Goal) Goal {
				next := decimal.Max(g.Current.Add(change), decimal.Zero)
				applied = next.Sub(g.Current)
				title = g.Title
				g.Current = next
				return g
			})
			if !found {
				return nil, ErrNotFound
			}
			if applied.IsZero() {
				return nil, &ValidationError{Field: "amount", Message: "goal has nothing to withdraw"}
			}
			return out, nil
		},
		func() error { return c.transferToGoal(ctx, goalID, title, applied) },
	)
	if err != nil {
		return nil, err
	}

	g, _ := c.Goal(goalID)
	return &g, nil
}

// transferToGoal performs the progress write, then the ledger write.
func (c *Cache) transferToGoal(ctx context.Context, goalID, title string, applied decimal.Decimal) error {
	if _, err := c.backend.UpdateGoalProgress(ctx, goalID, applied.InexactFloat64()); err != nil {
		return &GoalTransferError{GoalID: goalID, Stage: StageProgress, Err: err}
	}

	entry := NewTransaction{
		Direction:   Expense,
		Category:    SavingsCategory,
		Amount:      applied.Abs(),
		Description: "Deposit to Goal: " + title,
	}
	if applied.IsNegative() {
		entry.Direction = Income
		entry.Description = "Withdraw from Goal: " + title
	}

	if _, err := c.AddTransaction(ctx, entry); err != nil {
		transferErr := &GoalTransferError{GoalID: goalID, Stage: StageLedger, Err: err}
		if _, cerr := c.backend.UpdateGoalProgress(ctx, goalID, applied.Neg().InexactFloat64()); cerr != nil {
			transferErr.CompensationErr = cerr
			c.logger.Error("failed to revert goal progress after ledger failure",
				zap.String("goal", goalID),
				zap.Error(cerr),
			)
		} else {
			transferErr.Compensated = true
		}
		return transferErr
	}
	return nil
}

// DeleteGoal removes a goal. The server refunds its savings into the
// ledger, so transactions reload afterwards.
func (c *Cache) DeleteGoal(ctx context.Context, goalID string) error {
	err := optimistic(c, CollectionGoals, "delete", &c.goals,
		func(goals []Goal) ([]Goal, error) {
			out, ok := removeWhere(goals, byGoalID(goalID))
			if !ok {
				return nil, ErrNotFound
			}
			return out, nil
		},
		func() error { return c.backend.DeleteGoal(ctx, goalID) },
	)
	if err != nil {
		return err
	}
	c.reloadAfter(ctx, c.LoadTransactions, CollectionTransactions)
	return nil
}
