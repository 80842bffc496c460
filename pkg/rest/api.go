package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"finance-sync/pkg/transport"
)

// Requester is the subset of transport.Client the API needs.
type Requester interface {
	JSON(ctx context.Context, method, path string, in, out any) error
	Upload(ctx context.Context, path string, att transport.Attachment) (*transport.Payload, error)
}

// API is the typed REST surface of the finance backend.
type API struct {
	client Requester
}

// NewAPI creates an API over client.
func NewAPI(client Requester) *API {
	return &API{client: client}
}

func idPath(prefix, id string) string {
	return prefix + url.PathEscape(id)
}

// validator is implemented by request DTOs.
type validator interface {
	Validate() error
}

func (a *API) send(ctx context.Context, method, path string, in, out any) error {
	if v, ok := in.(validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return a.client.JSON(ctx, method, path, in, out)
}

// Accounts

func (a *API) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	err := a.send(ctx, http.MethodGet, "/accounts/", nil, &out)
	return out, err
}

func (a *API) CreateAccount(ctx context.Context, in AccountCreate) (*Account, error) {
	var out Account
	if err := a.send(ctx, http.MethodPost, "/accounts/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Categories

func (a *API) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := a.send(ctx, http.MethodGet, "/categories/", nil, &out)
	return out, err
}

func (a *API) CreateCategory(ctx context.Context, in CategoryCreate) (*Category, error) {
	var out Category
	if err := a.send(ctx, http.MethodPost, "/categories/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DeleteCategory(ctx context.Context, id string) error {
	return a.send(ctx, http.MethodDelete, idPath("/categories/", id), nil, nil)
}

// Transactions

func (a *API) ListTransactions(ctx context.Context) ([]Transaction, error) {
	var out []Transaction
	err := a.send(ctx, http.MethodGet, "/transactions/", nil, &out)
	return out, err
}

func (a *API) CreateTransaction(ctx context.Context, in TransactionWrite) (*Transaction, error) {
	var out Transaction
	if err := a.send(ctx, http.MethodPost, "/transactions/manual", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateTransaction(ctx context.Context, id string, in TransactionWrite) error {
	return a.send(ctx, http.MethodPut, idPath("/transactions/", id), in, nil)
}

func (a *API) DeleteTransaction(ctx context.Context, id string) error {
	return a.send(ctx, http.MethodDelete, idPath("/transactions/", id), nil, nil)
}

// ExtractReceipt uploads a receipt image or document and returns the
// transactions the server extracted and saved.
func (a *API) ExtractReceipt(ctx context.Context, accountID string, att transport.Attachment) ([]Transaction, error) {
	payload, err := a.client.Upload(ctx, idPath("/transactions/vlm/extract/", accountID), att)
	if err != nil {
		return nil, err
	}
	if payload.Empty() {
		return nil, nil
	}
	var out []Transaction
	if err := payload.Decode(&out); err != nil {
		return nil, fmt.Errorf("rest: decode extracted transactions: %w", err)
	}
	return out, nil
}

// Goals

func (a *API) ListGoals(ctx context.Context) ([]Goal, error) {
	var out []Goal
	err := a.send(ctx, http.MethodGet, "/goals/goal", nil, &out)
	return out, err
}

func (a *API) CreateGoal(ctx context.Context, in GoalCreate) (*Goal, error) {
	var out Goal
	if err := a.send(ctx, http.MethodPost, "/goals/goal", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateGoalProgress(ctx context.Context, id string, change float64) (*GoalProgressResult, error) {
	var out GoalProgressResult
	if err := a.send(ctx, http.MethodPut, idPath("/goals/goal/", id)+"/progress", GoalProgress{AmountChange: change}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DeleteGoal(ctx context.Context, id string) error {
	return a.send(ctx, http.MethodDelete, idPath("/goals/goal/", id), nil, nil)
}

// Budgets

func (a *API) ListBudgets(ctx context.Context) ([]Budget, error) {
	var out []Budget
	err := a.send(ctx, http.MethodGet, "/goals/budget", nil, &out)
	return out, err
}

func (a *API) CreateBudget(ctx context.Context, in BudgetWrite) (*Budget, error) {
	var out Budget
	if err := a.send(ctx, http.MethodPost, "/goals/budget", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateBudget(ctx context.Context, id string, in BudgetWrite) error {
	return a.send(ctx, http.MethodPut, idPath("/goals/budget/", id), in, nil)
}

func (a *API) DeleteBudget(ctx context.Context, id string) error {
	return a.send(ctx, http.MethodDelete, idPath("/goals/budget/", id), nil, nil)
}

// Calendar

// CalendarReport fetches events for month (1-12) of year.
func (a *API) CalendarReport(ctx context.Context, year, month int) (CalendarReport, error) {
	q := url.Values{}
	q.Set("month", fmt.Sprint(month))
	q.Set("year", fmt.Sprint(year))

	out := CalendarReport{}
	err := a.send(ctx, http.MethodGet, "/calendar/report?"+q.Encode(), nil, &out)
	return out, err
}

func (a *API) CreateBill(ctx context.Context, in BillWrite) (*Bill, error) {
	var out Bill
	if err := a.send(ctx, http.MethodPost, "/calendar/bill", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateBill(ctx context.Context, id string, in BillWrite) error {
	return a.send(ctx, http.MethodPut, idPath("/calendar/bill/", id), in, nil)
}

func (a *API) DeleteBill(ctx context.Context, id string) error {
	return a.send(ctx, http.MethodDelete, idPath("/calendar/bill/", id), nil, nil)
}

// Reports are passed through undecoded; their shapes belong to the UI.

// Simulate asks the AI assistant a what-if question.
func (a *API) Simulate(ctx context.Context, question string) (json.RawMessage, error) {
	if question == "" {
		return nil, &FieldError{Field: "user_question", Message: "is required"}
	}
	var out json.RawMessage
	err := a.send(ctx, http.MethodPost, "/reports/simulate?user_question="+url.QueryEscape(question), nil, &out)
	return out, err
}

func (a *API) FinancialHealth(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := a.send(ctx, http.MethodGet, "/reports/fhs", nil, &out)
	return out, err
}

func (a *API) Forecast(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := a.send(ctx, http.MethodGet, "/reports/forecast/lstm", nil, &out)
	return out, err
}

func (a *API) AutoBudget(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := a.send(ctx, http.MethodGet, "/reports/budget/auto", nil, &out)
	return out, err
}
