package finance

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"finance-sync/pkg/rest"
	"finance-sync/pkg/transport"

	"github.com/shopspring/decimal"
)

func TestCache_AddCategory(t *testing.T) {
	f := newFakeBackend()
	c := loadedCache(t, f)

	err := c.AddCategory(context.Background(), NewCategory{Name: "Pets", Direction: Expense, Icon: "paw"})
	if err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}

	if f.lastCategory.Type != rest.TypeExpense {
		t.Errorf("Expected type Expense, got %q", f.lastCategory.Type)
	}
	if !regexp.MustCompile(`^#[0-9a-f]{6}$`).MatchString(f.lastCategory.Color) {
		t.Errorf("Expected random hex color, got %q", f.lastCategory.Color)
	}
	if c.Icon("Pets") != "paw" {
		t.Errorf("Expected reloaded icon paw, got %q", c.Icon("Pets"))
	}

	if err := c.AddCategory(context.Background(), NewCategory{Name: "X", Direction: "both"}); !IsValidation(err) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestRandomColor(t *testing.T) {
	format := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for i := 0; i < 100; i++ {
		if color := randomColor(); !format.MatchString(color) {
			t.Fatalf("Expected #rrggbb, got %q", color)
		}
	}
}

func TestCache_DeleteCategory(t *testing.T) {
	f := newFakeBackend()
	f.categories = []rest.Category{
		{ID: "c1", Name: "Food", Type: rest.TypeExpense, IsDefault: true},
		{ID: "c2", Name: "Pets", Type: rest.TypeExpense},
		{ID: "c3", Name: "Hobby", Type: rest.TypeExpense},
	}
	c := loadedCache(t, f)
	ctx := context.Background()

	if err := c.DeleteCategory(ctx, "c1"); !errors.Is(err, ErrProtectedCategory) {
		t.Errorf("Expected ErrProtectedCategory, got %v", err)
	}
	if f.callCount("DeleteCategory") != 0 {
		t.Error("Expected built-in category to be refused locally")
	}

	f.setFail("DeleteCategory", &transport.HTTPError{Status: 403, Message: "Cannot delete default categories"})
	before := c.Categories()
	err := c.DeleteCategory(ctx, "c2")
	if !errors.Is(err, ErrProtectedCategory) {
		t.Errorf("Expected ErrProtectedCategory from 403, got %v", err)
	}
	if transport.StatusCode(err) != 403 {
		t.Errorf("Expected status 403 preserved, got %d", transport.StatusCode(err))
	}
	if !reflect.DeepEqual(before, c.Categories()) {
		t.Error("Expected categories restored")
	}

	f.setFail("DeleteCategory", nil)
	if err := c.DeleteCategory(ctx, "c3"); err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}
	if len(c.Categories()) != 2 {
		t.Errorf("Expected 2 categories, got %d", len(c.Categories()))
	}
}

func budgetFixture() *fakeBackend {
	f := newFakeBackend()
	f.budgets = []rest.Budget{
		{
			ID: "b1", Name: "Food Budget", Category: "Food", LimitAmount: dec("500"), Period: rest.PeriodMonthly,
			CurrentSpending: dec("200"), RemainingBudget: dec("300"), DailySpendingLimit: dec("20"), DaysRemaining: 15,
		},
		{
			ID: "b2", Name: "Fun Budget", Category: "Entertainment", LimitAmount: dec("100"),
			CurrentSpending: dec("150"), RemainingBudget: dec("-50"),
		},
	}
	return f
}

func TestCache_LoadBudgets(t *testing.T) {
	c := loadedCache(t, budgetFixture())

	budgets := c.Budgets()
	if len(budgets) != 2 {
		t.Fatalf("Expected 2 budgets, got %d", len(budgets))
	}
	if budgets[1].Period != rest.PeriodMonthly {
		t.Errorf("Expected default period Monthly, got %q", budgets[1].Period)
	}
	if budgets[0].Color != "#FF6B6B" {
		t.Errorf("Expected built-in Food color, got %q", budgets[0].Color)
	}
	if b, ok := c.BudgetByCategory("Entertainment"); !ok || b.ID != "b2" {
		t.Errorf("Expected b2 by category, got %+v %v", b, ok)
	}
	if _, ok := c.BudgetByCategory("Travel"); ok {
		t.Error("Expected no Travel budget")
	}
}

func TestCache_TotalBudgetProgress(t *testing.T) {
	c := loadedCache(t, budgetFixture())

	p := c.TotalBudgetProgress()
	if !p.Total.Equal(dec("600")) || !p.Spent.Equal(dec("350")) {
		t.Errorf("Expected total 600 spent 350, got %+v", p)
	}
	if !p.Remaining.Equal(dec("250")) {
		t.Errorf("Expected remaining 250, got %s", p.Remaining)
	}

	over := NewCache(CacheConfig{Backend: newFakeBackend()})
	over.budgets = []Budget{{Allocated: dec("100"), Spent: dec("130")}}
	p = over.TotalBudgetProgress()
	if p.Progress != 1 {
		t.Errorf("Expected progress capped at 1, got %v", p.Progress)
	}
	if !p.Remaining.IsZero() {
		t.Errorf("Expected remaining 0, got %s", p.Remaining)
	}

	empty := NewCache(CacheConfig{Backend: newFakeBackend()}).TotalBudgetProgress()
	if empty.Progress != 0 || !empty.Total.IsZero() {
		t.Errorf("Expected empty progress, got %+v", empty)
	}
}

func TestBudget_WeeklySafeLimit(t *testing.T) {
	tests := []struct {
		name   string
		budget Budget
		want   decimal.Decimal
	}{
		{"monthly", Budget{Period: rest.PeriodMonthly, DailyLimit: dec("12.5")}, dec("87.5")},
		{"weekly", Budget{Period: rest.PeriodWeekly, Remaining: dec("40")}, dec("40")},
		{"weekly overspent", Budget{Period: rest.PeriodWeekly, Remaining: dec("-5")}, decimal.Zero},
		{"monthly negative daily", Budget{Period: rest.PeriodMonthly, DailyLimit: dec("-1")}, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.budget.WeeklySafeLimit(); !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCache_AddBudget(t *testing.T) {
	f := newFakeBackend()
	c := loadedCache(t, f)

	err := c.AddBudget(context.Background(), BudgetInput{Category: "Travel", Allocated: dec("300"), Period: rest.PeriodWeekly})
	if err != nil {
		t.Fatalf("AddBudget failed: %v", err)
	}
	if f.lastBudgetWrite.Name != "Travel Budget" || f.lastBudgetWrite.LimitAmount != 300 {
		t.Errorf("Unexpected request %+v", f.lastBudgetWrite)
	}
	if len(c.Budgets()) != 1 {
		t.Errorf("Expected budgets reloaded, got %d", len(c.Budgets()))
	}

	err = c.AddBudget(context.Background(), BudgetInput{Category: "Travel", Allocated: dec("1"), Period: "Daily"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "period" {
		t.Errorf("Expected period ValidationError, got %v", err)
	}
}

func TestCache_UpdateBudget(t *testing.T) {
	f := budgetFixture()
	c := loadedCache(t, f)
	ctx := context.Background()

	f.setFail("UpdateBudget", errors.New("offline"))
	before := c.Budgets()
	if err := c.UpdateBudget(ctx, "b1", BudgetInput{Category: "Travel", Allocated: dec("50"), Period: rest.PeriodMonthly}); err == nil {
		t.Fatal("Expected error")
	}
	if !reflect.DeepEqual(before, c.Budgets()) {
		t.Error("Expected budgets restored")
	}

	f.setFail("UpdateBudget", nil)
	if err := c.UpdateBudget(ctx, "b1", BudgetInput{Category: "Travel", Allocated: dec("50"), Period: rest.PeriodMonthly}); err != nil {
		t.Fatalf("UpdateBudget failed: %v", err)
	}
	if f.lastBudgetWrite.Name != "Travel Budget" {
		t.Errorf("Expected name derived from category, got %q", f.lastBudgetWrite.Name)
	}
	b, _ := c.BudgetByCategory("Travel")
	if !b.Allocated.Equal(dec("50")) || b.Color != "#3498DB" {
		t.Errorf("Expected updated budget, got %+v", b)
	}

	if err := c.UpdateBudget(ctx, "missing", BudgetInput{Category: "X", Allocated: dec("1"), Period: rest.PeriodMonthly}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCache_DeleteBudget(t *testing.T) {
	f := budgetFixture()
	c := loadedCache(t, f)

	f.setFail("DeleteBudget", errors.New("offline"))
	before := c.Budgets()
	if err := c.DeleteBudget(context.Background(), "b1"); err == nil {
		t.Fatal("Expected error")
	}
	if !reflect.DeepEqual(before, c.Budgets()) {
		t.Error("Expected budgets restored")
	}

	f.setFail("DeleteBudget", nil)
	if err := c.DeleteBudget(context.Background(), "b1"); err != nil {
		t.Fatalf("DeleteBudget failed: %v", err)
	}
	if len(c.Budgets()) != 1 {
		t.Errorf("Expected 1 budget left, got %d", len(c.Budgets()))
	}
}

func calendarFixture() *fakeBackend {
	f := newFakeBackend()
	rent := dec("-1200")
	salary := dec("3000")
	f.calendar = rest.CalendarReport{
		"2025-03-01": {
			{ID: "bill-1", EventDate: restDate("2025-03-01"), Type: rest.EventUserBill, Name: "Rent", Amount: &rent, Source: "user"},
			{EventDate: restDate("2025-03-01"), Type: rest.EventBudgetReset, Name: "Budgets reset"},
		},
		"2025-03-25": {
			{ID: "inc-1", EventDate: restDate("2025-03-25"), Type: rest.EventIncomeExpected, Name: "Salary", Amount: &salary},
		},
	}
	return f
}

func TestCache_LoadCalendar(t *testing.T) {
	f := calendarFixture()
	c, _ := newTestCache(t, f)

	if err := c.LoadCalendar(context.Background(), 2025, time.March); err != nil {
		t.Fatalf("LoadCalendar failed: %v", err)
	}
	cal, year, month := c.Calendar()
	if year != 2025 || month != time.March {
		t.Errorf("Expected 2025-03, got %d-%d", year, month)
	}
	if len(cal) != 2 {
		t.Errorf("Expected 2 days, got %d", len(cal))
	}

	events := c.EventsOn(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC))
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if !events[0].Editable() || events[1].Editable() {
		t.Error("Expected only the user bill to be editable")
	}
	if events[1].Amount != nil {
		t.Errorf("Expected nil amount, got %v", events[1].Amount)
	}
}

func TestCache_UpdateBill(t *testing.T) {
	f := calendarFixture()
	c, _ := newTestCache(t, f)
	ctx := context.Background()
	if err := c.LoadCalendar(ctx, 2025, time.March); err != nil {
		t.Fatalf("LoadCalendar failed: %v", err)
	}
	in := BillInput{Name: "Rent+", Amount: dec("1300"), NextDueDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Frequency: "Monthly"}

	if err := c.UpdateBill(ctx, "inc-1", in); !errors.Is(err, ErrReadOnlyEvent) {
		t.Errorf("Expected ErrReadOnlyEvent, got %v", err)
	}
	if err := c.UpdateBill(ctx, "nope", in); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if f.callCount("UpdateBill") != 0 {
		t.Error("Expected no server calls")
	}

	f.setFail("UpdateBill", errors.New("offline"))
	before, _, _ := c.Calendar()
	if err := c.UpdateBill(ctx, "bill-1", in); err == nil {
		t.Fatal("Expected error")
	}
	if after, _, _ := c.Calendar(); !reflect.DeepEqual(before, after) {
		t.Error("Expected calendar restored")
	}

	f.setFail("UpdateBill", nil)
	loads := f.callCount("CalendarReport")
	if err := c.UpdateBill(ctx, "bill-1", in); err != nil {
		t.Fatalf("UpdateBill failed: %v", err)
	}
	if f.callCount("CalendarReport") != loads+1 {
		t.Error("Expected calendar reload")
	}
}

func TestCache_DeleteBill(t *testing.T) {
	f := calendarFixture()
	c, _ := newTestCache(t, f)
	ctx := context.Background()
	if err := c.LoadCalendar(ctx, 2025, time.March); err != nil {
		t.Fatalf("LoadCalendar failed: %v", err)
	}

	if err := c.DeleteBill(ctx, "inc-1"); !errors.Is(err, ErrReadOnlyEvent) {
		t.Errorf("Expected ErrReadOnlyEvent, got %v", err)
	}

	f.setFail("DeleteBill", errors.New("offline"))
	before, _, _ := c.Calendar()
	if err := c.DeleteBill(ctx, "bill-1"); err == nil {
		t.Fatal("Expected error")
	}
	if after, _, _ := c.Calendar(); !reflect.DeepEqual(before, after) {
		t.Error("Expected calendar restored")
	}

	f.setFail("DeleteBill", nil)
	if err := c.DeleteBill(ctx, "bill-1"); err != nil {
		t.Fatalf("DeleteBill failed: %v", err)
	}
	events := c.EventsOn(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if len(events) != 1 || events[0].Type != rest.EventBudgetReset {
		t.Errorf("Expected only the budget reset left, got %+v", events)
	}
}

func recurringBillFixture() *fakeBackend {
	f := calendarFixture()
	gym := dec("-45")
	for _, day := range []string{"2025-03-07", "2025-03-21"} {
		f.calendar[day] = append(f.calendar[day], rest.CalendarEvent{
			ID: "bill-9", EventDate: restDate(day), Type: rest.EventUserBill, Name: "Gym (RM 45.00)", Amount: &gym, Source: "User Input",
		})
	}
	return f
}

func billEvents(cal Calendar, id string) []CalendarEvent {
	var out []CalendarEvent
	for _, events := range cal {
		for _, e := range events {
			if e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out
}

func TestCache_DeleteRecurringBill(t *testing.T) {
	f := recurringBillFixture()
	c, _ := newTestCache(t, f)
	ctx := context.Background()
	if err := c.LoadCalendar(ctx, 2025, time.March); err != nil {
		t.Fatalf("LoadCalendar failed: %v", err)
	}

	var during []CalendarEvent
	c.backend = &billObservingBackend{fakeBackend: f, onWrite: func() {
		cal, _, _ := c.Calendar()
		during = billEvents(cal, "bill-9")
	}}

	loads := f.callCount("CalendarReport")
	if err := c.DeleteBill(ctx, "bill-9"); err != nil {
		t.Fatalf("DeleteBill failed: %v", err)
	}
	if len(during) != 0 {
		t.Errorf("Expected every occurrence removed optimistically, got %+v", during)
	}
	cal, _, _ := c.Calendar()
	if left := billEvents(cal, "bill-9"); len(left) != 0 {
		t.Errorf("Expected no occurrences left, got %+v", left)
	}
	if _, ok := cal["2025-03-07"]; ok {
		t.Error("Expected empty day removed")
	}
	if len(c.EventsOn(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))) != 2 {
		t.Error("Expected other days untouched")
	}
	if f.callCount("CalendarReport") != loads+1 {
		t.Error("Expected calendar reload")
	}
}

func TestCache_DeleteRecurringBillRollback(t *testing.T) {
	f := recurringBillFixture()
	c, _ := newTestCache(t, f)
	ctx := context.Background()
	if err := c.LoadCalendar(ctx, 2025, time.March); err != nil {
		t.Fatalf("LoadCalendar failed: %v", err)
	}

	f.setFail("DeleteBill", errors.New("offline"))
	before, _, _ := c.Calendar()
	if err := c.DeleteBill(ctx, "bill-9"); err == nil {
		t.Fatal("Expected error")
	}
	if after, _, _ := c.Calendar(); !reflect.DeepEqual(before, after) {
		t.Error("Expected calendar restored")
	}
}

func TestCache_UpdateRecurringBill(t *testing.T) {
	f := recurringBillFixture()
	c, _ := newTestCache(t, f)
	ctx := context.Background()
	if err := c.LoadCalendar(ctx, 2025, time.March); err != nil {
		t.Fatalf("LoadCalendar failed: %v", err)
	}

	var during []CalendarEvent
	c.backend = &billObservingBackend{fakeBackend: f, onWrite: func() {
		cal, _, _ := c.Calendar()
		during = billEvents(cal, "bill-9")
	}}

	in := BillInput{Name: "Gym Plus", Amount: dec("60.5"), NextDueDate: time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), Frequency: "Bi-Weekly"}
	if err := c.UpdateBill(ctx, "bill-9", in); err != nil {
		t.Fatalf("UpdateBill failed: %v", err)
	}

	if len(during) != 2 {
		t.Fatalf("Expected 2 occurrences during the call, got %d", len(during))
	}
	for _, e := range during {
		if e.Name != "Gym Plus (RM 60.50)" {
			t.Errorf("Expected 'Gym Plus (RM 60.50)', got %q", e.Name)
		}
		if !e.Amount.Equal(dec("-60.5")) {
			t.Errorf("Expected -60.5, got %s", e.Amount)
		}
	}

	cal, _, _ := c.Calendar()
	for _, e := range billEvents(cal, "bill-9") {
		if e.Name != "Gym Plus (RM 60.50)" {
			t.Errorf("Expected reloaded name 'Gym Plus (RM 60.50)', got %q", e.Name)
		}
	}
}

func TestBillEventName(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"Rent", "1200", "Rent (RM 1200.00)"},
		{"Gym", "-45.5", "Gym (RM 45.50)"},
		{"Water", "0.125", "Water (RM 0.13)"},
	}

	for _, tt := range tests {
		if got := billEventName(tt.name, dec(tt.amount)); got != tt.want {
			t.Errorf("billEventName(%s, %s) = %q, want %q", tt.name, tt.amount, got, tt.want)
		}
	}
}

type billObservingBackend struct {
	*fakeBackend
	onWrite func()
}

func (o *billObservingBackend) UpdateBill(ctx context.Context, id string, in rest.BillWrite) error {
	o.onWrite()
	return o.fakeBackend.UpdateBill(ctx, id, in)
}

func (o *billObservingBackend) DeleteBill(ctx context.Context, id string) error {
	o.onWrite()
	return o.fakeBackend.DeleteBill(ctx, id)
}

func TestCache_AddBill(t *testing.T) {
	f := newFakeBackend()
	c, _ := newTestCache(t, f)
	ctx := context.Background()
	if err := c.LoadCalendar(ctx, 2025, time.March); err != nil {
		t.Fatalf("LoadCalendar failed: %v", err)
	}

	err := c.AddBill(ctx, BillInput{Name: "Internet", Amount: dec("99"), NextDueDate: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), Frequency: "Monthly"})
	if err != nil {
		t.Fatalf("AddBill failed: %v", err)
	}

	events := c.EventsOn(time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC))
	if len(events) != 1 || events[0].Name != "Internet" {
		t.Fatalf("Expected reloaded bill, got %+v", events)
	}
	if !events[0].Amount.Equal(dec("-99")) {
		t.Errorf("Expected signed amount -99, got %s", events[0].Amount)
	}

	err = c.AddBill(ctx, BillInput{Name: "Gym", Amount: dec("10"), NextDueDate: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), Frequency: "Weekly"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "frequency" {
		t.Errorf("Expected frequency ValidationError, got %v", err)
	}
}

func TestBillInput_DefaultCategory(t *testing.T) {
	req := BillInput{Name: "Rent", Amount: dec("-5"), NextDueDate: testNow, Frequency: "Monthly"}.toWrite()
	if req.Category != DefaultBillCategory {
		t.Errorf("Expected %s, got %s", DefaultBillCategory, req.Category)
	}
	if got := billAmount(dec("-5")); !got.Equal(dec("-5")) {
		t.Errorf("Expected bill amount -5, got %s", got)
	}
	if got := billAmount(dec("5")); !got.Equal(dec("-5")) {
		t.Errorf("Expected bill amount -5, got %s", got)
	}
}
