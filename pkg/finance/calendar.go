package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// billOccurrences returns a copy of cal and the index of every event with id,
// keyed by day. A recurring bill repeats its id on each due date.
func billOccurrences(cal Calendar, id string) (Calendar, map[string][]int, error) {
	found := make(map[string][]int)
	for day, events := range cal {
		for i, e := range events {
			if e.ID != id {
				continue
			}
			if !e.Editable() {
				return nil, nil, ErrReadOnlyEvent
			}
			found[day] = append(found[day], i)
		}
	}
	if len(found) == 0 {
		return nil, nil, ErrNotFound
	}
	return cal.clone(), found, nil
}

// billEventName renders a user bill the way the calendar report names it.
func billEventName(name string, amount decimal.Decimal) string {
	return fmt.Sprintf("%s (RM %s)", name, amount.Abs().StringFixed(2))
}

// reloadCalendar refreshes the month currently loaded, if any.
func (c *Cache) reloadCalendar(ctx context.Context) {
	c.mu.RLock()
	year, month := c.calendarYear, c.calendarMonth
	c.mu.RUnlock()
	if year == 0 {
		return
	}
	c.reloadAfter(ctx, func(ctx context.Context) error {
		return c.LoadCalendar(ctx, year, month)
	}, CollectionCalendar)
}

// AddBill creates a recurring user bill and reloads the calendar.
func (c *Cache) AddBill(ctx context.Context, in BillInput) error {
	req := in.toWrite()
	if err := validate(req); err != nil {
		return err
	}
	_, err := c.backend.CreateBill(ctx, req)
	c.recordCreate(CollectionCalendar, err)
	if err != nil {
		return err
	}
	c.reloadCalendar(ctx)
	return nil
}

// UpdateBill edits a user bill. Only events of type "User Bill" can change.
func (c *Cache) UpdateBill(ctx context.Context, id string, in BillInput) error {
	req := in.toWrite()
	if err := validate(req); err != nil {
		return err
	}
	err := optimistic(c, CollectionCalendar, "update", &c.calendar,
		func(cal Calendar) (Calendar, error) {
			out, found, err := billOccurrences(cal, id)
			if err != nil {
				return nil, err
			}
			for day, indexes := range found {
				for _, i := range indexes {
					out[day][i].Name = billEventName(in.Name, in.Amount)
					out[day][i].Amount = billAmount(in.Amount)
				}
			}
			return out, nil
		},
		func() error { return c.backend.UpdateBill(ctx, id, req) },
	)
	if err != nil {
		return err
	}
	c.reloadCalendar(ctx)
	return nil
}

// DeleteBill removes every occurrence of a user bill from the calendar,
// then reloads the month.
func (c *Cache) DeleteBill(ctx context.Context, id string) error {
	err := optimistic(c, CollectionCalendar, "delete", &c.calendar,
		func(cal Calendar) (Calendar, error) {
			out, found, err := billOccurrences(cal, id)
			if err != nil {
				return nil, err
			}
			for day := range found {
				events := out[day][:0]
				for _, e := range out[day] {
					if e.ID != id {
						events = append(events, e)
					}
				}
				if len(events) == 0 {
					delete(out, day)
				} else {
					out[day] = events
				}
			}
			return out, nil
		},
		func() error { return c.backend.DeleteBill(ctx, id) },
	)
	if err != nil {
		return err
	}
	c.reloadCalendar(ctx)
	return nil
}

// EventsOn returns the events on date.
func (c *Cache) EventsOn(date time.Time) []CalendarEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CalendarEvent(nil), c.calendar[dateOf(date).Format("2006-01-02")]...)
}
