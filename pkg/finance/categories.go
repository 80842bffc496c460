package finance

import (
	"context"
	"fmt"
	"math/rand/v2"

	"finance-sync/pkg/rest"
)

func randomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0x1000000))
}

// AddCategory creates a custom category and reloads categories.
func (c *Cache) AddCategory(ctx context.Context, in NewCategory) error {
	if !in.Direction.Valid() {
		return &ValidationError{Field: "direction", Message: "must be income or expense"}
	}
	color := in.Color
	if color == "" {
		color = randomColor()
	}
	req := rest.CategoryCreate{
		Name:  in.Name,
		Type:  in.Direction.wire(),
		Icon:  in.Icon,
		Color: color,
	}
	if err := validate(req); err != nil {
		return err
	}

	_, err := c.backend.CreateCategory(ctx, req)
	c.recordCreate(CollectionCategories, err)
	if err != nil {
		return err
	}
	c.reloadAfter(ctx, c.LoadCategories, CollectionCategories)
	return nil
}

// DeleteCategory removes a custom category. Built-in categories fail with
// ErrProtectedCategory, locally when the cache knows they are built-in and
// otherwise when the server refuses.
func (c *Cache) DeleteCategory(ctx context.Context, id string) error {
	return optimistic(c, CollectionCategories, "delete", &c.categories,
		func(categories []Category) ([]Category, error) {
			for _, cat := range categories {
				if cat.ID == id && cat.IsDefault {
					return nil, ErrProtectedCategory
				}
			}
			out, ok := removeWhere(categories, func(cat Category) bool { return cat.ID == id })
			if !ok {
				return nil, ErrNotFound
			}
			return out, nil
		},
		func() error { return protectedCategory(c.backend.DeleteCategory(ctx, id)) },
	)
}
