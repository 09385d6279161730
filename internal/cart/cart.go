// Package cart exposes one cart capability over two backings: a Redis
// hash for guests and the cart_items table for signed-in users.
package cart

import (
	"context"
	"fmt"

	"danceBack/internal/models"
)

type Cart interface {
	Get(ctx context.Context) ([]models.CartItem, error)
	Add(ctx context.Context, item models.CartItem) error
	Remove(ctx context.Context, cartItemID string) error
	SetQuantity(ctx context.Context, cartItemID string, quantity int) error
	Clear(ctx context.Context) error
}

// Merge moves every line of from into into, summing quantities of the same
// product, then clears from. It returns the number of lines moved.
func Merge(ctx context.Context, from, into Cart) (int, error) {
	items, err := from.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("read guest cart: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}
	for _, it := range items {
		if err := into.Add(ctx, it); err != nil {
			return 0, fmt.Errorf("merge %s %d: %w", it.ItemType, it.ItemID, err)
		}
	}
	if err := from.Clear(ctx); err != nil {
		return len(items), fmt.Errorf("clear guest cart: %w", err)
	}
	return len(items), nil
}

func validate(item models.CartItem) error {
	if !models.ValidItemType(item.ItemType) {
		return models.ErrInvalidItemType
	}
	if item.Quantity <= 0 {
		return models.ErrInvalidQuantity
	}
	return nil
}
