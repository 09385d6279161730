package cart

import (
	"context"

	"danceBack/internal/models"
)

// AccountStore is the persistence needed by account carts.
type AccountStore interface {
	List(ctx context.Context, userID int64) ([]models.CartItem, error)
	Add(ctx context.Context, userID int64, item models.CartItem) error
	Remove(ctx context.Context, userID int64, cartItemID string) error
	SetQuantity(ctx context.Context, userID int64, cartItemID string, quantity int) error
	Clear(ctx context.Context, userID int64) error
}

func NewAccountCart(store AccountStore, userID int64) Cart {
	return &accountCart{store: store, userID: userID}
}

type accountCart struct {
	store  AccountStore
	userID int64
}

func (c *accountCart) Get(ctx context.Context) ([]models.CartItem, error) {
	return c.store.List(ctx, c.userID)
}

func (c *accountCart) Add(ctx context.Context, item models.CartItem) error {
	if err := validate(item); err != nil {
		return err
	}
	return c.store.Add(ctx, c.userID, item)
}

func (c *accountCart) Remove(ctx context.Context, cartItemID string) error {
	return c.store.Remove(ctx, c.userID, cartItemID)
}

func (c *accountCart) SetQuantity(ctx context.Context, cartItemID string, quantity int) error {
	if quantity < 0 {
		return models.ErrInvalidQuantity
	}
	if quantity == 0 {
		return c.store.Remove(ctx, c.userID, cartItemID)
	}
	return c.store.SetQuantity(ctx, c.userID, cartItemID, quantity)
}

func (c *accountCart) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.userID)
}
