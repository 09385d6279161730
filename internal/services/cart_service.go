package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"danceBack/internal/cart"
	"danceBack/internal/models"
)

type GuestCarts interface {
	Cart(guestID string) cart.Cart
}

// CartService picks the cart backing for a caller and prices new lines
// from the catalog.
type CartService struct {
	guests   GuestCarts
	accounts cart.AccountStore
	tokens   GuestTokens
	catalog  *CatalogService
	logger   *zap.Logger
}

func NewCartService(guests GuestCarts, accounts cart.AccountStore, tokens GuestTokens, catalog *CatalogService, logger *zap.Logger) *CartService {
	return &CartService{guests: guests, accounts: accounts, tokens: tokens, catalog: catalog, logger: logger.Named("cart")}
}

// IssueGuestToken returns a signed token naming a new, empty guest cart.
func (s *CartService) IssueGuestToken() (string, error) {
	token, _, err := s.tokens.NewGuestToken()
	return token, err
}

func (s *CartService) Account(userID int64) cart.Cart {
	return cart.NewAccountCart(s.accounts, userID)
}

func (s *CartService) Guest(token string) (cart.Cart, error) {
	if token == "" {
		return nil, ErrInvalidCartToken
	}
	guestID, err := s.tokens.ParseGuestToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCartToken, err)
	}
	return s.guests.Cart(guestID), nil
}

// Resolve returns the account cart for signed-in users and the guest cart
// named by guestToken otherwise.
func (s *CartService) Resolve(userID int64, guestToken string) (cart.Cart, error) {
	if userID > 0 {
		return s.Account(userID), nil
	}
	return s.Guest(guestToken)
}

func (s *CartService) AddItem(ctx context.Context, c cart.Cart, req models.AddCartItemRequest) ([]models.CartItem, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if !models.ValidItemType(req.ItemType) {
		return nil, models.ErrInvalidItemType
	}
	if req.Quantity < 0 {
		return nil, models.ErrInvalidQuantity
	}
	title, price, err := s.catalog.Price(ctx, req.ItemType, req.ItemID)
	if err != nil {
		return nil, err
	}
	item := models.CartItem{
		ItemType: req.ItemType,
		ItemID:   req.ItemID,
		Title:    title,
		Price:    price,
		Quantity: req.Quantity,
	}
	if err := c.Add(ctx, item); err != nil {
		return nil, err
	}
	return c.Get(ctx)
}

// MergeGuest folds the guest cart into the user's account cart and returns
// the resulting account cart. An invalid guest token is ignored.
func (s *CartService) MergeGuest(ctx context.Context, userID int64, guestToken string) ([]models.CartItem, error) {
	account := s.Account(userID)
	if guestToken != "" {
		guest, err := s.Guest(guestToken)
		if err != nil {
			s.logger.Warn("ignoring guest cart token", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			moved, err := cart.Merge(ctx, guest, account)
			if err != nil {
				return nil, fmt.Errorf("merge guest cart: %w", err)
			}
			if moved > 0 {
				s.logger.Info("guest cart merged", zap.Int64("user_id", userID), zap.Int("lines", moved))
			}
		}
	}
	return account.Get(ctx)
}
