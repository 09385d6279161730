package models

import "github.com/shopspring/decimal"

type CartItem struct {
	ID       string          `json:"id"`
	ItemType string          `json:"item_type"`
	ItemID   int64           `json:"item_id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// SameProduct reports whether both lines refer to the same catalog item.
func (c CartItem) SameProduct(other CartItem) bool {
	return c.ItemType == other.ItemType && c.ItemID == other.ItemID
}

func CartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

type AddCartItemRequest struct {
	ItemType string `json:"itemType"`
	ItemID   int64  `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type UpdateCartItemRequest struct {
	CartItemID string `json:"cartItemId"`
	Quantity   int    `json:"quantity"`
}

type RemoveCartItemRequest struct {
	CartItemID string `json:"cartItemId"`
}
