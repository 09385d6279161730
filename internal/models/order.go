package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. OrderStatusPending is the pending_payment state.
const (
	OrderStatusCreated   = "created"
	OrderStatusPending   = "pending"
	OrderStatusSucceeded = "succeeded"
	OrderStatusFailed    = "failed"
)

const (
	ItemTypeCourse   = "course"
	ItemTypeResource = "resource"
)

func ValidItemType(t string) bool {
	return t == ItemTypeCourse || t == ItemTypeResource
}

type Order struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Items             []OrderItem     `json:"items"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	PaymentIntentID   string          `json:"payment_intent_id,omitempty"`
	CheckoutSessionID string          `json:"checkout_session_id,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         *time.Time      `json:"updated_at,omitempty"`
}

// Terminal reports whether the order can no longer change status.
func (o Order) Terminal() bool {
	return o.Status == OrderStatusSucceeded || o.Status == OrderStatusFailed
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ItemType  string          `json:"item_type"`
	ItemID    int64           `json:"item_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineRequest is a client-supplied line; prices are never taken from it.
type LineRequest struct {
	ItemType string `json:"itemType"`
	ItemID   int64  `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type CheckoutRequest struct {
	Items []LineRequest `json:"items"`
}

type ConfirmOrderRequest struct {
	SessionID string `json:"sessionId"`
}

type Enrollment struct {
	UserID    int64     `json:"user_id"`
	CourseID  int64     `json:"course_id"`
	OrderID   int64     `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}
