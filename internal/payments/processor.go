// Package payments wraps the external payment processor behind a small
// interface returning processor-agnostic values.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrUndecodableEvent is returned alongside the event id and type when
	// a correctly signed event carries an object that cannot be decoded.
	ErrUndecodableEvent = errors.New("payments: undecodable webhook object")
)

// Event types the application reacts to.
const (
	EventPaymentSucceeded       = "payment_intent.succeeded"
	EventPaymentFailed          = "payment_intent.payment_failed"
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutExpired        = "checkout.session.expired"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	EventSubscriptionCreated    = "customer.subscription.created"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
)

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

// Metadata keys written on every processor object we create.
const (
	MetaOrderID   = "order_id"
	MetaUserID    = "user_id"
	MetaPlan      = "plan"
	MetaFrequency = "frequency"
)

type Processor interface {
	CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (PaymentIntent, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error)
	CreateCustomer(ctx context.Context, email, name string, userID int64) (string, error)
	GetSubscription(ctx context.Context, id string) (Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (Subscription, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}

type PaymentIntentParams struct {
	OrderID     int64
	UserID      int64
	Amount      decimal.Decimal
	Currency    string
	CustomerID  string
	Email       string
	Description string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Metadata     map[string]string
}

type CheckoutLine struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type CheckoutParams struct {
	Mode       string
	Currency   string
	Lines      []CheckoutLine
	PriceID    string
	TrialDays  int64
	CustomerID string
	Email      string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type CheckoutSession struct {
	ID             string
	URL            string
	Mode           string
	Status         string
	PaymentStatus  string
	CustomerID     string
	SubscriptionID string
	AmountTotal    int64
	Metadata       map[string]string
}

// Paid reports whether the processor considers the session settled.
func (s CheckoutSession) Paid() bool {
	return s.Status == "complete" && (s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required")
}

// Subscription is the processor's canonical record; Status is already
// mapped onto the local vocabulary.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	RawStatus          string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	Metadata           map[string]string
}

type Event struct {
	ID            string
	Type          string
	PaymentIntent *PaymentIntent
	Session       *CheckoutSession
	Subscription  *Subscription
}

// ProcessorError is a failure reported by the processor API.
type ProcessorError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProcessorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("processor error %d: %s", e.StatusCode, e.Message)
}

// MinorUnits converts an amount to the processor's integer representation.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
