package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"danceBack/internal/models"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// Stripe implements Processor on top of the Stripe API.
type Stripe struct {
	api           *client.API
	webhookSecret string
	currency      string
}

func NewStripe(cfg StripeConfig) *Stripe {
	return newStripe(cfg, nil)
}

func newStripe(cfg StripeConfig, backends *stripe.Backends) *Stripe {
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Stripe{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
	}
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(p.Amount)),
		Currency: stripe.String(s.currencyOr(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.Email != "" {
		params.ReceiptEmail = stripe.String(p.Email)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	params.AddMetadata(MetaOrderID, strconv.FormatInt(p.OrderID, 10))
	params.AddMetadata(MetaUserID, strconv.FormatInt(p.UserID, 10))

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return PaymentIntent{}, wrapStripeError(err)
	}
	return toPaymentIntent(pi), nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(p.Mode),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	switch p.Mode {
	case ModeSubscription:
		if p.PriceID == "" {
			return CheckoutSession{}, errors.New("subscription checkout: missing price")
		}
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.PriceID),
			Quantity: stripe.Int64(1),
		}}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: p.Metadata}
		if p.TrialDays > 0 {
			params.SubscriptionData.TrialPeriodDays = stripe.Int64(p.TrialDays)
		}
	case ModePayment:
		currency := s.currencyOr(p.Currency)
		for _, line := range p.Lines {
			params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(MinorUnits(line.UnitPrice)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(line.Name),
					},
				},
				Quantity: stripe.Int64(int64(line.Quantity)),
			})
		}
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: p.Metadata}
	default:
		return CheckoutSession{}, fmt.Errorf("unsupported checkout mode %q", p.Mode)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, wrapStripeError(err)
	}
	return toCheckoutSession(sess), nil
}

func (s *Stripe) GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return CheckoutSession{}, wrapStripeError(err)
	}
	return toCheckoutSession(sess), nil
}

func (s *Stripe) CreateCustomer(ctx context.Context, email, name string, userID int64) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.AddMetadata(MetaUserID, strconv.FormatInt(userID, 10))
	c, err := s.api.Customers.New(params)
	if err != nil {
		return "", wrapStripeError(err)
	}
	return c.ID, nil
}

func (s *Stripe) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Get(id, params)
	if err != nil {
		return Subscription{}, wrapStripeError(err)
	}
	return toSubscription(sub), nil
}

func (s *Stripe) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (Subscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Update(id, params)
	if err != nil {
		return Subscription{}, wrapStripeError(err)
	}
	return toSubscription(sub), nil
}

// ParseWebhook verifies the Stripe-Signature header before decoding anything.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}
	switch {
	case strings.HasPrefix(out.Type, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("%w: payment intent: %v", ErrUndecodableEvent, err)
		}
		v := toPaymentIntent(&pi)
		out.PaymentIntent = &v
	case strings.HasPrefix(out.Type, "checkout.session."):
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return out, fmt.Errorf("%w: checkout session: %v", ErrUndecodableEvent, err)
		}
		v := toCheckoutSession(&cs)
		out.Session = &v
	case strings.HasPrefix(out.Type, "customer.subscription."):
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return out, fmt.Errorf("%w: subscription: %v", ErrUndecodableEvent, err)
		}
		v := toSubscription(&sub)
		out.Subscription = &v
	}
	return out, nil
}

func (s *Stripe) currencyOr(currency string) string {
	if currency != "" {
		return strings.ToLower(currency)
	}
	return s.currency
}

// SubscriptionStatus maps a Stripe subscription status onto the local one.
func SubscriptionStatus(status string) string {
	switch stripe.SubscriptionStatus(status) {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionStatusCancelled
	default:
		return models.SubscriptionStatusPending
	}
}

func toPaymentIntent(pi *stripe.PaymentIntent) PaymentIntent {
	return PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func toCheckoutSession(cs *stripe.CheckoutSession) CheckoutSession {
	out := CheckoutSession{
		ID:            cs.ID,
		URL:           cs.URL,
		Mode:          string(cs.Mode),
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Metadata:      cs.Metadata,
	}
	if cs.Customer != nil {
		out.CustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
	}
	return out
}

func toSubscription(sub *stripe.Subscription) Subscription {
	out := Subscription{
		ID:                sub.ID,
		Status:            SubscriptionStatus(string(sub.Status)),
		RawStatus:         string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodStart > 0 {
		out.CurrentPeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	return out
}

func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &ProcessorError{
			StatusCode: stripeErr.HTTPStatusCode,
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
		}
	}
	return err
}
