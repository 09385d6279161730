package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"danceBack/internal/models"
	"danceBack/internal/payments"
)

func pendingOrder(id, userID int64) models.Order {
	return models.Order{
		ID:       id,
		UserID:   userID,
		Status:   models.OrderStatusPending,
		Currency: "usd",
		Total:    decimal.RequireFromString("49.00"),
		Items: []models.OrderItem{
			{ItemType: models.ItemTypeCourse, ItemID: 1, Title: "Salsa Foundations", Quantity: 1, UnitPrice: decimal.RequireFromString("49.00")},
		},
	}
}

func intentEvent(id, typ, orderID string) payments.Event {
	return payments.Event{
		ID:   id,
		Type: typ,
		PaymentIntent: &payments.PaymentIntent{
			ID:       "pi_1",
			Metadata: map[string]string{payments.MetaOrderID: orderID},
		},
	}
}

func TestWebhookPaymentSucceeded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, zap.NewNop())
	env.users = newFakeUsers(models.User{ID: 3, Email: "buyer@example.com"})
	env.orders = newFakeOrders(pendingOrder(10, 3))
	require.NoError(t, env.accounts.Add(ctx, 3, models.CartItem{ItemType: models.ItemTypeCourse, ItemID: 1, Quantity: 1}))
	env.processor.event = intentEvent("evt_1", payments.EventPaymentSucceeded, "10")
	svc := env.webhookService(zap.NewNop())

	res, err := svc.Handle(ctx, []byte(`{}`), "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	order, _ := env.orders.GetByID(ctx, 10)
	assert.Equal(t, models.OrderStatusSucceeded, order.Status)
	assert.NotNil(t, order.CompletedAt)
	assert.Contains(t, env.enrollments.enrolled, [2]int64{3, 1})
	assert.Empty(t, env.accounts.items[3])
	require.Len(t, env.notifier.purchases, 1)
	require.Len(t, env.notifier.statuses, 1)
	assert.Contains(t, env.ledger.events, "evt_1")
}

func TestWebhookInvalidSignatureMutatesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, zap.NewNop())
	env.orders = newFakeOrders(pendingOrder(10, 3))
	env.processor.event = intentEvent("evt_1", payments.EventPaymentSucceeded, "10")
	svc := env.webhookService(zap.NewNop())

	_, err := svc.Handle(ctx, []byte(`{"tampered":true}`), "t=1,v1=bad")
	assert.ErrorIs(t, err, payments.ErrInvalidSignature)

	order, _ := env.orders.GetByID(ctx, 10)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Zero(t, env.orders.writes)
	assert.Zero(t, env.subs.writes)
	assert.Empty(t, env.ledger.events)
}

func TestWebhookTerminalOrderNeverChanges(t *testing.T) {
	ctx := context.Background()
	for _, status := range []string{models.OrderStatusSucceeded, models.OrderStatusFailed} {
		for _, typ := range []string{payments.EventPaymentSucceeded, payments.EventPaymentFailed} {
			env := newTestEnv(t, zap.NewNop())
			order := pendingOrder(10, 3)
			order.Status = status
			env.orders = newFakeOrders(order)
			env.processor.event = intentEvent("evt_"+status+typ, typ, "10")
			svc := env.webhookService(zap.NewNop())

			res, err := svc.Handle(ctx, nil, "valid")
			require.NoError(t, err)
			assert.Equal(t, OutcomeTerminal, res.Outcome)

			got, _ := env.orders.GetByID(ctx, 10)
			assert.Equal(t, status, got.Status)
			assert.Zero(t, env.orders.writes)
			assert.Empty(t, env.notifier.purchases)
		}
	}
}

func TestWebhookUnknownOrderWarns(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	env := newTestEnv(t, zap.NewNop())
	env.processor.event = intentEvent("evt_9", payments.EventPaymentSucceeded, "999")
	svc := env.webhookService(zap.New(core))

	res, err := svc.Handle(context.Background(), nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownOrder, res.Outcome)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("webhook for unknown order")
	assert.Equal(t, 1, warnings.Len())
}

func TestWebhookDuplicateEventIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, zap.NewNop())
	env.users = newFakeUsers(models.User{ID: 3})
	env.orders = newFakeOrders(pendingOrder(10, 3))
	env.processor.event = intentEvent("evt_1", payments.EventPaymentSucceeded, "10")
	svc := env.webhookService(zap.NewNop())

	_, err := svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	writes := env.orders.writes

	res, err := svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, writes, env.orders.writes)
	assert.Len(t, env.notifier.purchases, 1)
}

func TestWebhookCheckoutExpiredFailsOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, zap.NewNop())
	env.orders = newFakeOrders(pendingOrder(11, 3))
	env.processor.event = payments.Event{
		ID:   "evt_2",
		Type: payments.EventCheckoutExpired,
		Session: &payments.CheckoutSession{
			ID:       "cs_1",
			Mode:     payments.ModePayment,
			Status:   "expired",
			Metadata: map[string]string{payments.MetaOrderID: "11"},
		},
	}
	svc := env.webhookService(zap.NewNop())

	res, err := svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	order, _ := env.orders.GetByID(ctx, 11)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.Empty(t, env.enrollments.enrolled)
}

func TestWebhookUnhandledEventIgnored(t *testing.T) {
	env := newTestEnv(t, zap.NewNop())
	env.processor.event = payments.Event{ID: "evt_3", Type: "invoice.created"}
	svc := env.webhookService(zap.NewNop())

	res, err := svc.Handle(context.Background(), nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Contains(t, env.ledger.events, "evt_3")
}

func TestWebhookUndecodableEventAcknowledged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	env := newTestEnv(t, zap.NewNop())
	env.orders = newFakeOrders(pendingOrder(10, 3))
	env.processor.event = payments.Event{ID: "evt_5", Type: payments.EventPaymentSucceeded}
	env.processor.parseErr = fmt.Errorf("%w: payment intent: bad amount", payments.ErrUndecodableEvent)
	svc := env.webhookService(zap.New(core))

	res, err := svc.Handle(context.Background(), nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, "evt_5", res.EventID)
	assert.Contains(t, env.ledger.events, "evt_5")
	assert.Zero(t, env.orders.writes)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("undecodable event").Len())
}

// racingOrders fails the order just before the succeeded transition lands.
type racingOrders struct {
	*fakeOrders
}

func (r racingOrders) Transition(ctx context.Context, id int64, from, to string, at time.Time) error {
	if to == models.OrderStatusSucceeded {
		if err := r.fakeOrders.Transition(ctx, id, from, models.OrderStatusFailed, at); err != nil {
			return err
		}
	}
	return r.fakeOrders.Transition(ctx, id, from, to, at)
}

func TestWebhookLostRaceGrantsNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, zap.NewNop())
	env.users = newFakeUsers(models.User{ID: 3})
	env.orders = newFakeOrders(pendingOrder(10, 3))
	env.processor.event = intentEvent("evt_6", payments.EventPaymentSucceeded, "10")
	svc := env.webhookService(zap.NewNop())
	svc.orders = racingOrders{env.orders}

	res, err := svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTerminal, res.Outcome)

	order, _ := env.orders.GetByID(ctx, 10)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.Empty(t, env.enrollments.enrolled)
	assert.Empty(t, env.notifier.purchases)
}

func TestWebhookRedeliveryCompletesEnrollment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, zap.NewNop())
	env.users = newFakeUsers(models.User{ID: 3})
	env.orders = newFakeOrders(pendingOrder(10, 3))
	env.enrollments.err = errors.New("lock wait timeout")
	env.processor.event = intentEvent("evt_7", payments.EventPaymentSucceeded, "10")
	svc := env.webhookService(zap.NewNop())

	_, err := svc.Handle(ctx, nil, "valid")
	require.Error(t, err)
	assert.NotContains(t, env.ledger.events, "evt_7")
	order, _ := env.orders.GetByID(ctx, 10)
	assert.Equal(t, models.OrderStatusSucceeded, order.Status)

	env.enrollments.err = nil
	res, err := svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTerminal, res.Outcome)
	assert.Contains(t, env.enrollments.enrolled, [2]int64{3, 1})
	assert.Contains(t, env.ledger.events, "evt_7")
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, zap.NewNop())
	env.users = newFakeUsers(models.User{ID: 4, StripeCustomerID: "cus_4", SubscriptionTier: models.TierFree})
	svc := env.webhookService(zap.NewNop())

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	remote := payments.Subscription{
		ID:                 "sub_1",
		CustomerID:         "cus_4",
		Status:             models.SubscriptionStatusTrialing,
		PriceID:            "price_pro_m",
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
	}
	env.processor.event = payments.Event{ID: "evt_s1", Type: payments.EventSubscriptionCreated, Subscription: &remote}
	_, err := svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)

	sub, err := env.subs.GetByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	assert.Equal(t, "pro", sub.PlanSlug)
	assert.Equal(t, models.BillingMonthly, sub.BillingFrequency)
	user, _ := env.users.GetByID(ctx, 4)
	assert.Equal(t, "PRO", user.SubscriptionTier)

	// a stale "pending" snapshot cannot move the record backwards
	stale := remote
	stale.Status = models.SubscriptionStatusPending
	stale.CancelAtPeriodEnd = true
	env.processor.event = payments.Event{ID: "evt_s2", Type: payments.EventSubscriptionUpdated, Subscription: &stale}
	_, err = svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	sub, _ = env.subs.GetByStripeID(ctx, "sub_1")
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)

	deleted := remote
	env.processor.event = payments.Event{ID: "evt_s3", Type: payments.EventSubscriptionDeleted, Subscription: &deleted}
	_, err = svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	sub, _ = env.subs.GetByStripeID(ctx, "sub_1")
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	user, _ = env.users.GetByID(ctx, 4)
	assert.Equal(t, models.TierFree, user.SubscriptionTier)

	revived := remote
	revived.Status = models.SubscriptionStatusActive
	env.processor.event = payments.Event{ID: "evt_s4", Type: payments.EventSubscriptionUpdated, Subscription: &revived}
	_, err = svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	sub, _ = env.subs.GetByStripeID(ctx, "sub_1")
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
}

func TestWebhookSubscriptionCheckoutUsesMetadataOwner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, zap.NewNop())
	env.users = newFakeUsers(models.User{ID: 6})
	env.processor.subscriptions["sub_9"] = payments.Subscription{
		ID:         "sub_9",
		CustomerID: "cus_new",
		Status:     models.SubscriptionStatusActive,
		PriceID:    "price_pro_y",
	}
	env.processor.event = payments.Event{
		ID:   "evt_c1",
		Type: payments.EventCheckoutCompleted,
		Session: &payments.CheckoutSession{
			ID:             "cs_9",
			Mode:           payments.ModeSubscription,
			Status:         "complete",
			PaymentStatus:  "paid",
			SubscriptionID: "sub_9",
			Metadata:       map[string]string{payments.MetaUserID: "6"},
		},
	}
	svc := env.webhookService(zap.NewNop())

	res, err := svc.Handle(ctx, nil, "valid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	sub, err := env.subs.GetByStripeID(ctx, "sub_9")
	require.NoError(t, err)
	assert.Equal(t, int64(6), sub.UserID)
	assert.Equal(t, models.BillingYearly, sub.BillingFrequency)
	user, _ := env.users.GetByID(ctx, 6)
	assert.Equal(t, "cus_new", user.StripeCustomerID)
}
