package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"danceBack/internal/models"
	"danceBack/internal/payments"
)

// Webhook outcomes, also used as metric labels.
const (
	OutcomeApplied      = "applied"
	OutcomeDuplicate    = "duplicate"
	OutcomeTerminal     = "terminal"
	OutcomeUnknownOrder = "unknown_order"
	OutcomeUnknownOwner = "unknown_owner"
	OutcomeIgnored      = "ignored"
)

type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   string
}

type WebhookServiceDeps struct {
	Processor     payments.Processor
	Ledger        EventLedger
	Orders        OrderStore
	Users         UserStore
	Enrollments   EnrollmentStore
	Carts         *CartService
	Subscriptions *SubscriptionService
	Notifier      Notifier
	Logger        *zap.Logger
}

// WebhookService verifies processor callbacks and applies them exactly
// once per event id.
type WebhookService struct {
	processor   payments.Processor
	ledger      EventLedger
	orders      OrderStore
	users       UserStore
	enrollments EnrollmentStore
	carts       *CartService
	subs        *SubscriptionService
	notifier    Notifier
	logger      *zap.Logger
	now         func() time.Time
}

func NewWebhookService(deps WebhookServiceDeps) *WebhookService {
	return &WebhookService{
		processor:   deps.Processor,
		ledger:      deps.Ledger,
		orders:      deps.Orders,
		users:       deps.Users,
		enrollments: deps.Enrollments,
		carts:       deps.Carts,
		subs:        deps.Subscriptions,
		notifier:    deps.Notifier,
		logger:      deps.Logger.Named("webhook"),
		now:         time.Now,
	}
}

// Handle verifies the signature before touching any state. An error
// wrapping payments.ErrInvalidSignature means nothing was mutated; any
// other error means the event was not recorded and should be redelivered.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	event, err := s.processor.ParseWebhook(payload, signature)
	if errors.Is(err, payments.ErrUndecodableEvent) {
		return s.ackUndecodable(ctx, event, err)
	}
	if err != nil {
		return WebhookResult{}, err
	}
	res := WebhookResult{EventID: event.ID, EventType: event.Type}

	seen, err := s.ledger.Exists(ctx, event.ID)
	if err != nil {
		return res, fmt.Errorf("ledger lookup: %w", err)
	}
	if seen {
		res.Outcome = OutcomeDuplicate
		s.logger.Info("duplicate event", zap.String("event_id", event.ID), zap.String("type", event.Type))
		return res, nil
	}

	res.Outcome, err = s.dispatch(ctx, event)
	if err != nil {
		s.logger.Error("handle event", zap.String("event_id", event.ID), zap.String("type", event.Type), zap.Error(err))
		return res, err
	}
	if err := s.ledger.MarkProcessed(ctx, event.ID, event.Type); err != nil {
		return res, fmt.Errorf("ledger record: %w", err)
	}
	return res, nil
}

// ackUndecodable records a signed event whose object could not be decoded
// so the processor stops redelivering it.
func (s *WebhookService) ackUndecodable(ctx context.Context, event payments.Event, cause error) (WebhookResult, error) {
	res := WebhookResult{EventID: event.ID, EventType: event.Type, Outcome: OutcomeIgnored}
	s.logger.Error("undecodable event", zap.String("event_id", event.ID), zap.String("type", event.Type), zap.Error(cause))
	if event.ID == "" {
		return res, nil
	}
	if err := s.ledger.MarkProcessed(ctx, event.ID, event.Type); err != nil {
		return res, fmt.Errorf("ledger record: %w", err)
	}
	return res, nil
}

func (s *WebhookService) dispatch(ctx context.Context, event payments.Event) (string, error) {
	switch event.Type {
	case payments.EventPaymentSucceeded, payments.EventPaymentFailed:
		if event.PaymentIntent == nil {
			return OutcomeIgnored, nil
		}
		to := models.OrderStatusFailed
		if event.Type == payments.EventPaymentSucceeded {
			to = models.OrderStatusSucceeded
		}
		return s.settleOrder(ctx, event, event.PaymentIntent.Metadata[payments.MetaOrderID], to)

	case payments.EventCheckoutCompleted, payments.EventCheckoutAsyncSucceeded,
		payments.EventCheckoutExpired, payments.EventCheckoutAsyncFailed:
		return s.checkoutEvent(ctx, event)

	case payments.EventSubscriptionCreated, payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
		if event.Subscription == nil {
			return OutcomeIgnored, nil
		}
		remote := *event.Subscription
		if event.Type == payments.EventSubscriptionDeleted {
			remote.Status = models.SubscriptionStatusCancelled
		}
		return s.syncSubscription(ctx, func() (models.Subscription, error) { return s.subs.Sync(ctx, remote) })
	}

	s.logger.Info("unhandled event type", zap.String("event_id", event.ID), zap.String("type", event.Type))
	return OutcomeIgnored, nil
}

func (s *WebhookService) checkoutEvent(ctx context.Context, event payments.Event) (string, error) {
	session := event.Session
	if session == nil {
		return OutcomeIgnored, nil
	}
	if session.Mode == payments.ModeSubscription {
		if event.Type != payments.EventCheckoutCompleted {
			return OutcomeIgnored, nil
		}
		return s.syncSubscription(ctx, func() (models.Subscription, error) { return s.subs.SyncFromCheckout(ctx, *session) })
	}

	orderID := session.Metadata[payments.MetaOrderID]
	switch event.Type {
	case payments.EventCheckoutCompleted:
		// async methods settle later through async_payment_succeeded
		if !session.Paid() {
			return OutcomeIgnored, nil
		}
		return s.settleOrder(ctx, event, orderID, models.OrderStatusSucceeded)
	case payments.EventCheckoutAsyncSucceeded:
		return s.settleOrder(ctx, event, orderID, models.OrderStatusSucceeded)
	default:
		return s.settleOrder(ctx, event, orderID, models.OrderStatusFailed)
	}
}

func (s *WebhookService) syncSubscription(ctx context.Context, sync func() (models.Subscription, error)) (string, error) {
	sub, err := sync()
	if errors.Is(err, models.ErrUserNotFound) {
		s.logger.Warn("subscription event for unknown customer")
		return OutcomeUnknownOwner, nil
	}
	if err != nil {
		return "", err
	}
	s.logger.Info("subscription synced",
		zap.Int64("subscription_id", sub.ID), zap.String("status", sub.Status), zap.Bool("cancel_at_period_end", sub.CancelAtPeriodEnd))
	return OutcomeApplied, nil
}

// settleOrder moves the order named by rawOrderID to a terminal status.
// Terminal orders are never touched again. Courses are granted only after
// the order has been moved to succeeded.
func (s *WebhookService) settleOrder(ctx context.Context, event payments.Event, rawOrderID, to string) (string, error) {
	orderID, err := strconv.ParseInt(rawOrderID, 10, 64)
	if err != nil {
		s.logger.Warn("webhook for unknown order", zap.String("event_id", event.ID), zap.String("order_id", rawOrderID))
		return OutcomeUnknownOrder, nil
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, models.ErrOrderNotFound) {
		s.logger.Warn("webhook for unknown order", zap.String("event_id", event.ID), zap.Int64("order_id", orderID))
		return OutcomeUnknownOrder, nil
	}
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}
	if order.Terminal() {
		s.logger.Info("order already settled",
			zap.String("event_id", event.ID), zap.Int64("order_id", orderID), zap.String("status", order.Status), zap.String("wanted", to))
		// enrollment is idempotent; a redelivery completes a grant that failed after the transition
		if order.Status == models.OrderStatusSucceeded {
			if err := s.enroll(ctx, order); err != nil {
				return "", err
			}
		}
		return OutcomeTerminal, nil
	}

	now := s.now()
	if order.Status == models.OrderStatusCreated {
		if err := s.orders.Transition(ctx, order.ID, models.OrderStatusCreated, models.OrderStatusPending, now); err != nil && !errors.Is(err, models.ErrStatusConflict) {
			return "", fmt.Errorf("order %d to pending: %w", order.ID, err)
		}
	}
	if err := s.orders.Transition(ctx, order.ID, models.OrderStatusPending, to, now); err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			s.logger.Info("order settled concurrently", zap.Int64("order_id", order.ID))
			return OutcomeTerminal, nil
		}
		return "", fmt.Errorf("order %d to %s: %w", order.ID, to, err)
	}
	order.Status = to
	order.CompletedAt = &now
	s.logger.Info("order settled", zap.String("event_id", event.ID), zap.Int64("order_id", order.ID), zap.String("status", to))

	if to == models.OrderStatusSucceeded {
		if err := s.enroll(ctx, order); err != nil {
			return "", err
		}
		s.afterPurchase(ctx, order)
	}
	s.notifier.OrderStatusChanged(order)
	return OutcomeApplied, nil
}

func (s *WebhookService) enroll(ctx context.Context, order models.Order) error {
	for _, it := range order.Items {
		if it.ItemType != models.ItemTypeCourse {
			continue
		}
		if err := s.enrollments.Enroll(ctx, order.UserID, it.ItemID, order.ID); err != nil {
			return fmt.Errorf("enroll course %d: %w", it.ItemID, err)
		}
	}
	return nil
}

func (s *WebhookService) afterPurchase(ctx context.Context, order models.Order) {
	if err := s.carts.Account(order.UserID).Clear(ctx); err != nil {
		s.logger.Warn("clear cart after purchase", zap.Int64("user_id", order.UserID), zap.Error(err))
	}
	user, err := s.users.GetByID(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("load buyer", zap.Int64("user_id", order.UserID), zap.Error(err))
		return
	}
	s.notifier.PurchaseConfirmation(ctx, user, order)
}

// PruneLedger drops ledger entries older than retention.
func (s *WebhookService) PruneLedger(ctx context.Context, retention time.Duration) (int64, error) {
	return s.ledger.PruneBefore(ctx, s.now().Add(-retention))
}
