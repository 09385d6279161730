package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"danceBack/internal/fsm"
	"danceBack/internal/models"
	"danceBack/internal/payments"
)

type SubscriptionService struct {
	subs        SubscriptionStore
	users       UserStore
	processor   payments.Processor
	notifier    Notifier
	plans       []models.Plan
	frontendURL string
	logger      *zap.Logger
	now         func() time.Time
}

func NewSubscriptionService(subs SubscriptionStore, users UserStore, processor payments.Processor, notifier Notifier, plans []models.Plan, frontendURL string, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		subs:        subs,
		users:       users,
		processor:   processor,
		notifier:    notifier,
		plans:       plans,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger.Named("subscriptions"),
		now:         time.Now,
	}
}

func (s *SubscriptionService) Plans() []models.Plan {
	return s.plans
}

func (s *SubscriptionService) plan(slug string) (models.Plan, bool) {
	for _, p := range s.plans {
		if p.Slug == slug {
			return p, true
		}
	}
	return models.Plan{}, false
}

// planForPrice finds the plan and billing frequency a processor price belongs to.
func (s *SubscriptionService) planForPrice(priceID string) (models.Plan, string, bool) {
	for _, p := range s.plans {
		switch priceID {
		case "":
		case p.MonthlyPrice:
			return p, models.BillingMonthly, true
		case p.YearlyPrice:
			return p, models.BillingYearly, true
		}
	}
	return models.Plan{}, "", false
}

func (s *SubscriptionService) List(ctx context.Context, userID int64) ([]models.Subscription, error) {
	return s.subs.ListByUser(ctx, userID)
}

// Checkout opens a subscription-mode checkout session for the plan.
func (s *SubscriptionService) Checkout(ctx context.Context, user models.User, req models.SubscriptionCheckoutRequest) (payments.CheckoutSession, error) {
	frequency := strings.ToLower(strings.TrimSpace(req.Frequency))
	if frequency == "" {
		frequency = models.BillingMonthly
	}
	plan, ok := s.plan(req.Plan)
	if !ok {
		return payments.CheckoutSession{}, fmt.Errorf("%w: %q", models.ErrUnknownPlan, req.Plan)
	}
	priceID, ok := plan.PriceID(frequency)
	if !ok {
		return payments.CheckoutSession{}, fmt.Errorf("%w: %s has no %s price", models.ErrUnknownPlan, plan.Slug, frequency)
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return payments.CheckoutSession{}, err
	}
	cs, err := s.processor.CreateCheckoutSession(ctx, payments.CheckoutParams{
		Mode:       payments.ModeSubscription,
		PriceID:    priceID,
		TrialDays:  plan.TrialDays,
		CustomerID: customerID,
		SuccessURL: s.frontendURL + "/subscriptions/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.frontendURL + "/pricing",
		Metadata: map[string]string{
			payments.MetaUserID:    strconv.FormatInt(user.ID, 10),
			payments.MetaPlan:      plan.Slug,
			payments.MetaFrequency: frequency,
		},
	})
	if err != nil {
		s.logger.Error("create subscription checkout", zap.Int64("user_id", user.ID), zap.Error(err))
		return payments.CheckoutSession{}, err
	}
	return cs, nil
}

func (s *SubscriptionService) ensureCustomer(ctx context.Context, user models.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	customerID, err := s.processor.CreateCustomer(ctx, user.Email, name, user.ID)
	if err != nil {
		return "", err
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", fmt.Errorf("store customer id: %w", err)
	}
	return customerID, nil
}

// SyncFromCheckout fetches the subscription created by a completed
// subscription-mode checkout and stores it.
func (s *SubscriptionService) SyncFromCheckout(ctx context.Context, session payments.CheckoutSession) (models.Subscription, error) {
	if session.SubscriptionID == "" {
		return models.Subscription{}, fmt.Errorf("checkout session %s has no subscription", session.ID)
	}
	remote, err := s.processor.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return models.Subscription{}, err
	}
	if remote.Metadata == nil {
		remote.Metadata = map[string]string{}
	}
	for k, v := range session.Metadata {
		if _, ok := remote.Metadata[k]; !ok {
			remote.Metadata[k] = v
		}
	}
	if remote.CustomerID == "" {
		remote.CustomerID = session.CustomerID
	}
	return s.Sync(ctx, remote)
}

// Sync upserts the processor's view of a subscription keyed by its
// processor id and keeps the owner's tier in step.
func (s *SubscriptionService) Sync(ctx context.Context, remote payments.Subscription) (models.Subscription, error) {
	owner, err := s.owner(ctx, remote)
	if err != nil {
		return models.Subscription{}, err
	}

	plan, frequency, ok := s.planForPrice(remote.PriceID)
	if !ok {
		plan, _ = s.plan(remote.Metadata[payments.MetaPlan])
		frequency = remote.Metadata[payments.MetaFrequency]
	}

	incoming := models.Subscription{
		UserID:               owner.ID,
		PlanSlug:             plan.Slug,
		BillingFrequency:     frequency,
		Status:               remote.Status,
		CancelAtPeriodEnd:    remote.CancelAtPeriodEnd,
		StripeSubscriptionID: remote.ID,
		StripeCustomerID:     remote.CustomerID,
	}
	if !remote.CurrentPeriodStart.IsZero() {
		start := remote.CurrentPeriodStart
		incoming.CurrentPeriodStart = &start
	}
	if !remote.CurrentPeriodEnd.IsZero() {
		end := remote.CurrentPeriodEnd
		incoming.CurrentPeriodEnd = &end
	}

	saved, err := s.subs.Upsert(ctx, incoming, MergeSubscription)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	if saved.Status != remote.Status {
		s.logger.Info("processor status not applied",
			zap.String("subscription", remote.ID), zap.String("stored", saved.Status), zap.String("processor", remote.RawStatus))
	}

	if err := s.syncTier(ctx, saved); err != nil {
		return models.Subscription{}, err
	}
	return saved, nil
}

func (s *SubscriptionService) owner(ctx context.Context, remote payments.Subscription) (models.User, error) {
	if remote.CustomerID != "" {
		user, err := s.users.GetByStripeCustomerID(ctx, remote.CustomerID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, models.ErrUserNotFound) {
			return models.User{}, err
		}
	}
	userID, err := strconv.ParseInt(remote.Metadata[payments.MetaUserID], 10, 64)
	if err != nil {
		return models.User{}, models.ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if user.StripeCustomerID == "" && remote.CustomerID != "" {
		if err := s.users.SetStripeCustomerID(ctx, user.ID, remote.CustomerID); err != nil {
			return models.User{}, fmt.Errorf("store customer id: %w", err)
		}
	}
	return user, nil
}

// syncTier recomputes the owner's tier from every subscription they hold.
// The highest entitled plan wins, where later plans in the config rank
// higher; with none left entitled the tier falls back to FREE.
func (s *SubscriptionService) syncTier(ctx context.Context, sub models.Subscription) error {
	if !sub.Entitled() && sub.Status != models.SubscriptionStatusCancelled {
		return nil
	}
	held, err := s.subs.ListByUser(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	tier, rank := models.TierFree, -1
	for _, other := range append(held, sub) {
		if !other.Entitled() {
			continue
		}
		if i := s.planRank(other.PlanSlug); i > rank && s.plans[i].Tier != "" {
			tier, rank = s.plans[i].Tier, i
		}
	}
	if rank < 0 && sub.Entitled() {
		// entitled to a plan missing from config; leave the tier alone
		return nil
	}
	if err := s.users.SetSubscriptionTier(ctx, sub.UserID, tier); err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	return nil
}

func (s *SubscriptionService) planRank(slug string) int {
	for i, p := range s.plans {
		if p.Slug == slug {
			return i
		}
	}
	return -1
}

// MergeSubscription applies an incoming processor snapshot to the stored
// row. Period boundaries and the cancel flag always follow the processor;
// status only moves along allowed transitions.
func MergeSubscription(current *models.Subscription, incoming models.Subscription) models.Subscription {
	if !fsm.Subscriptions.Known(incoming.Status) {
		incoming.Status = models.SubscriptionStatusPending
	}
	if current == nil {
		return incoming
	}

	next := *current
	next.CurrentPeriodStart = incoming.CurrentPeriodStart
	next.CurrentPeriodEnd = incoming.CurrentPeriodEnd
	next.CancelAtPeriodEnd = incoming.CancelAtPeriodEnd
	if !next.CancelAtPeriodEnd {
		next.CancelReason = ""
	}
	if incoming.PlanSlug != "" {
		next.PlanSlug = incoming.PlanSlug
	}
	if incoming.BillingFrequency != "" {
		next.BillingFrequency = incoming.BillingFrequency
	}
	if incoming.StripeCustomerID != "" {
		next.StripeCustomerID = incoming.StripeCustomerID
	}
	if fsm.Subscriptions.CanTransition(current.Status, incoming.Status) {
		next.Status = incoming.Status
	}
	return next
}

func (s *SubscriptionService) load(ctx context.Context, caller models.User, id int64) (models.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if sub.UserID != caller.ID && !caller.HasAnyRole() {
		return models.Subscription{}, models.ErrForbidden
	}
	return sub, nil
}

// Cancel schedules cancellation at the end of the current period. Access
// is kept until the processor reports the subscription cancelled.
func (s *SubscriptionService) Cancel(ctx context.Context, caller models.User, id int64, reason string) (models.Subscription, error) {
	sub, err := s.load(ctx, caller, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if sub.Status == models.SubscriptionStatusCancelled {
		return models.Subscription{}, models.ErrSubscriptionCancelled
	}
	reason = strings.TrimSpace(reason)

	remote, err := s.processor.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, true)
	if err != nil {
		return models.Subscription{}, err
	}
	if err := s.subs.SetCancelAtPeriodEnd(ctx, sub.ID, true, reason); err != nil {
		return models.Subscription{}, err
	}
	sub.CancelAtPeriodEnd = true
	sub.CancelReason = reason
	if !remote.CurrentPeriodEnd.IsZero() {
		end := remote.CurrentPeriodEnd
		sub.CurrentPeriodEnd = &end
	}
	s.logger.Info("subscription cancellation scheduled", zap.Int64("subscription_id", sub.ID), zap.Int64("user_id", sub.UserID))

	owner := caller
	if sub.UserID != caller.ID {
		if owner, err = s.users.GetByID(ctx, sub.UserID); err != nil {
			s.logger.Warn("load subscription owner", zap.Int64("user_id", sub.UserID), zap.Error(err))
			return sub, nil
		}
	}
	s.notifier.CancellationScheduled(ctx, owner, sub)
	return sub, nil
}

// Reactivate clears a scheduled cancellation while the period is still running.
func (s *SubscriptionService) Reactivate(ctx context.Context, caller models.User, id int64) (models.Subscription, error) {
	sub, err := s.load(ctx, caller, id)
	if err != nil {
		return models.Subscription{}, err
	}
	if sub.Status == models.SubscriptionStatusCancelled {
		return models.Subscription{}, models.ErrSubscriptionCancelled
	}
	if sub.CurrentPeriodEnd == nil || !s.now().Before(*sub.CurrentPeriodEnd) {
		return models.Subscription{}, models.ErrPeriodEnded
	}
	if _, err := s.processor.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, false); err != nil {
		return models.Subscription{}, err
	}
	if err := s.subs.SetCancelAtPeriodEnd(ctx, sub.ID, false, ""); err != nil {
		return models.Subscription{}, err
	}
	sub.CancelAtPeriodEnd = false
	sub.CancelReason = ""
	s.logger.Info("subscription reactivated", zap.Int64("subscription_id", sub.ID))
	return sub, nil
}

// ReconcileLapsed re-reads subscriptions whose scheduled cancellation
// should have happened but was never reported.
func (s *SubscriptionService) ReconcileLapsed(ctx context.Context) (int, error) {
	lapsed, err := s.subs.ListLapsed(ctx, s.now())
	if err != nil {
		return 0, err
	}
	synced := 0
	for _, sub := range lapsed {
		remote, err := s.processor.GetSubscription(ctx, sub.StripeSubscriptionID)
		if err != nil {
			s.logger.Warn("reconcile fetch", zap.String("subscription", sub.StripeSubscriptionID), zap.Error(err))
			continue
		}
		if remote.CustomerID == "" {
			remote.CustomerID = sub.StripeCustomerID
		}
		if remote.Metadata == nil {
			remote.Metadata = map[string]string{}
		}
		if _, ok := remote.Metadata[payments.MetaUserID]; !ok {
			remote.Metadata[payments.MetaUserID] = strconv.FormatInt(sub.UserID, 10)
		}
		if _, err := s.Sync(ctx, remote); err != nil {
			s.logger.Warn("reconcile sync", zap.String("subscription", sub.StripeSubscriptionID), zap.Error(err))
			continue
		}
		synced++
	}
	return synced, nil
}
