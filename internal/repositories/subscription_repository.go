package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"danceBack/internal/models"
)

type SubscriptionRepository struct {
	DB *sql.DB
}

const subscriptionColumns = `id, user_id, plan_slug, billing_frequency, status, current_period_start, current_period_end, cancel_at_period_end, cancel_reason, stripe_subscription_id, stripe_customer_id, created_at, updated_at`

// MergeFunc decides the stored state given the current row (nil when absent)
// and the incoming processor snapshot.
type MergeFunc func(current *models.Subscription, incoming models.Subscription) models.Subscription

func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (models.Subscription, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	return scanSubscription(row)
}

func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeID string) (models.Subscription, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = ?`, stripeID)
	return scanSubscription(row)
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListLapsed returns subscriptions flagged to cancel whose period ended before now
// but which were never reported cancelled.
func (r *SubscriptionRepository) ListLapsed(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
WHERE cancel_at_period_end = 1 AND status <> ? AND current_period_end < ?`, models.SubscriptionStatusCancelled, now)
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, args ...any) ([]models.Subscription, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Upsert locks the row keyed by the processor subscription id, lets merge
// decide the final state and writes it back in one transaction.
func (r *SubscriptionRepository) Upsert(ctx context.Context, incoming models.Subscription, merge MergeFunc) (models.Subscription, error) {
	if incoming.StripeSubscriptionID == "" {
		return models.Subscription{}, errors.New("subscription upsert: missing processor id")
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Subscription{}, err
	}
	defer tx.Rollback()

	var current *models.Subscription
	row := tx.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = ? FOR UPDATE`, incoming.StripeSubscriptionID)
	existing, err := scanSubscription(row)
	switch {
	case err == nil:
		current = &existing
	case errors.Is(err, models.ErrSubscriptionNotFound):
	default:
		return models.Subscription{}, err
	}

	next := merge(current, incoming)
	now := time.Now()

	if current == nil {
		next.CreatedAt = now
		res, err := tx.ExecContext(ctx, `
INSERT INTO subscriptions (user_id, plan_slug, billing_frequency, status, current_period_start, current_period_end,
    cancel_at_period_end, cancel_reason, stripe_subscription_id, stripe_customer_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			next.UserID, next.PlanSlug, next.BillingFrequency, next.Status, next.CurrentPeriodStart, next.CurrentPeriodEnd,
			next.CancelAtPeriodEnd, nullIfEmpty(next.CancelReason), next.StripeSubscriptionID, nullIfEmpty(next.StripeCustomerID), next.CreatedAt,
		)
		if err != nil {
			return models.Subscription{}, fmt.Errorf("insert subscription: %w", err)
		}
		if next.ID, err = res.LastInsertId(); err != nil {
			return models.Subscription{}, err
		}
	} else {
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = &now
		_, err := tx.ExecContext(ctx, `
UPDATE subscriptions SET plan_slug = ?, billing_frequency = ?, status = ?, current_period_start = ?, current_period_end = ?,
    cancel_at_period_end = ?, cancel_reason = ?, stripe_customer_id = ?, updated_at = ?
WHERE id = ?`,
			next.PlanSlug, next.BillingFrequency, next.Status, next.CurrentPeriodStart, next.CurrentPeriodEnd,
			next.CancelAtPeriodEnd, nullIfEmpty(next.CancelReason), nullIfEmpty(next.StripeCustomerID), now,
			next.ID,
		)
		if err != nil {
			return models.Subscription{}, fmt.Errorf("update subscription: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Subscription{}, err
	}
	return next, nil
}

// SetCancelAtPeriodEnd toggles the flag without touching status.
func (r *SubscriptionRepository) SetCancelAtPeriodEnd(ctx context.Context, id int64, cancel bool, reason string) error {
	var reasonArg sql.NullString
	if cancel {
		reasonArg = nullIfEmpty(reason)
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE subscriptions SET cancel_at_period_end = ?, cancel_reason = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		cancel, reasonArg, time.Now(), id, models.SubscriptionStatusCancelled,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, models.ErrSubscriptionCancelled)
}

func scanSubscription(scanner interface{ Scan(dest ...any) error }) (models.Subscription, error) {
	var (
		sub      models.Subscription
		start    sql.NullTime
		end      sql.NullTime
		reason   sql.NullString
		customer sql.NullString
		updated  sql.NullTime
	)
	err := scanner.Scan(
		&sub.ID, &sub.UserID, &sub.PlanSlug, &sub.BillingFrequency, &sub.Status, &start, &end,
		&sub.CancelAtPeriodEnd, &reason, &sub.StripeSubscriptionID, &customer, &sub.CreatedAt, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, models.ErrSubscriptionNotFound
	}
	if err != nil {
		return models.Subscription{}, err
	}
	if start.Valid {
		t := start.Time
		sub.CurrentPeriodStart = &t
	}
	if end.Valid {
		t := end.Time
		sub.CurrentPeriodEnd = &t
	}
	if updated.Valid {
		t := updated.Time
		sub.UpdatedAt = &t
	}
	sub.CancelReason = reason.String
	sub.StripeCustomerID = customer.String
	return sub, nil
}
