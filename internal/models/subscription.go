package models

import "time"

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusTrialing  = "trialing"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

const (
	BillingMonthly = "monthly"
	BillingYearly  = "yearly"
)

type Subscription struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"user_id"`
	PlanSlug             string     `json:"plan"`
	BillingFrequency     string     `json:"billing_frequency"`
	Status               string     `json:"status"`
	CurrentPeriodStart   *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CancelReason         string     `json:"cancel_reason,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	StripeCustomerID     string     `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

// Entitled reports whether the subscription grants its plan tier.
func (s Subscription) Entitled() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

// Plan is a purchasable subscription tier as configured for the processor.
type Plan struct {
	Slug         string `yaml:"slug" json:"slug"`
	Name         string `yaml:"name" json:"name"`
	Tier         string `yaml:"tier" json:"tier"`
	MonthlyPrice string `yaml:"monthly_price_id" json:"-"`
	YearlyPrice  string `yaml:"yearly_price_id" json:"-"`
	TrialDays    int64  `yaml:"trial_days" json:"trial_days,omitempty"`
}

// PriceID returns the processor price for the billing frequency.
func (p Plan) PriceID(frequency string) (string, bool) {
	switch frequency {
	case BillingMonthly:
		return p.MonthlyPrice, p.MonthlyPrice != ""
	case BillingYearly:
		return p.YearlyPrice, p.YearlyPrice != ""
	}
	return "", false
}

type SubscriptionCheckoutRequest struct {
	Plan      string `json:"plan"`
	Frequency string `json:"frequency"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}
