package services

import (
	"context"
	"errors"
	"time"

	"danceBack/internal/models"
	"danceBack/internal/repositories"
)

var (
	ErrInvalidCartToken    = errors.New("services: invalid cart token")
	ErrUsernameUnavailable = errors.New("services: no free username")
)

type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetByUID(ctx context.Context, uid string) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error
	SetSubscriptionTier(ctx context.Context, userID int64, tier string) error
	SetFCMToken(ctx context.Context, userID int64, token string) error
}

type OrderStore interface {
	Create(ctx context.Context, order models.Order) (models.Order, error)
	MarkPending(ctx context.Context, id int64, paymentIntentID, sessionID string) error
	Transition(ctx context.Context, id int64, from, to string, at time.Time) error
	GetByID(ctx context.Context, id int64) (models.Order, error)
	GetByCheckoutSessionID(ctx context.Context, sessionID string) (models.Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error)
	ListRecent(ctx context.Context, limit, offset int) ([]models.Order, error)
	DeleteAbandoned(ctx context.Context, before time.Time) (int64, error)
	HasPurchased(ctx context.Context, userID int64, itemType string, itemID int64) (bool, error)
}

type SubscriptionStore interface {
	GetByID(ctx context.Context, id int64) (models.Subscription, error)
	GetByStripeID(ctx context.Context, stripeID string) (models.Subscription, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Subscription, error)
	ListLapsed(ctx context.Context, now time.Time) ([]models.Subscription, error)
	Upsert(ctx context.Context, incoming models.Subscription, merge repositories.MergeFunc) (models.Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id int64, cancel bool, reason string) error
}

type CatalogStore interface {
	ListCourses(ctx context.Context, limit, offset int) ([]models.Course, error)
	GetCourse(ctx context.Context, id int64) (models.Course, error)
	GetCourseOutline(ctx context.Context, id int64) (models.Course, error)
	ListResources(ctx context.Context, category string, limit, offset int) ([]models.Resource, error)
	GetResource(ctx context.Context, id int64) (models.Resource, error)
}

type EnrollmentStore interface {
	Enroll(ctx context.Context, userID, courseID, orderID int64) error
	ListByUser(ctx context.Context, userID int64) ([]models.Enrollment, error)
}

type CertificateStore interface {
	GetByCode(ctx context.Context, code string) (models.Certificate, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Certificate, error)
}

// EventLedger records processor events that were fully handled.
type EventLedger interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

// Notifier is the side-effect sink for transactional messages.
type Notifier interface {
	Welcome(ctx context.Context, user models.User)
	PurchaseConfirmation(ctx context.Context, user models.User, order models.Order)
	PasswordReset(ctx context.Context, email, link string)
	CancellationScheduled(ctx context.Context, user models.User, sub models.Subscription)
	OrderStatusChanged(order models.Order)
}

type Presigner interface {
	PresignDownload(key, filename string) (string, time.Time, error)
}

type GuestTokens interface {
	NewGuestToken() (token, guestID string, err error)
	ParseGuestToken(raw string) (string, error)
}
