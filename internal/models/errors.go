package models

import (
	"errors"
)

var (
	ErrUserNotFound        = errors.New("models: user not found")
	ErrDuplicateUsername   = errors.New("models: duplicate username")
	ErrDuplicateUser       = errors.New("models: user already registered")
	ErrOrderNotFound       = errors.New("models: order not found")
	ErrInvalidTransition   = errors.New("models: invalid status transition")
	ErrStatusConflict      = errors.New("models: status changed concurrently")
	ErrEmptyOrder          = errors.New("models: order has no items")
	ErrCourseNotFound      = errors.New("models: course not found")
	ErrResourceNotFound    = errors.New("models: resource not found")
	ErrCertificateNotFound = errors.New("models: certificate not found")
	ErrCartItemNotFound    = errors.New("models: cart item not found")
	ErrInvalidQuantity     = errors.New("models: invalid quantity")
	ErrInvalidItemType     = errors.New("models: invalid item type")
	ErrForbidden           = errors.New("models: forbidden")
)

var (
	ErrSubscriptionNotFound  = errors.New("models: subscription not found")
	ErrSubscriptionCancelled = errors.New("models: subscription already cancelled")
	ErrPeriodEnded           = errors.New("models: subscription period already ended")
	ErrUnknownPlan           = errors.New("models: unknown subscription plan")
)
