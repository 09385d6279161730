package models

import "time"

const (
	RoleGuestUser  = "GUEST_USER"
	RoleStudent    = "STUDENT"
	RoleInstructor = "INSTRUCTOR"
	RoleAdmin      = "ADMIN"

	TierFree = "FREE"
)

type User struct {
	ID               int64      `json:"id"`
	FirebaseUID      string     `json:"uid"`
	Email            string     `json:"email"`
	Username         string     `json:"username"`
	DisplayName      string     `json:"display_name,omitempty"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	Role             []string   `json:"role"`
	SubscriptionTier string     `json:"subscription_tier"`
	StripeCustomerID string     `json:"-"`
	FCMToken         string     `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Roles returns the stored roles, falling back to GUEST_USER for records
// created before roles were assigned.
func (u User) Roles() []string {
	if len(u.Role) == 0 {
		return []string{RoleGuestUser}
	}
	return u.Role
}

// HasAnyRole reports whether the user holds ADMIN or one of required.
func (u User) HasAnyRole(required ...string) bool {
	for _, have := range u.Roles() {
		if have == RoleAdmin {
			return true
		}
		for _, want := range required {
			if have == want {
				return true
			}
		}
	}
	return false
}

type RegisterRequest struct {
	IDToken string `json:"idToken"`
}

type LoginRequest struct {
	IDToken string `json:"idToken"`
}

type DeviceTokenRequest struct {
	Token string `json:"token"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}
