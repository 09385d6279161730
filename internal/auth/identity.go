package auth

import (
	"context"
	"errors"
	"strings"

	"danceBack/internal/models"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is the decoded caller as asserted by the identity provider.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (Identity, error)
}

// Provider is the full identity provider surface used by the account endpoints.
type Provider interface {
	Verifier
	RevokeSessions(ctx context.Context, uid string) error
	PasswordResetLink(ctx context.Context, email string) (string, error)
}

type (
	identityKey struct{}
	userKey     struct{}
)

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// WithUser attaches the caller's stored user record.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey{}).(models.User)
	return user, ok
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
