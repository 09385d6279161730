package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	fbauth "firebase.google.com/go/auth"
)

// FirebaseProvider verifies Firebase ID tokens with the Admin SDK.
type FirebaseProvider struct {
	client *fbauth.Client
}

func NewFirebaseProvider(ctx context.Context, app *firebase.App) (*FirebaseProvider, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &FirebaseProvider{client: client}, nil
}

func (p *FirebaseProvider) VerifyIDToken(ctx context.Context, idToken string) (Identity, error) {
	token, err := p.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id := Identity{UID: token.UID}
	if v, ok := token.Claims["email"].(string); ok {
		id.Email = v
	}
	if v, ok := token.Claims["email_verified"].(bool); ok {
		id.EmailVerified = v
	}
	if v, ok := token.Claims["name"].(string); ok {
		id.Name = v
	}
	if v, ok := token.Claims["picture"].(string); ok {
		id.Picture = v
	}
	return id, nil
}

func (p *FirebaseProvider) RevokeSessions(ctx context.Context, uid string) error {
	return p.client.RevokeRefreshTokens(ctx, uid)
}

func (p *FirebaseProvider) PasswordResetLink(ctx context.Context, email string) (string, error) {
	return p.client.PasswordResetLink(ctx, email)
}
