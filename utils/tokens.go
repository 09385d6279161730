package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/exp/rand"
)

const guestAudience = "guest-cart"

// Manager signs and parses guest cart tokens.
type Manager struct {
	signingKey string
	ttl        time.Duration
}

func NewManager(signingKey string, ttl time.Duration) (*Manager, error) {
	if signingKey == "" {
		return nil, errors.New("empty signing key")
	}
	return &Manager{signingKey: signingKey, ttl: ttl}, nil
}

// NewGuestToken issues a token naming a fresh guest id.
func (m *Manager) NewGuestToken() (token, guestID string, err error) {
	guestID = uuid.NewString()
	claims := jwt.StandardClaims{
		Audience:  guestAudience,
		Subject:   guestID,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(m.ttl).Unix(),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.signingKey))
	return token, guestID, err
}

// ParseGuestToken validates the token and returns the guest id it names.
func (m *Manager) ParseGuestToken(raw string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.signingKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || !claims.VerifyAudience(guestAudience, true) {
		return "", errors.New("invalid guest token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("invalid guest id: %w", err)
	}
	return claims.Subject, nil
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomSuffix returns n random lowercase alphanumerics.
func RandomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}

func init() {
	rand.Seed(uint64(time.Now().UnixNano()))
}
