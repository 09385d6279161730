package services

import (
	"context"
	"strings"

	"danceBack/internal/models"
)

type CertificateService struct {
	store CertificateStore
}

func NewCertificateService(store CertificateStore) *CertificateService {
	return &CertificateService{store: store}
}

func (s *CertificateService) List(ctx context.Context, userID int64) ([]models.Certificate, error) {
	return s.store.ListByUser(ctx, userID)
}

// Verify looks a certificate up by its public verification code.
func (s *CertificateService) Verify(ctx context.Context, code string) (models.Certificate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.Certificate{}, models.ErrCertificateNotFound
	}
	return s.store.GetByCode(ctx, code)
}
