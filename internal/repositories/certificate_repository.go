package repositories

import (
	"context"
	"database/sql"
	"errors"

	"danceBack/internal/models"
)

type CertificateRepository struct {
	DB *sql.DB
}

const certificateQuery = `
SELECT c.id, c.user_id, c.course_id, co.title, c.recipient_name, c.verification_code, c.issued_at
FROM certificates c
JOIN courses co ON co.id = c.course_id`

func (r *CertificateRepository) GetByCode(ctx context.Context, code string) (models.Certificate, error) {
	var cert models.Certificate
	err := r.DB.QueryRowContext(ctx, certificateQuery+` WHERE c.verification_code = ?`, code).Scan(
		&cert.ID, &cert.UserID, &cert.CourseID, &cert.CourseTitle, &cert.RecipientName, &cert.VerificationCode, &cert.IssuedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Certificate{}, models.ErrCertificateNotFound
	}
	return cert, err
}

func (r *CertificateRepository) ListByUser(ctx context.Context, userID int64) ([]models.Certificate, error) {
	rows, err := r.DB.QueryContext(ctx, certificateQuery+` WHERE c.user_id = ? ORDER BY c.issued_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	certs := []models.Certificate{}
	for rows.Next() {
		var cert models.Certificate
		if err := rows.Scan(&cert.ID, &cert.UserID, &cert.CourseID, &cert.CourseTitle, &cert.RecipientName, &cert.VerificationCode, &cert.IssuedAt); err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}
