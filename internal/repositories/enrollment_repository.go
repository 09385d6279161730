package repositories

import (
	"context"
	"database/sql"
	"time"

	"danceBack/internal/models"
)

type EnrollmentRepository struct {
	DB *sql.DB
}

// Enroll is idempotent: enrolling twice in the same course keeps the first row.
func (r *EnrollmentRepository) Enroll(ctx context.Context, userID, courseID, orderID int64) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT IGNORE INTO enrollments (user_id, course_id, order_id, created_at) VALUES (?, ?, ?, ?)`,
		userID, courseID, orderID, time.Now(),
	)
	return err
}

func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID int64) ([]models.Enrollment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT user_id, course_id, order_id, created_at FROM enrollments WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Enrollment{}
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.UserID, &e.CourseID, &e.OrderID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
