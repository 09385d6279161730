package repositories

import (
	"context"
	"database/sql"
	"time"
)

// WebhookEventRepository is the processed-event ledger.
type WebhookEventRepository struct {
	DB *sql.DB
}

func (r *WebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM webhook_events WHERE event_id = ?)`, eventID).Scan(&exists)
	return exists, err
}

// MarkProcessed records the event; recording an id twice is not an error.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO webhook_events (event_id, event_type, processed_at) VALUES (?, ?, ?)`,
		eventID, eventType, time.Now(),
	)
	if isDuplicateEntry(err, "") {
		return nil
	}
	return err
}

func (r *WebhookEventRepository) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM webhook_events WHERE processed_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
