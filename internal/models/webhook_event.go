package models

import "time"

// WebhookEvent is an entry of the processed-event ledger.
type WebhookEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
}
