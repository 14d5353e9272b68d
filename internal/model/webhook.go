package model

import "time"

const (
	WebhookReceived  = "received"
	WebhookCompleted = "completed"
	WebhookFailed    = "failed"
)

// WebhookEvent records an inbound payment-gateway event. Events are recorded
// before processing; the unique event ID makes duplicate delivery a no-op.
type WebhookEvent struct {
	ID           int64      `json:"id"`
	EventID      string     `json:"event_id"`
	EventType    string     `json:"event_type"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
