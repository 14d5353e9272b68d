package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/stayverify/stayverify/internal/model"
)

type WebhookEventStore struct {
	db *sql.DB
}

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func scanWebhookEvent(scanner interface{ Scan(...any) error }) (*model.WebhookEvent, error) {
	var e model.WebhookEvent
	var processedAt sql.NullTime
	err := scanner.Scan(&e.ID, &e.EventID, &e.EventType, &e.Status, &e.ErrorMessage, &processedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	return &e, nil
}

const webhookEventCols = `id, event_id, event_type, status, error_message, processed_at, created_at`

// Record inserts a received event. The second return value is false when the
// event ID was already recorded, which callers treat as a duplicate delivery.
func (s *WebhookEventStore) Record(eventID, eventType string) (*model.WebhookEvent, bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO webhook_events (event_id, event_type) VALUES (?, ?)`,
		eventID, eventType,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("insert webhook event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+webhookEventCols+` FROM webhook_events WHERE id = ?`, id)
	e, err := scanWebhookEvent(row)
	if err != nil {
		return nil, false, fmt.Errorf("get webhook event: %w", err)
	}
	return e, true, nil
}

// MarkProcessed records the processing outcome for an event.
func (s *WebhookEventStore) MarkProcessed(id int64, status, errorMessage string) error {
	_, err := s.db.Exec(
		`UPDATE webhook_events SET status = ?, error_message = ?, processed_at = datetime('now') WHERE id = ?`,
		status, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

func (s *WebhookEventStore) GetByEventID(eventID string) (*model.WebhookEvent, error) {
	row := s.db.QueryRow(`SELECT `+webhookEventCols+` FROM webhook_events WHERE event_id = ?`, eventID)
	e, err := scanWebhookEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}
