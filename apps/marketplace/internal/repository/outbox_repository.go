package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/model"
)

type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutboxRepository(db *sql.DB, logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{db: db, logger: logger}
}

// StoreEvent appends a domain event to the outbox. Rows are never deleted, the
// outbox doubles as the audit history.
func (r *OutboxRepository) StoreEvent(eventType, orderID string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO event_outbox (event_type, order_id, status, event_blob)
		VALUES ($1, $2, 'unsent', $3)
	`, eventType, orderID, blob)
	if err != nil {
		return fmt.Errorf("failed to store outbox event: %w", err)
	}

	return nil
}

// GetUnsentEventsForProcessing claims a batch of unsent events inside a
// transaction so concurrent publishers never ship the same row twice.
func (r *OutboxRepository) GetUnsentEventsForProcessing(limit int) ([]model.OutboxEvent, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	rows, err := tx.Query(`
		SELECT id, event_type, order_id, status, event_blob, created_at
		FROM event_outbox
		WHERE status = 'unsent'
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outboxEvents []model.OutboxEvent
	for rows.Next() {
		var event model.OutboxEvent
		if err := rows.Scan(&event.ID, &event.EventType, &event.OrderID, &event.Status,
			&event.EventBlob, &event.CreatedAt); err != nil {
			return nil, err
		}
		outboxEvents = append(outboxEvents, event)
	}
	rows.Close()

	for _, event := range outboxEvents {
		if _, err := tx.Exec(`
			UPDATE event_outbox SET status = 'sending' WHERE id = $1 AND status = 'unsent'
		`, event.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return outboxEvents, nil
}

func (r *OutboxRepository) MarkEventAsSent(id int64) error {
	_, err := r.db.Exec(`
		UPDATE event_outbox SET status = 'sent' WHERE id = $1
	`, id)
	return err
}

func (r *OutboxRepository) MarkEventAsFailed(id int64) error {
	_, err := r.db.Exec(`
		UPDATE event_outbox SET status = 'unsent' WHERE id = $1 AND status = 'sending'
	`, id)
	return err
}
