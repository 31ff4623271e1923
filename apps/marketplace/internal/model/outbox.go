package model

import (
	"encoding/json"
	"time"
)

// Outbox event statuses
const (
	OutboxStatusUnsent  = "unsent"
	OutboxStatusSending = "sending"
	OutboxStatusSent    = "sent"
)

// OutboxEvent is an append-only audit record of a domain event, published
// to Kafka by the event publisher after commit.
type OutboxEvent struct {
	ID        int64           `db:"id"`
	EventType string          `db:"event_type"`
	OrderID   string          `db:"order_id"`
	Status    string          `db:"status"`
	EventBlob json.RawMessage `db:"event_blob"`
	CreatedAt time.Time       `db:"created_at"`
}
