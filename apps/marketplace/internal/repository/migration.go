package repository

import (
	"database/sql"
	"fmt"
)

// InitMigration initializes the database. In production, this would use a proper migration
// library like go-migrate
func InitMigration(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id UUID PRIMARY KEY,
			requester VARCHAR(66) NOT NULL,
			destination_address VARCHAR(66) NOT NULL,
			chain_from VARCHAR(20) NOT NULL,
			chain_to VARCHAR(20) NOT NULL,
			token_from VARCHAR(66) NOT NULL,
			token_to VARCHAR(66) NOT NULL,
			amount_from DECIMAL(78,0) NOT NULL,
			min_amount_to DECIMAL(78,0) NOT NULL,
			expiry TIMESTAMP NOT NULL,
			nonce BIGINT NOT NULL,
			signature TEXT NOT NULL,
			signature_scheme VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'open',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_chains ON orders (chain_from, chain_to)`,
		`CREATE TABLE IF NOT EXISTS bids (
			bid_id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders (order_id),
			resolver VARCHAR(66) NOT NULL,
			bid_amount DECIMAL(78,0) NOT NULL,
			gas_price DECIMAL(78,0) NOT NULL DEFAULT 0,
			execution_time BIGINT NOT NULL,
			collateral DECIMAL(78,0) NOT NULL DEFAULT 0,
			reputation INTEGER NOT NULL DEFAULT 0,
			timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
			status VARCHAR(20) NOT NULL DEFAULT 'pending'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_order_status ON bids (order_id, status, timestamp)`,
		`CREATE TABLE IF NOT EXISTS event_outbox (
			id BIGSERIAL PRIMARY KEY,
			event_type VARCHAR(20) NOT NULL,
			order_id UUID NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'unsent',
			event_blob JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_outbox_status ON event_outbox (status, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}
