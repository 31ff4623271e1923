package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/model"
)

const bidColumns = `bid_id, order_id, resolver, bid_amount, gas_price, execution_time, collateral, reputation, timestamp, status`

type BidRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewBidRepository(db *sql.DB, logger *zap.Logger) *BidRepository {
	return &BidRepository{db: db, logger: logger}
}

func (r *BidRepository) CreateBid(bid model.Bid) error {
	_, err := r.db.Exec(`
		INSERT INTO bids (`+bidColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, bid.BidID, bid.OrderID, bid.Resolver, bid.BidAmount, bid.GasPrice,
		bid.ExecutionTime, bid.Collateral, bid.Reputation, bid.Timestamp, bid.Status)

	if err != nil {
		return fmt.Errorf("failed to create bid: %w", err)
	}

	r.logger.Info("Created bid",
		zap.String("bid_id", bid.BidID),
		zap.String("order_id", bid.OrderID),
		zap.String("resolver", bid.Resolver),
		zap.String("bid_amount", bid.BidAmount))
	return nil
}

// ListBidsForOrder returns all bids against an order, earliest first.
func (r *BidRepository) ListBidsForOrder(orderID string) ([]model.Bid, error) {
	rows, err := r.db.Query(`
		SELECT `+bidColumns+`
		FROM bids
		WHERE order_id = $1
		ORDER BY timestamp ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var bid model.Bid
		if err := rows.Scan(&bid.BidID, &bid.OrderID, &bid.Resolver, &bid.BidAmount,
			&bid.GasPrice, &bid.ExecutionTime, &bid.Collateral, &bid.Reputation,
			&bid.Timestamp, &bid.Status); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}

	return bids, rows.Err()
}

func (r *BidRepository) UpdateBidStatus(bidID, status string) error {
	_, err := r.db.Exec(`
		UPDATE bids SET status = $1 WHERE bid_id = $2
	`, status, bidID)

	if err != nil {
		return fmt.Errorf("failed to update bid status: %w", err)
	}

	r.logger.Info("Updated bid status",
		zap.String("bid_id", bidID),
		zap.String("status", status))
	return nil
}
