package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/model"
)

const orderColumns = `order_id, requester, destination_address, chain_from, chain_to, token_from, token_to, amount_from, min_amount_to, expiry, nonce, signature, signature_scheme, status, created_at, updated_at`

// OrderFilters narrows ListOrders results. Page is 1-based.
type OrderFilters struct {
	Status    string
	ChainFrom string
	ChainTo   string
	Page      int
	Limit     int
}

type OrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(db *sql.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{db: db, logger: logger}
}

func (r *OrderRepository) CreateOrder(order model.Order) error {
	_, err := r.db.Exec(`
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, order.OrderID, order.Requester, order.DestinationAddress, order.ChainFrom, order.ChainTo,
		order.TokenFrom, order.TokenTo, order.AmountFrom, order.MinAmountTo, order.Expiry,
		order.Nonce, order.Signature, order.SignatureScheme, order.Status, order.CreatedAt, order.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Info("Created order",
		zap.String("order_id", order.OrderID),
		zap.String("requester", order.Requester),
		zap.String("chain_from", order.ChainFrom),
		zap.String("chain_to", order.ChainTo))
	return nil
}

func (r *OrderRepository) GetOrderByID(orderID string) (*model.Order, error) {
	row := r.db.QueryRow(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1
	`, orderID)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order by ID: %w", err)
	}

	return order, nil
}

// ListOrders returns orders newest first, optionally filtered by status and chain pair.
func (r *OrderRepository) ListOrders(filters OrderFilters) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var conditions []string
	var params []interface{}

	if filters.Status != "" {
		params = append(params, filters.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(params)))
	}
	if filters.ChainFrom != "" {
		params = append(params, filters.ChainFrom)
		conditions = append(conditions, fmt.Sprintf("chain_from = $%d", len(params)))
	}
	if filters.ChainTo != "" {
		params = append(params, filters.ChainTo)
		conditions = append(conditions, fmt.Sprintf("chain_to = $%d", len(params)))
	}

	for i, condition := range conditions {
		if i == 0 {
			query += " WHERE " + condition
		} else {
			query += " AND " + condition
		}
	}

	query += " ORDER BY created_at DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	params = append(params, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(params))
	params = append(params, (page-1)*limit)
	query += fmt.Sprintf(" OFFSET $%d", len(params))

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	return orders, rows.Err()
}

// CompareAndSwapStatus moves an order from one status to another only if it is
// still in the expected status. It returns false when another writer got there
// first, which serializes auction resolution per order.
func (r *OrderRepository) CompareAndSwapStatus(orderID, from, to string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE orders SET status = $1, updated_at = NOW() WHERE order_id = $2 AND status = $3
	`, to, orderID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 1 {
		r.logger.Info("Updated order status",
			zap.String("order_id", orderID),
			zap.String("from", from),
			zap.String("to", to))
	}
	return affected == 1, nil
}

// GetMarketStats aggregates order and bid counts for the stats endpoint.
func (r *OrderRepository) GetMarketStats() (*model.MarketStats, error) {
	stats := &model.MarketStats{}

	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'open'),
			COUNT(*) FILTER (WHERE status = 'matched'),
			COUNT(*) FILTER (WHERE status = 'executed')
		FROM orders
	`).Scan(&stats.TotalOrders, &stats.OpenOrders, &stats.MatchedOrders, &stats.ExecutedOrders)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate order stats: %w", err)
	}

	if err := r.db.QueryRow(`SELECT COUNT(*) FROM bids`).Scan(&stats.TotalBids); err != nil {
		return nil, fmt.Errorf("failed to count bids: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT resolver, COUNT(*) AS won_count
		FROM bids
		WHERE status = 'won'
		GROUP BY resolver
		ORDER BY won_count DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top resolvers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var top model.ResolverStanding
		if err := rows.Scan(&top.Resolver, &top.WonAuctions); err != nil {
			return nil, fmt.Errorf("failed to scan resolver standing: %w", err)
		}
		stats.TopResolvers = append(stats.TopResolvers, top)
	}

	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var order model.Order
	err := row.Scan(&order.OrderID, &order.Requester, &order.DestinationAddress,
		&order.ChainFrom, &order.ChainTo, &order.TokenFrom, &order.TokenTo,
		&order.AmountFrom, &order.MinAmountTo, &order.Expiry, &order.Nonce,
		&order.Signature, &order.SignatureScheme, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
