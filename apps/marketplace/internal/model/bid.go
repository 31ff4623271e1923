package model

import (
	"time"
)

// Bid statuses. A bid is immutable once resolved to won or lost.
const (
	BidStatusPending = "pending"
	BidStatusWon     = "won"
	BidStatusLost    = "lost"
	BidStatusExpired = "expired"
)

// Bid validation bounds
const (
	MinExecutionTimeSeconds = 30
	MaxExecutionTimeSeconds = 3600
	MaxReputation           = 1000
)

type Bid struct {
	BidID         string    `db:"bid_id"`
	OrderID       string    `db:"order_id"`
	Resolver      string    `db:"resolver"`
	BidAmount     string    `db:"bid_amount"` // integer amount in the destination token's base units
	GasPrice      string    `db:"gas_price"`
	ExecutionTime int64     `db:"execution_time"` // estimated seconds to execute
	Collateral    string    `db:"collateral"`
	Reputation    int       `db:"reputation"` // 0-1000
	Timestamp     time.Time `db:"timestamp"`
	Status        string    `db:"status"`
}
