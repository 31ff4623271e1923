package events

import (
	"encoding/json"
	"time"
)

// Event types broadcast over the WebSocket hub and published to Kafka.
const (
	EventNewOrder     = "new_order"
	EventNewBid       = "new_bid"
	EventAuctionWon   = "auction_won"
	EventOrderExpired = "order_expired"
)

// Envelope is the outbound wire format for domain events.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderEvent is the payload for new_order and order_expired events.
type OrderEvent struct {
	OrderID            string `json:"order_id"`
	Requester          string `json:"requester"`
	DestinationAddress string `json:"destination_address"`
	ChainFrom          string `json:"chain_from"`
	ChainTo            string `json:"chain_to"`
	TokenFrom          string `json:"token_from"`
	TokenTo            string `json:"token_to"`
	AmountFrom         string `json:"amount_from"`
	MinAmountTo        string `json:"min_amount_to"`
	Expiry             int64  `json:"expiry"`
	Status             string `json:"status"`
	CreatedAt          int64  `json:"created_at"`
}

// BidEvent is the payload for new_bid events.
type BidEvent struct {
	BidID         string `json:"bid_id"`
	OrderID       string `json:"order_id"`
	Resolver      string `json:"resolver"`
	BidAmount     string `json:"bid_amount"`
	ExecutionTime int64  `json:"execution_time"`
	Reputation    int    `json:"reputation"`
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
}

// AuctionWonEvent is the payload for auction_won events.
type AuctionWonEvent struct {
	OrderID   string `json:"order_id"`
	BidID     string `json:"bid_id"`
	Resolver  string `json:"resolver"`
	BidAmount string `json:"bid_amount"`
	EndTime   int64  `json:"end_time"`
}
