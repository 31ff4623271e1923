package api

import (
	"marketplace/apps/marketplace/internal/model"
)

// CreateOrderRequest is the request body for submitting a signed swap intent.
// The order id is part of the signed payload, so the client supplies it.
type CreateOrderRequest struct {
	OrderID            string `json:"order_id"`
	Requester          string `json:"requester"`
	DestinationAddress string `json:"destination_address"`
	ChainFrom          string `json:"chain_from"`
	ChainTo            string `json:"chain_to"`
	TokenFrom          string `json:"token_from"`
	TokenTo            string `json:"token_to"`
	AmountFrom         string `json:"amount_from"`
	MinAmountTo        string `json:"min_amount_to"`
	Expiry             int64  `json:"expiry"` // unix seconds
	Nonce              uint64 `json:"nonce"`
	Signature          string `json:"signature"`
	SignatureScheme    string `json:"signature_scheme"`
}

// OrderResponse represents the API response for order information
type OrderResponse struct {
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
	Nonce              uint64 `json:"nonce"`
	SignatureScheme    string `json:"signature_scheme"`
	Status             string `json:"status"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

// CreateBidRequest is the request body for a resolver's offer on an order.
type CreateBidRequest struct {
	OrderID       string `json:"order_id"`
	Resolver      string `json:"resolver"`
	BidAmount     string `json:"bid_amount"`
	GasPrice      string `json:"gas_price"`
	ExecutionTime int64  `json:"execution_time"`
	Collateral    string `json:"collateral"`
	Reputation    int    `json:"reputation"`
}

// BidResponse represents the API response for bid information
type BidResponse struct {
	BidID         string `json:"bid_id"`
	OrderID       string `json:"order_id"`
	Resolver      string `json:"resolver"`
	BidAmount     string `json:"bid_amount"`
	GasPrice      string `json:"gas_price"`
	ExecutionTime int64  `json:"execution_time"`
	Collateral    string `json:"collateral"`
	Reputation    int    `json:"reputation"`
	Timestamp     int64  `json:"timestamp"`
	Status        string `json:"status"`
}

// ErrorResponse represents the API error response. Details carries the full
// list of violated checks for validation failures.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func toOrderResponse(order *model.Order) OrderResponse {
	return OrderResponse{
		OrderID:            order.OrderID,
		Requester:          order.Requester,
		DestinationAddress: order.DestinationAddress,
		ChainFrom:          order.ChainFrom,
		ChainTo:            order.ChainTo,
		TokenFrom:          order.TokenFrom,
		TokenTo:            order.TokenTo,
		AmountFrom:         order.AmountFrom,
		MinAmountTo:        order.MinAmountTo,
		Expiry:             order.Expiry.Unix(),
		Nonce:              order.Nonce,
		SignatureScheme:    order.SignatureScheme,
		Status:             order.Status,
		CreatedAt:          order.CreatedAt.Unix(),
		UpdatedAt:          order.UpdatedAt.Unix(),
	}
}

func toBidResponse(bid *model.Bid) BidResponse {
	return BidResponse{
		BidID:         bid.BidID,
		OrderID:       bid.OrderID,
		Resolver:      bid.Resolver,
		BidAmount:     bid.BidAmount,
		GasPrice:      bid.GasPrice,
		ExecutionTime: bid.ExecutionTime,
		Collateral:    bid.Collateral,
		Reputation:    bid.Reputation,
		Timestamp:     bid.Timestamp.Unix(),
		Status:        bid.Status,
	}
}
