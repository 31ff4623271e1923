package model

import (
	"time"
)

// Order statuses. Transitions are forward-only, see CanTransition.
const (
	OrderStatusOpen      = "open"
	OrderStatusMatched   = "matched"
	OrderStatusExecuted  = "executed"
	OrderStatusExpired   = "expired"
	OrderStatusCancelled = "cancelled"
)

// Supported chain identifiers
const (
	ChainEthereum = "ethereum"
	ChainSui      = "sui"
)

// Signature schemes
const (
	SignatureSchemeEIP712 = "eip712"
	SignatureSchemeSui    = "sui"
)

// MaxExpiryHorizon is the furthest into the future an order expiry may be set.
const MaxExpiryHorizon = 24 * time.Hour

type Order struct {
	OrderID            string    `db:"order_id"`
	Requester          string    `db:"requester"`
	DestinationAddress string    `db:"destination_address"`
	ChainFrom          string    `db:"chain_from"`
	ChainTo            string    `db:"chain_to"`
	TokenFrom          string    `db:"token_from"`
	TokenTo            string    `db:"token_to"`
	AmountFrom         string    `db:"amount_from"`   // integer amount in the source token's base units
	MinAmountTo        string    `db:"min_amount_to"` // integer amount in the destination token's base units
	Expiry             time.Time `db:"expiry"`
	Nonce              uint64    `db:"nonce"`
	Signature          string    `db:"signature"`
	SignatureScheme    string    `db:"signature_scheme"`
	Status             string    `db:"status"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// allowedTransitions is the forward-only order lifecycle:
// open -> matched -> executed, open -> expired, open -> cancelled.
var allowedTransitions = map[string]map[string]bool{
	OrderStatusOpen: {
		OrderStatusMatched:   true,
		OrderStatusExpired:   true,
		OrderStatusCancelled: true,
	},
	OrderStatusMatched: {
		OrderStatusExecuted: true,
	},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	return allowedTransitions[from][to]
}

// IsSupportedChain reports whether the chain identifier is part of the closed chain set.
func IsSupportedChain(chain string) bool {
	return chain == ChainEthereum || chain == ChainSui
}

// IsExpired reports whether the order expiry has passed at the given time.
func (o *Order) IsExpired(now time.Time) bool {
	return !o.Expiry.After(now)
}
