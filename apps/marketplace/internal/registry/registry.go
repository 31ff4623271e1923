package registry

import (
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/events"
	"marketplace/apps/marketplace/internal/model"
	"marketplace/apps/marketplace/internal/repository"
)

var suiAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// sweepPageSize bounds one page of the open-order scan, not the scan itself.
const sweepPageSize = 500

// OrderStore is the persistence surface the registry needs.
type OrderStore interface {
	CreateOrder(order model.Order) error
	GetOrderByID(orderID string) (*model.Order, error)
	ListOrders(filters repository.OrderFilters) ([]model.Order, error)
	CompareAndSwapStatus(orderID, from, to string) (bool, error)
	GetMarketStats() (*model.MarketStats, error)
}

// EventSink records domain events for the audit outbox.
type EventSink interface {
	StoreEvent(eventType, orderID string, payload interface{}) error
}

// Broadcaster fans an event out to live subscribers, best effort.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Verifier is the signature authenticity check gating admission.
type Verifier interface {
	Verify(order *model.Order) bool
}

// OrderRegistry is the lifecycle authority for orders: it admits, lists and
// transitions them, and runs the expiry sweep.
type OrderRegistry struct {
	orders    OrderStore
	verifier  Verifier
	outbox    EventSink
	broadcast Broadcaster
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrderRegistry(orders OrderStore, verifier Verifier, outbox EventSink, broadcast Broadcaster, logger *zap.Logger) *OrderRegistry {
	return &OrderRegistry{
		orders:    orders,
		verifier:  verifier,
		outbox:    outbox,
		broadcast: broadcast,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit validates and persists a new order with status open. Every violated
// check is collected before rejecting; nothing is persisted on rejection.
func (r *OrderRegistry) Submit(order model.Order) (*model.Order, error) {
	now := r.now()

	if violations := r.validate(&order, now); len(violations) > 0 {
		return nil, &AdmissionError{Violations: violations}
	}

	order.Status = model.OrderStatusOpen
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := r.orders.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	payload := OrderEventPayload(&order)
	if err := r.outbox.StoreEvent(events.EventNewOrder, order.OrderID, payload); err != nil {
		r.logger.Error("Failed to store new_order outbox event", zap.String("order_id", order.OrderID), zap.Error(err))
	}
	r.broadcast.Broadcast(events.EventNewOrder, payload)

	r.logger.Info("Order admitted",
		zap.String("order_id", order.OrderID),
		zap.String("chain_from", order.ChainFrom),
		zap.String("chain_to", order.ChainTo))

	return &order, nil
}

func (r *OrderRegistry) validate(order *model.Order, now time.Time) []string {
	var violations []string

	required := []struct {
		value string
		name  string
	}{
		{order.OrderID, "orderId"},
		{order.Requester, "requester"},
		{order.DestinationAddress, "destinationAddress"},
		{order.ChainFrom, "chainFrom"},
		{order.ChainTo, "chainTo"},
		{order.TokenFrom, "tokenFrom"},
		{order.TokenTo, "tokenTo"},
		{order.AmountFrom, "amountFrom"},
		{order.MinAmountTo, "minAmountTo"},
		{order.Signature, "signature"},
		{order.SignatureScheme, "signatureScheme"},
	}
	for _, field := range required {
		if field.value == "" {
			violations = append(violations, field.name+" is required")
		}
	}

	if order.ChainFrom != "" && !model.IsSupportedChain(order.ChainFrom) {
		violations = append(violations, "invalid chainFrom")
	}
	if order.ChainTo != "" && !model.IsSupportedChain(order.ChainTo) {
		violations = append(violations, "invalid chainTo")
	}
	if order.ChainFrom != "" && order.ChainFrom == order.ChainTo {
		violations = append(violations, "chainFrom and chainTo must be different")
	}

	if order.Requester != "" && order.ChainFrom != "" && !isValidAddress(order.Requester, order.ChainFrom) {
		violations = append(violations, "invalid requester address")
	}
	if order.DestinationAddress != "" && order.ChainTo != "" && !isValidAddress(order.DestinationAddress, order.ChainTo) {
		violations = append(violations, "invalid destination address")
	}

	if order.AmountFrom != "" && !isPositiveInteger(order.AmountFrom) {
		violations = append(violations, "amountFrom must be a positive integer")
	}
	if order.MinAmountTo != "" && !isPositiveInteger(order.MinAmountTo) {
		violations = append(violations, "minAmountTo must be a positive integer")
	}

	if order.Expiry.IsZero() {
		violations = append(violations, "expiry is required")
	} else {
		if !order.Expiry.After(now) {
			violations = append(violations, "expiry must be in the future")
		}
		if order.Expiry.After(now.Add(model.MaxExpiryHorizon)) {
			violations = append(violations, "expiry too far in the future (max 24 hours)")
		}
	}

	if order.SignatureScheme != "" && order.SignatureScheme != model.SignatureSchemeEIP712 && order.SignatureScheme != model.SignatureSchemeSui {
		violations = append(violations, "invalid signatureScheme")
	}

	if !r.verifier.Verify(order) {
		violations = append(violations, "invalid signature")
	}

	return violations
}

// Get returns the order or ErrNotFound.
func (r *OrderRegistry) Get(orderID string) (*model.Order, error) {
	order, err := r.orders.GetOrderByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// List returns orders newest first.
func (r *OrderRegistry) List(filters repository.OrderFilters) ([]model.Order, error) {
	return r.orders.ListOrders(filters)
}

// MarkStatus moves an order along the forward-only transition table. A
// transition not in the table fails with ErrInvalidTransition and changes
// nothing.
func (r *OrderRegistry) MarkStatus(orderID, newStatus string) error {
	order, err := r.Get(orderID)
	if err != nil {
		return err
	}

	if !model.CanTransition(order.Status, newStatus) {
		r.logger.Warn("Rejected status transition",
			zap.String("order_id", orderID),
			zap.String("from", order.Status),
			zap.String("to", newStatus))
		return ErrInvalidTransition
	}

	swapped, err := r.orders.CompareAndSwapStatus(orderID, order.Status, newStatus)
	if err != nil {
		return err
	}
	if !swapped {
		// Someone else moved the order first.
		return ErrInvalidTransition
	}
	return nil
}

// ListAllOpen pages through the store and returns the complete open set, so
// callers scanning it are not capped at a single page.
func (r *OrderRegistry) ListAllOpen() ([]model.Order, error) {
	var all []model.Order
	for page := 1; ; page++ {
		batch, err := r.orders.ListOrders(repository.OrderFilters{
			Status: model.OrderStatusOpen,
			Page:   page,
			Limit:  sweepPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list open orders: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < sweepPageSize {
			return all, nil
		}
	}
}

// SweepExpired transitions every open order whose expiry has passed. It runs
// independently of auction activity so an order with zero bids still expires.
func (r *OrderRegistry) SweepExpired() (int, error) {
	open, err := r.ListAllOpen()
	if err != nil {
		return 0, err
	}

	now := r.now()
	expired := 0
	for i := range open {
		order := &open[i]
		if !order.IsExpired(now) {
			continue
		}

		swapped, err := r.orders.CompareAndSwapStatus(order.OrderID, model.OrderStatusOpen, model.OrderStatusExpired)
		if err != nil {
			r.logger.Error("Failed to expire order", zap.String("order_id", order.OrderID), zap.Error(err))
			continue
		}
		if !swapped {
			continue
		}

		order.Status = model.OrderStatusExpired
		payload := OrderEventPayload(order)
		if err := r.outbox.StoreEvent(events.EventOrderExpired, order.OrderID, payload); err != nil {
			r.logger.Error("Failed to store order_expired outbox event", zap.String("order_id", order.OrderID), zap.Error(err))
		}
		r.broadcast.Broadcast(events.EventOrderExpired, payload)
		expired++
		r.logger.Info("Order expired", zap.String("order_id", order.OrderID))
	}

	return expired, nil
}

// MarketStats returns the aggregate market view.
func (r *OrderRegistry) MarketStats() (*model.MarketStats, error) {
	return r.orders.GetMarketStats()
}

// OrderEventPayload converts an order to its wire event payload.
func OrderEventPayload(order *model.Order) events.OrderEvent {
	return events.OrderEvent{
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
		Status:             order.Status,
		CreatedAt:          order.CreatedAt.Unix(),
	}
}

func isValidAddress(address, chain string) bool {
	switch chain {
	case model.ChainEthereum:
		return common.IsHexAddress(address)
	case model.ChainSui:
		return suiAddressPattern.MatchString(address)
	default:
		return false
	}
}

func isPositiveInteger(value string) bool {
	n, ok := new(big.Int).SetString(value, 10)
	return ok && n.Sign() > 0
}
