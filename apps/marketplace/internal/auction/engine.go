package auction

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/events"
	"marketplace/apps/marketplace/internal/model"
)

// Scoring weights and normalization constants. amountScore is linear in the
// margin above the order minimum, capped at 1.0; a bid below the minimum
// scores -1 and loses to any qualifying bid. speedScore normalizes against a
// five minute ceiling.
const (
	amountWeight     = 0.6
	reputationWeight = 0.3
	speedWeight      = 0.1
	maxExecutionRef  = 300.0
)

// DefaultAuctionWindow is the bidding period measured from order creation.
const DefaultAuctionWindow = 60 * time.Second

// OrderStore is the order persistence surface the engine needs.
type OrderStore interface {
	GetOrderByID(orderID string) (*model.Order, error)
	CompareAndSwapStatus(orderID, from, to string) (bool, error)
}

// BidStore is the bid persistence surface the engine needs.
type BidStore interface {
	CreateBid(bid model.Bid) error
	ListBidsForOrder(orderID string) ([]model.Bid, error)
	UpdateBidStatus(bidID, status string) error
}

// EventSink records domain events for the audit outbox.
type EventSink interface {
	StoreEvent(eventType, orderID string, payload interface{}) error
}

// Broadcaster fans an event out to live subscribers, best effort.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Result is the computed auction view for one order. It is recomputed from
// order and bid state on every resolution attempt, never stored.
type Result struct {
	OrderID string      `json:"order_id"`
	Winner  *model.Bid  `json:"winner,omitempty"`
	AllBids []model.Bid `json:"all_bids"`
	EndTime time.Time   `json:"end_time"`
}

// Engine collects bids against open orders and resolves a winner once the
// auction window has elapsed. Resolution is lazy: it runs when a new bid
// arrives or when the janitor sweep asks for it, not on a timer of its own.
type Engine struct {
	orders    OrderStore
	bids      BidStore
	outbox    EventSink
	broadcast Broadcaster
	window    time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngine(orders OrderStore, bids BidStore, outbox EventSink, broadcast Broadcaster, window time.Duration, logger *zap.Logger) *Engine {
	if window <= 0 {
		window = DefaultAuctionWindow
	}
	return &Engine{
		orders:    orders,
		bids:      bids,
		outbox:    outbox,
		broadcast: broadcast,
		window:    window,
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitBid validates and records a bid. The referenced order must still be
// open: a bid arriving after the window but before resolution is recorded, it
// just cannot win more than the fixed window cutoff allows.
func (e *Engine) SubmitBid(bid model.Bid) (*model.Bid, error) {
	if violations := validateBid(&bid); len(violations) > 0 {
		return nil, &RejectionError{Violations: violations}
	}

	order, err := e.orders.GetOrderByID(bid.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	now := e.now()
	if order.Status != model.OrderStatusOpen {
		return nil, ErrOrderClosed
	}
	if order.IsExpired(now) {
		return nil, &RejectionError{Violations: []string{"order has expired"}}
	}

	if bid.BidID == "" {
		bid.BidID = uuid.New().String()
	}
	if bid.GasPrice == "" {
		bid.GasPrice = "0"
	}
	if bid.Collateral == "" {
		bid.Collateral = "0"
	}
	bid.Timestamp = now
	bid.Status = model.BidStatusPending

	if err := e.bids.CreateBid(bid); err != nil {
		return nil, fmt.Errorf("failed to persist bid: %w", err)
	}

	payload := bidEventPayload(&bid)
	if err := e.outbox.StoreEvent(events.EventNewBid, bid.OrderID, payload); err != nil {
		e.logger.Error("Failed to store new_bid outbox event", zap.String("bid_id", bid.BidID), zap.Error(err))
	}
	e.broadcast.Broadcast(events.EventNewBid, payload)

	return &bid, nil
}

// Resolve computes the auction result for an order. Before the window end it
// returns the in-progress view without side effects, no matter how often it is
// called. After the window end it scores pending bids, picks a winner, and
// moves the order to matched through a compare-and-swap so concurrent
// resolution attempts settle on exactly one winner.
func (e *Engine) Resolve(orderID string) (*Result, error) {
	order, err := e.orders.GetOrderByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	bids, err := e.bids.ListBidsForOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bids: %w", err)
	}

	endTime := order.CreatedAt.Add(e.window)
	result := &Result{OrderID: orderID, AllBids: bids, EndTime: endTime}

	if e.now().Before(endTime) {
		return result, nil
	}

	if order.Status != model.OrderStatusOpen {
		// Already resolved or dead; report the recorded winner, if any.
		result.Winner = findWonBid(bids)
		return result, nil
	}

	var pending []model.Bid
	for _, bid := range bids {
		if bid.Status == model.BidStatusPending {
			pending = append(pending, bid)
		}
	}
	if len(pending) == 0 {
		// Void auction: the order stays open for a later attempt.
		return result, nil
	}

	minAmount, ok := new(big.Int).SetString(order.MinAmountTo, 10)
	if !ok {
		return nil, fmt.Errorf("order %s has unparseable min_amount_to %q", orderID, order.MinAmountTo)
	}

	winner := pending[0]
	bestScore := ScoreBid(&winner, minAmount)
	for _, bid := range pending[1:] {
		score := ScoreBid(&bid, minAmount)
		// Ties break toward the earliest bid; pending is ordered by timestamp.
		if score > bestScore {
			winner = bid
			bestScore = score
		}
	}

	swapped, err := e.orders.CompareAndSwapStatus(orderID, model.OrderStatusOpen, model.OrderStatusMatched)
	if err != nil {
		return nil, fmt.Errorf("failed to match order: %w", err)
	}
	if !swapped {
		// A concurrent resolution won the swap; this attempt is a no-op.
		current, err := e.bids.ListBidsForOrder(orderID)
		if err == nil {
			result.AllBids = current
			result.Winner = findWonBid(current)
		}
		return result, nil
	}

	for _, bid := range pending {
		status := model.BidStatusLost
		if bid.BidID == winner.BidID {
			status = model.BidStatusWon
		}
		if err := e.bids.UpdateBidStatus(bid.BidID, status); err != nil {
			e.logger.Error("Failed to update bid status", zap.String("bid_id", bid.BidID), zap.Error(err))
		}
	}

	// A bid admitted between the snapshot above and the swap is pending
	// against a matched order and can never win; mark it lost too.
	if current, err := e.bids.ListBidsForOrder(orderID); err == nil {
		for _, bid := range current {
			if bid.Status == model.BidStatusPending {
				if err := e.bids.UpdateBidStatus(bid.BidID, model.BidStatusLost); err != nil {
					e.logger.Error("Failed to update bid status", zap.String("bid_id", bid.BidID), zap.Error(err))
				}
			}
		}
	}

	winner.Status = model.BidStatusWon
	result.Winner = &winner

	wonPayload := events.AuctionWonEvent{
		OrderID:   orderID,
		BidID:     winner.BidID,
		Resolver:  winner.Resolver,
		BidAmount: winner.BidAmount,
		EndTime:   endTime.Unix(),
	}
	if err := e.outbox.StoreEvent(events.EventAuctionWon, orderID, wonPayload); err != nil {
		e.logger.Error("Failed to store auction_won outbox event", zap.String("order_id", orderID), zap.Error(err))
	}
	e.broadcast.Broadcast(events.EventAuctionWon, wonPayload)

	e.logger.Info("Auction resolved",
		zap.String("order_id", orderID),
		zap.String("winner", winner.Resolver),
		zap.Float64("score", bestScore))

	return result, nil
}

// ScoreBid computes the weighted bid score against the order minimum:
// 0.6*amount + 0.3*reputation + 0.1*speed. Bids below the minimum take an
// amount score of -1, which no qualifying bid can lose to.
func ScoreBid(bid *model.Bid, minAmount *big.Int) float64 {
	bidAmount, ok := new(big.Int).SetString(bid.BidAmount, 10)
	if !ok {
		return -1
	}

	amountScore := -1.0
	if bidAmount.Cmp(minAmount) >= 0 {
		margin := new(big.Int).Sub(bidAmount, minAmount)
		ratio, _ := new(big.Float).Quo(
			new(big.Float).SetInt(margin),
			new(big.Float).SetInt(minAmount),
		).Float64()
		if ratio > 1 {
			ratio = 1
		}
		amountScore = ratio
	}

	reputationScore := float64(bid.Reputation) / float64(model.MaxReputation)

	speedScore := 1 - float64(bid.ExecutionTime)/maxExecutionRef
	if speedScore < 0 {
		speedScore = 0
	}

	return amountWeight*amountScore + reputationWeight*reputationScore + speedWeight*speedScore
}

func validateBid(bid *model.Bid) []string {
	var violations []string

	if bid.OrderID == "" {
		violations = append(violations, "orderId is required")
	}
	if bid.Resolver == "" {
		violations = append(violations, "resolver is required")
	}
	if bid.BidAmount == "" {
		violations = append(violations, "bidAmount is required")
	} else if n, ok := new(big.Int).SetString(bid.BidAmount, 10); !ok || n.Sign() <= 0 {
		violations = append(violations, "bidAmount must be a positive integer")
	}
	if bid.GasPrice != "" {
		if n, ok := new(big.Int).SetString(bid.GasPrice, 10); !ok || n.Sign() < 0 {
			violations = append(violations, "gasPrice must be a non-negative integer")
		}
	}
	if bid.ExecutionTime < model.MinExecutionTimeSeconds || bid.ExecutionTime > model.MaxExecutionTimeSeconds {
		violations = append(violations, fmt.Sprintf("executionTime must be between %d and %d seconds",
			model.MinExecutionTimeSeconds, model.MaxExecutionTimeSeconds))
	}
	if bid.Reputation < 0 || bid.Reputation > model.MaxReputation {
		violations = append(violations, fmt.Sprintf("reputation must be between 0 and %d", model.MaxReputation))
	}

	return violations
}

func findWonBid(bids []model.Bid) *model.Bid {
	for i := range bids {
		if bids[i].Status == model.BidStatusWon {
			return &bids[i]
		}
	}
	return nil
}

func bidEventPayload(bid *model.Bid) events.BidEvent {
	return events.BidEvent{
		BidID:         bid.BidID,
		OrderID:       bid.OrderID,
		Resolver:      bid.Resolver,
		BidAmount:     bid.BidAmount,
		ExecutionTime: bid.ExecutionTime,
		Reputation:    bid.Reputation,
		Status:        bid.Status,
		Timestamp:     bid.Timestamp.Unix(),
	}
}
