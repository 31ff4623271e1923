package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/auction"
	"marketplace/apps/marketplace/internal/model"
)

// BidLister reads bids back out for the listing endpoint.
type BidLister interface {
	ListBidsForOrder(orderID string) ([]model.Bid, error)
}

// BidHandler handles bid-related API endpoints
type BidHandler struct {
	engine *auction.Engine
	bids   BidLister
	logger *zap.Logger
}

// NewBidHandler creates a new BidHandler
func NewBidHandler(engine *auction.Engine, bids BidLister, logger *zap.Logger) *BidHandler {
	return &BidHandler{
		engine: engine,
		bids:   bids,
		logger: logger,
	}
}

// CreateBid handles POST /api/bids. A new bid also triggers a lazy resolution
// attempt for its order; the auction_won broadcast happens inside the engine.
func (h *BidHandler) CreateBid(w http.ResponseWriter, r *http.Request) {
	var req CreateBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body", nil)
		return
	}

	executionTime := req.ExecutionTime
	if executionTime == 0 {
		executionTime = 120
	}

	bid, err := h.engine.SubmitBid(model.Bid{
		OrderID:       req.OrderID,
		Resolver:      req.Resolver,
		BidAmount:     req.BidAmount,
		GasPrice:      req.GasPrice,
		ExecutionTime: executionTime,
		Collateral:    req.Collateral,
		Reputation:    req.Reputation,
	})
	if err != nil {
		var rejection *auction.RejectionError
		switch {
		case errors.Is(err, auction.ErrOrderNotFound):
			writeErrorResponse(w, h.logger, http.StatusNotFound, "order_not_found", "Order not found", nil)
		case errors.Is(err, auction.ErrOrderClosed):
			writeErrorResponse(w, h.logger, http.StatusConflict, "order_closed", "Order is no longer open for bidding", nil)
		case errors.As(err, &rejection):
			writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_bid", "Bid rejected", rejection.Violations)
		default:
			h.logger.Error("Failed to create bid", zap.Error(err))
			writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to create bid", nil)
		}
		return
	}

	if _, err := h.engine.Resolve(bid.OrderID); err != nil {
		h.logger.Error("Resolution attempt failed", zap.String("order_id", bid.OrderID), zap.Error(err))
	}

	writeJSONResponse(w, h.logger, http.StatusCreated, toBidResponse(bid))
}

// ListBids handles GET /api/orders/{order_id}/bids
func (h *BidHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]

	bids, err := h.bids.ListBidsForOrder(orderID)
	if err != nil {
		h.logger.Error("Failed to list bids", zap.String("order_id", orderID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to list bids", nil)
		return
	}

	response := make([]BidResponse, 0, len(bids))
	for i := range bids {
		response = append(response, toBidResponse(&bids[i]))
	}

	writeJSONResponse(w, h.logger, http.StatusOK, response)
}
