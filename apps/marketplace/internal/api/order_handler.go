package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/model"
	"marketplace/apps/marketplace/internal/registry"
	"marketplace/apps/marketplace/internal/repository"
)

// OrderHandler handles order-related API endpoints
type OrderHandler struct {
	registry *registry.OrderRegistry
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderRegistry *registry.OrderRegistry, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		registry: orderRegistry,
		logger:   logger,
	}
}

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body", nil)
		return
	}

	order := model.Order{
		OrderID:            req.OrderID,
		Requester:          req.Requester,
		DestinationAddress: req.DestinationAddress,
		ChainFrom:          req.ChainFrom,
		ChainTo:            req.ChainTo,
		TokenFrom:          req.TokenFrom,
		TokenTo:            req.TokenTo,
		AmountFrom:         req.AmountFrom,
		MinAmountTo:        req.MinAmountTo,
		Nonce:              req.Nonce,
		Signature:          req.Signature,
		SignatureScheme:    req.SignatureScheme,
	}
	if req.Expiry != 0 {
		order.Expiry = time.Unix(req.Expiry, 0)
	}

	created, err := h.registry.Submit(order)
	if err != nil {
		var admission *registry.AdmissionError
		if errors.As(err, &admission) {
			writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_order", "Order failed validation", admission.Violations)
			return
		}
		h.logger.Error("Failed to create order", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to create order", nil)
		return
	}

	writeJSONResponse(w, h.logger, http.StatusCreated, toOrderResponse(created))
}

// GetOrder handles GET /api/orders/{order_id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]

	order, err := h.registry.Get(orderID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeErrorResponse(w, h.logger, http.StatusNotFound, "order_not_found", "Order not found", nil)
			return
		}
		h.logger.Error("Failed to get order", zap.String("order_id", orderID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to retrieve order", nil)
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, toOrderResponse(order))
}

// ListOrders handles GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filters := repository.OrderFilters{
		Status:    query.Get("status"),
		ChainFrom: query.Get("chain_from"),
		ChainTo:   query.Get("chain_to"),
		Page:      intParam(query.Get("page"), 1),
		Limit:     intParam(query.Get("limit"), 50),
	}

	orders, err := h.registry.List(filters)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to list orders", nil)
		return
	}

	response := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		response = append(response, toOrderResponse(&orders[i]))
	}

	writeJSONResponse(w, h.logger, http.StatusOK, response)
}

// GetMarketStats handles GET /api/market/stats
func (h *OrderHandler) GetMarketStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.registry.MarketStats()
	if err != nil {
		h.logger.Error("Failed to get market stats", zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to compute market statistics", nil)
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, stats)
}

func intParam(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}

// writeJSONResponse writes a JSON response with the specified status code
func writeJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string, details []string) {
	writeJSONResponse(w, logger, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}
