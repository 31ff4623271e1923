package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/api"
)

// Client is the resolver agent's REST client to the marketplace.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
		logger: logger,
	}
}

// ListOpenOrders pulls the current open-order list, used by the periodic
// reconciliation to correct for missed events.
func (c *Client) ListOpenOrders(ctx context.Context) ([]api.OrderResponse, error) {
	var orders []api.OrderResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"status": "open", "limit": "100"}).
		SetResult(&orders).
		Get("/api/orders")
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list orders returned status %d", resp.StatusCode())
	}

	return orders, nil
}

// SubmitBid posts a bid against an order.
func (c *Client) SubmitBid(ctx context.Context, req api.CreateBidRequest) (*api.BidResponse, error) {
	var bid api.BidResponse
	var apiErr api.ErrorResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&bid).
		SetError(&apiErr).
		Post("/api/bids")
	if err != nil {
		return nil, fmt.Errorf("failed to submit bid: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bid rejected with status %d: %s", resp.StatusCode(), apiErr.Message)
	}

	return &bid, nil
}
