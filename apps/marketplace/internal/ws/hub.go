package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/events"
)

// SubscriptionFilters narrow order events for one subscriber. They apply to
// order events only.
type SubscriptionFilters struct {
	ChainFrom []string `json:"chain_from,omitempty"`
	ChainTo   []string `json:"chain_to,omitempty"`
	Resolver  string   `json:"resolver,omitempty"`
}

// inboundMessage is a control message from a subscriber.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type subscribeOrdersData struct {
	Filters *SubscriptionFilters `json:"filters,omitempty"`
}

type unsubscribeData struct {
	Subscription string `json:"subscription"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	closed   bool
	orders   bool
	bids     bool
	auctions bool
	filters  *SubscriptionFilters
}

// Hub is the event distribution point: one connection record per subscriber,
// best-effort fan-out, no acknowledgement, no replay. Subscriptions die with
// the connection.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// HandleWS upgrades an HTTP request and serves the connection until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info("Client connected", zap.String("client_id", c.id))

	c.enqueue(mustMarshal(map[string]interface{}{
		"type":      "welcome",
		"client_id": c.id,
		"timestamp": time.Now().Unix(),
	}))

	go c.writePump()
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		// Mark the client closed before closing the channel so a broadcast
		// racing this teardown cannot send on it.
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
		c.conn.Close()
		h.logger.Info("Client disconnected", zap.String("client_id", c.id))
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// A malformed message gets an error reply, not a hangup.
			c.enqueue(mustMarshal(map[string]string{"error": "invalid message format"}))
			continue
		}

		h.handleMessage(c, msg)
	}
}

func (h *Hub) handleMessage(c *client, msg inboundMessage) {
	switch msg.Type {
	case "subscribe_orders":
		var data subscribeOrdersData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.enqueue(mustMarshal(map[string]string{"error": "invalid subscribe_orders data"}))
				return
			}
		}
		c.mu.Lock()
		c.orders = true
		c.filters = data.Filters
		c.mu.Unlock()
		c.enqueue(mustMarshal(map[string]interface{}{
			"type":         "subscription_confirmed",
			"subscription": "orders",
			"filters":      data.Filters,
		}))

	case "subscribe_bids":
		c.mu.Lock()
		c.bids = true
		c.mu.Unlock()
		c.enqueue(mustMarshal(map[string]string{
			"type":         "subscription_confirmed",
			"subscription": "bids",
		}))

	case "subscribe_auctions":
		c.mu.Lock()
		c.auctions = true
		c.mu.Unlock()
		c.enqueue(mustMarshal(map[string]string{
			"type":         "subscription_confirmed",
			"subscription": "auctions",
		}))

	case "unsubscribe":
		var data unsubscribeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.enqueue(mustMarshal(map[string]string{"error": "invalid unsubscribe data"}))
			return
		}
		c.mu.Lock()
		switch data.Subscription {
		case "orders":
			c.orders = false
			c.filters = nil
		case "bids":
			c.bids = false
		case "auctions":
			c.auctions = false
		}
		c.mu.Unlock()
		c.enqueue(mustMarshal(map[string]string{
			"type":         "unsubscription_confirmed",
			"subscription": data.Subscription,
		}))

	case "ping":
		c.enqueue(mustMarshal(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().Unix(),
		}))

	default:
		c.enqueue(mustMarshal(map[string]string{"error": "unknown message type: " + msg.Type}))
	}
}

// Broadcast delivers an event to every subscriber whose family toggle is on
// and whose filter matches. Delivery is best effort: a slow subscriber's full
// queue drops the message rather than blocking the broadcast.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		return
	}

	msg, err := json.Marshal(events.Envelope{
		Event:     eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal event envelope", zap.String("event", eventType), zap.Error(err))
		return
	}

	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range snapshot {
		if c.shouldReceive(eventType, payload) {
			c.enqueue(msg)
			sent++
		}
	}

	h.logger.Debug("Broadcast event",
		zap.String("event", eventType),
		zap.Int("subscribers", sent))
}

// ClientCount reports the number of attached subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) shouldReceive(eventType string, payload interface{}) bool {
	c.mu.Lock()
	orders, bids, auctions := c.orders, c.bids, c.auctions
	filters := c.filters
	c.mu.Unlock()

	switch eventType {
	case events.EventNewOrder, events.EventOrderExpired:
		if !orders {
			return false
		}
		order, ok := payload.(events.OrderEvent)
		if ok && filters != nil {
			return filters.matchOrder(&order)
		}
		return true
	case events.EventNewBid:
		return bids
	case events.EventAuctionWon:
		return auctions
	default:
		return false
	}
}

func (f *SubscriptionFilters) matchOrder(order *events.OrderEvent) bool {
	if len(f.ChainFrom) > 0 && !contains(f.ChainFrom, order.ChainFrom) {
		return false
	}
	if len(f.ChainTo) > 0 && !contains(f.ChainTo, order.ChainTo) {
		return false
	}
	// Order events carry no resolver identity, so a resolver filter excludes
	// them entirely.
	if f.Resolver != "" {
		return false
	}
	return true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// enqueue drops the message when the client is gone or its queue is full.
func (c *client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
