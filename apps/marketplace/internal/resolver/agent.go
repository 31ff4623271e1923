package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/api"
	"marketplace/apps/marketplace/internal/chain"
	"marketplace/apps/marketplace/internal/config"
	"marketplace/apps/marketplace/internal/events"
	"marketplace/apps/marketplace/internal/model"
)

const (
	// Gas budget assumed for a settlement transaction when pricing a bid.
	executeGasLimit = 150000

	// Profit margin taken on top of estimated execution cost, in percent of
	// the order's source amount.
	profitMarginPct = 1

	// Execution time quoted on every bid, in seconds.
	quotedExecutionTime = 30

	// Collateral pledged per bid, in wei.
	defaultCollateralWei = "100000000000000000"
)

// Marketplace is the REST surface the agent drives.
type Marketplace interface {
	ListOpenOrders(ctx context.Context) ([]api.OrderResponse, error)
	SubmitBid(ctx context.Context, req api.CreateBidRequest) (*api.BidResponse, error)
}

// GasOracle estimates the current gas price. Satisfied by ethclient.Client.
type GasOracle interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Status is a point-in-time snapshot of the agent's state.
type Status struct {
	Running       bool   `json:"running"`
	Connected     bool   `json:"connected"`
	Address       string `json:"address"`
	TrackedOrders int    `json:"tracked_orders"`
	ActiveBids    int    `json:"active_bids"`
}

// Agent watches the marketplace event stream, bids on orders it can fill and
// settles the ones it wins through the escrow contract. Missed events are
// corrected by a periodic pull of the open-order list.
type Agent struct {
	cfg       *config.ResolverConfig
	market    Marketplace
	staking   chain.Staking
	escrow    chain.Escrow
	gas       GasOracle
	address   common.Address
	liquidity *big.Int
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	running    bool
	connected  bool
	reputation int
	conn       *websocket.Conn
	orders     map[string]events.OrderEvent
	bids       map[string]string // order id -> bid id

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewAgent(cfg *config.ResolverConfig, market Marketplace, staking chain.Staking, escrow chain.Escrow, gas GasOracle, address common.Address, logger *zap.Logger) (*Agent, error) {
	liquidity, ok := new(big.Int).SetString(cfg.LiquidityWei, 10)
	if !ok {
		return nil, fmt.Errorf("invalid liquidity amount: %s", cfg.LiquidityWei)
	}

	return &Agent{
		cfg:       cfg,
		market:    market,
		staking:   staking,
		escrow:    escrow,
		gas:       gas,
		address:   address,
		liquidity: liquidity,
		logger:    logger,
		now:       time.Now,
		orders:    make(map[string]events.OrderEvent),
		bids:      make(map[string]string),
		stop:      make(chan struct{}),
	}, nil
}

// Start verifies the agent's stake, tops it up if short, then launches the
// stream, reconciliation and cache sweep loops. A failed staking check is
// fatal: an unstaked resolver's bids carry no collateral backing.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.ensureStaked(ctx); err != nil {
		return err
	}

	reputation, err := a.staking.GetReputation(ctx, a.address)
	if err != nil {
		a.logger.Warn("Failed to read reputation, bidding with zero", zap.Error(err))
		reputation = big.NewInt(0)
	}

	a.mu.Lock()
	a.running = true
	a.reputation = int(reputation.Int64())
	a.mu.Unlock()

	a.logger.Info("Resolver agent starting",
		zap.String("address", a.address.Hex()),
		zap.Int("reputation", int(reputation.Int64())))

	a.wg.Add(3)
	go a.streamLoop()
	go a.syncLoop()
	go a.sweepLoop()

	return nil
}

// Stop shuts down all loops and waits for them to finish.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	conn := a.conn
	a.mu.Unlock()

	close(a.stop)
	if conn != nil {
		conn.Close()
	}
	a.wg.Wait()
}

func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Status{
		Running:       a.running,
		Connected:     a.connected,
		Address:       a.address.Hex(),
		TrackedOrders: len(a.orders),
		ActiveBids:    len(a.bids),
	}
}

func (a *Agent) ensureStaked(ctx context.Context) error {
	minStake, ok := new(big.Int).SetString(a.cfg.MinStakeWei, 10)
	if !ok {
		return fmt.Errorf("invalid minimum stake: %s", a.cfg.MinStakeWei)
	}

	staked, err := a.staking.GetStake(ctx, a.address)
	if err != nil {
		return fmt.Errorf("failed to read stake: %w", err)
	}

	if staked.Cmp(minStake) >= 0 {
		a.logger.Info("Stake verified", zap.String("staked", staked.String()))
		return nil
	}

	topUp := new(big.Int).Sub(minStake, staked)
	a.logger.Info("Stake below minimum, topping up",
		zap.String("staked", staked.String()),
		zap.String("top_up", topUp.String()))

	if err := a.staking.Stake(ctx, topUp); err != nil {
		return fmt.Errorf("failed to top up stake: %w", err)
	}

	registered, err := a.staking.IsResolver(ctx, a.address)
	if err != nil {
		return fmt.Errorf("failed to check resolver registration: %w", err)
	}
	if !registered {
		return fmt.Errorf("address %s is not registered as a resolver after staking", a.address.Hex())
	}

	return nil
}

// streamLoop keeps a WebSocket subscription alive, reconnecting with a fixed
// delay until Stop is called.
func (a *Agent) streamLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(a.cfg.MarketplaceWsURL, nil)
		if err != nil {
			a.logger.Warn("Stream connect failed, retrying",
				zap.Error(err),
				zap.Duration("delay", a.cfg.ReconnectDelay))
			if !a.sleep(a.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		a.setConn(conn, true)

		if err := a.subscribe(conn); err != nil {
			a.logger.Error("Failed to subscribe to stream", zap.Error(err))
		} else {
			a.logger.Info("Connected to marketplace stream")
			a.readLoop(conn)
		}

		conn.Close()
		a.setConn(nil, false)

		select {
		case <-a.stop:
			return
		default:
		}

		a.logger.Warn("Stream disconnected, reconnecting",
			zap.Duration("delay", a.cfg.ReconnectDelay))
		if !a.sleep(a.cfg.ReconnectDelay) {
			return
		}
	}
}

func (a *Agent) setConn(conn *websocket.Conn, connected bool) {
	a.mu.Lock()
	a.conn = conn
	a.connected = connected
	a.mu.Unlock()
}

// sleep waits for d, returning false if Stop fired first.
func (a *Agent) sleep(d time.Duration) bool {
	select {
	case <-a.stop:
		return false
	case <-time.After(d):
		return true
	}
}

func (a *Agent) subscribe(conn *websocket.Conn) error {
	// Only orders sourced on the settlement chain are biddable, so filter at
	// the hub instead of discarding locally.
	orders := map[string]interface{}{
		"type": "subscribe_orders",
		"data": map[string]interface{}{
			"filters": map[string]interface{}{"chain_from": []string{model.ChainEthereum}},
		},
	}
	if err := conn.WriteJSON(orders); err != nil {
		return fmt.Errorf("failed to send subscribe_orders: %w", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "subscribe_auctions"}); err != nil {
		return fmt.Errorf("failed to send subscribe_auctions: %w", err)
	}
	return nil
}

func (a *Agent) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env events.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			// Subscription acks and error replies are not envelopes.
			continue
		}

		a.HandleEvent(env)
	}
}

// HandleEvent dispatches one stream envelope.
func (a *Agent) HandleEvent(env events.Envelope) {
	switch env.Event {
	case events.EventNewOrder:
		var order events.OrderEvent
		if err := json.Unmarshal(env.Data, &order); err != nil {
			a.logger.Error("Failed to decode order event", zap.Error(err))
			return
		}
		a.handleNewOrder(order)

	case events.EventOrderExpired:
		var order events.OrderEvent
		if err := json.Unmarshal(env.Data, &order); err != nil {
			a.logger.Error("Failed to decode order event", zap.Error(err))
			return
		}
		a.dropOrder(order.OrderID)

	case events.EventAuctionWon:
		var won events.AuctionWonEvent
		if err := json.Unmarshal(env.Data, &won); err != nil {
			a.logger.Error("Failed to decode auction event", zap.Error(err))
			return
		}
		a.handleAuctionWon(won)
	}
}

func (a *Agent) handleNewOrder(order events.OrderEvent) {
	a.mu.Lock()
	a.orders[order.OrderID] = order
	_, alreadyBid := a.bids[order.OrderID]
	a.mu.Unlock()

	if alreadyBid {
		return
	}

	if reason := a.evaluate(order); reason != "" {
		a.logger.Debug("Skipping order",
			zap.String("order_id", order.OrderID),
			zap.String("reason", reason))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := a.computeBid(ctx, order)
	if err != nil {
		a.logger.Error("Failed to price bid", zap.String("order_id", order.OrderID), zap.Error(err))
		return
	}

	bid, err := a.market.SubmitBid(ctx, *req)
	if err != nil {
		a.logger.Error("Failed to submit bid", zap.String("order_id", order.OrderID), zap.Error(err))
		return
	}

	a.mu.Lock()
	a.bids[order.OrderID] = bid.BidID
	a.mu.Unlock()

	a.logger.Info("Bid submitted",
		zap.String("order_id", order.OrderID),
		zap.String("bid_id", bid.BidID),
		zap.String("bid_amount", req.BidAmount))
}

// evaluate returns a rejection reason, or empty when the agent should bid.
func (a *Agent) evaluate(order events.OrderEvent) string {
	if order.Status != model.OrderStatusOpen {
		return "order not open"
	}
	if order.Expiry <= a.now().Unix() {
		return "order expired"
	}
	if order.ChainFrom != model.ChainEthereum {
		return "source chain not supported"
	}
	if !model.IsSupportedChain(order.ChainTo) {
		return "destination chain not supported"
	}

	amountFrom, ok := new(big.Int).SetString(order.AmountFrom, 10)
	if !ok {
		return "unparseable source amount"
	}
	if amountFrom.Cmp(a.liquidity) > 0 {
		return "order exceeds liquidity"
	}

	return ""
}

// computeBid prices an order at estimated execution cost plus the profit
// margin, lifted to the requester's floor when costs come in under it.
func (a *Agent) computeBid(ctx context.Context, order events.OrderEvent) (*api.CreateBidRequest, error) {
	gasPrice, err := a.gas.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	amountFrom, ok := new(big.Int).SetString(order.AmountFrom, 10)
	if !ok {
		return nil, fmt.Errorf("invalid source amount: %s", order.AmountFrom)
	}
	minAmountTo, ok := new(big.Int).SetString(order.MinAmountTo, 10)
	if !ok {
		return nil, fmt.Errorf("invalid minimum amount: %s", order.MinAmountTo)
	}

	cost := new(big.Int).Mul(gasPrice, big.NewInt(executeGasLimit))
	profit := new(big.Int).Mul(amountFrom, big.NewInt(profitMarginPct))
	profit.Div(profit, big.NewInt(100))
	bidAmount := new(big.Int).Add(cost, profit)

	// Bids under the floor never win an auction.
	if bidAmount.Cmp(minAmountTo) < 0 {
		bidAmount = minAmountTo
	}

	a.mu.Lock()
	reputation := a.reputation
	a.mu.Unlock()

	return &api.CreateBidRequest{
		OrderID:       order.OrderID,
		Resolver:      a.address.Hex(),
		BidAmount:     bidAmount.String(),
		GasPrice:      gasPrice.String(),
		ExecutionTime: quotedExecutionTime,
		Collateral:    defaultCollateralWei,
		Reputation:    reputation,
	}, nil
}

func (a *Agent) handleAuctionWon(won events.AuctionWonEvent) {
	a.mu.Lock()
	order, tracked := a.orders[won.OrderID]
	_, hadBid := a.bids[won.OrderID]
	delete(a.orders, won.OrderID)
	delete(a.bids, won.OrderID)
	a.mu.Unlock()

	if !strings.EqualFold(won.Resolver, a.address.Hex()) {
		if hadBid {
			a.logger.Info("Lost auction",
				zap.String("order_id", won.OrderID),
				zap.String("winner", won.Resolver))
		}
		return
	}

	if !tracked {
		a.logger.Error("Won an untracked order, cannot settle", zap.String("order_id", won.OrderID))
		return
	}

	a.logger.Info("Won auction",
		zap.String("order_id", won.OrderID),
		zap.String("bid_amount", won.BidAmount))

	a.wg.Add(1)
	go a.execute(order)
}

func (a *Agent) execute(order events.OrderEvent) {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	value, ok := new(big.Int).SetString(order.AmountFrom, 10)
	if !ok {
		a.logger.Error("Invalid source amount on won order",
			zap.String("order_id", order.OrderID),
			zap.String("amount_from", order.AmountFrom))
		return
	}

	txHash, err := a.escrow.ExecuteOrder(ctx, order.OrderID, value)
	if err != nil {
		a.logger.Error("Failed to settle won order",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
		return
	}

	a.logger.Info("Order settled",
		zap.String("order_id", order.OrderID),
		zap.String("tx_hash", txHash))
}

func (a *Agent) dropOrder(orderID string) {
	a.mu.Lock()
	delete(a.orders, orderID)
	delete(a.bids, orderID)
	a.mu.Unlock()
}

func (a *Agent) syncLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.SyncOnce()
		case <-a.stop:
			return
		}
	}
}

// SyncOnce pulls the open-order list and evaluates any order the stream
// missed, such as orders created while the agent was reconnecting.
func (a *Agent) SyncOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orders, err := a.market.ListOpenOrders(ctx)
	if err != nil {
		a.logger.Warn("Order reconciliation failed", zap.Error(err))
		return
	}

	for i := range orders {
		a.mu.Lock()
		_, known := a.orders[orders[i].OrderID]
		a.mu.Unlock()
		if known {
			continue
		}
		a.handleNewOrder(toOrderEvent(orders[i]))
	}
}

func (a *Agent) sweepLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.SweepOnce()
		case <-a.stop:
			return
		}
	}
}

// SweepOnce drops expired orders and their bids from the local cache.
func (a *Agent) SweepOnce() {
	cutoff := a.now().Unix()

	a.mu.Lock()
	for id, order := range a.orders {
		if order.Expiry <= cutoff {
			delete(a.orders, id)
			delete(a.bids, id)
		}
	}
	a.mu.Unlock()
}

func toOrderEvent(o api.OrderResponse) events.OrderEvent {
	return events.OrderEvent{
		OrderID:            o.OrderID,
		Requester:          o.Requester,
		DestinationAddress: o.DestinationAddress,
		ChainFrom:          o.ChainFrom,
		ChainTo:            o.ChainTo,
		TokenFrom:          o.TokenFrom,
		TokenTo:            o.TokenTo,
		AmountFrom:         o.AmountFrom,
		MinAmountTo:        o.MinAmountTo,
		Expiry:             o.Expiry,
		Status:             o.Status,
		CreatedAt:          o.CreatedAt,
	}
}
