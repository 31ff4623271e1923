package janitor

import (
	"time"

	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/auction"
	"marketplace/apps/marketplace/internal/model"
)

// Sweeper is the registry surface the janitor drives. ListAllOpen must return
// the whole open set so orders beyond one page are still visited.
type Sweeper interface {
	SweepExpired() (int, error)
	ListAllOpen() ([]model.Order, error)
}

// Resolver finalizes auctions whose window has elapsed.
type Resolver interface {
	Resolve(orderID string) (*auction.Result, error)
}

// Janitor periodically expires stale orders and resolves elapsed auctions.
// Auction resolution is otherwise only triggered by incoming bids, so without
// this sweep an order that stops receiving bids would sit unresolved until
// expiry.
type Janitor struct {
	registry Sweeper
	engine   Resolver
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
}

func NewJanitor(registry Sweeper, engine Resolver, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		registry: registry,
		engine:   engine,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (j *Janitor) Start() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce()
		case <-j.stop:
			return
		}
	}
}

func (j *Janitor) Stop() {
	close(j.stop)
}

// RunOnce performs one expiry sweep followed by one resolution sweep.
func (j *Janitor) RunOnce() {
	expired, err := j.registry.SweepExpired()
	if err != nil {
		j.logger.Error("Expiry sweep failed", zap.Error(err))
	} else if expired > 0 {
		j.logger.Info("Expired orders", zap.Int("count", expired))
	}

	open, err := j.registry.ListAllOpen()
	if err != nil {
		j.logger.Error("Resolution sweep failed to list open orders", zap.Error(err))
		return
	}

	for i := range open {
		// Resolve is a no-op while the auction window is still running.
		if _, err := j.engine.Resolve(open[i].OrderID); err != nil {
			j.logger.Error("Resolution sweep failed",
				zap.String("order_id", open[i].OrderID),
				zap.Error(err))
		}
	}
}
