package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/api"
	"marketplace/apps/marketplace/internal/auction"
	"marketplace/apps/marketplace/internal/config"
	"marketplace/apps/marketplace/internal/event_publisher"
	"marketplace/apps/marketplace/internal/janitor"
	"marketplace/apps/marketplace/internal/registry"
	"marketplace/apps/marketplace/internal/repository"
	"marketplace/apps/marketplace/internal/validator"
	"marketplace/apps/marketplace/internal/ws"
)

func main() {
	// Initialize zap logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// Load configuration from environment variables
	cfg := config.NewConfig()

	logger.Info("Starting marketplace with configuration",
		zap.String("db_url", cfg.DbURL),
		zap.String("kafka_broker", cfg.KafkaBroker),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.Int("api_port", cfg.APIPort),
		zap.Duration("auction_window", cfg.AuctionWindow),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)

	// Connect to database
	db, err := sql.Open("postgres", cfg.DbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Initialize database tables
	if err := repository.InitMigration(db); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	orderRepository := repository.NewOrderRepository(db, logger)
	bidRepository := repository.NewBidRepository(db, logger)
	outboxRepository := repository.NewOutboxRepository(db, logger)

	// WebSocket fan-out hub
	hub := ws.NewHub(logger)

	signatureValidator := validator.NewSignatureValidator(logger)
	orderRegistry := registry.NewOrderRegistry(orderRepository, signatureValidator, outboxRepository, hub, logger)
	engine := auction.NewEngine(orderRepository, bidRepository, outboxRepository, hub, cfg.AuctionWindow, logger)

	// Create event publisher
	eventPublisher, err := event_publisher.NewEventPublisher(cfg.KafkaBroker, cfg.KafkaTopic, cfg.PublishInterval, logger, outboxRepository)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}
	defer eventPublisher.Close()

	// Start event publisher in background
	go eventPublisher.StartPublishing()

	// Expiry and resolution sweeps run in the background; bids also trigger
	// resolution directly, the janitor covers auctions that go quiet.
	sweeper := janitor.NewJanitor(orderRegistry, engine, cfg.SweepInterval, logger)
	go sweeper.Start()

	// Create and start API server
	apiServer := api.NewServer(cfg.APIPort, orderRegistry, engine, bidRepository, hub, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	sweeper.Stop()

	// Create a context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown API server gracefully
	if err := apiServer.Stop(ctx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	logger.Info("Marketplace shutdown complete")
}
