package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/chain"
	"marketplace/apps/marketplace/internal/config"
	"marketplace/apps/marketplace/internal/resolver"
)

func main() {
	// Initialize zap logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// Load configuration from environment variables
	cfg := config.NewResolverConfig()

	logger.Info("Starting resolver agent with configuration",
		zap.String("marketplace_url", cfg.MarketplaceURL),
		zap.String("marketplace_ws_url", cfg.MarketplaceWsURL),
		zap.String("rpc_url", cfg.RpcURL),
		zap.String("escrow_address", cfg.EscrowAddress),
		zap.String("staking_address", cfg.StakingAddress),
	)

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		logger.Fatal("Failed to parse resolver private key", zap.Error(err))
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	ethClient, err := ethclient.Dial(cfg.RpcURL)
	if err != nil {
		logger.Fatal("Failed to connect to RPC endpoint", zap.Error(err))
	}
	defer ethClient.Close()

	staking, err := chain.NewEthStaking(ethClient, cfg.StakingAddress, key, logger)
	if err != nil {
		logger.Fatal("Failed to create staking client", zap.Error(err))
	}

	escrow, err := chain.NewEthEscrow(ethClient, cfg.EscrowAddress, key, logger)
	if err != nil {
		logger.Fatal("Failed to create escrow client", zap.Error(err))
	}

	market := resolver.NewClient(cfg.MarketplaceURL, logger)

	agent, err := resolver.NewAgent(cfg, market, staking, escrow, ethClient, address, logger)
	if err != nil {
		logger.Fatal("Failed to create resolver agent", zap.Error(err))
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := agent.Start(startCtx); err != nil {
		cancel()
		logger.Fatal("Failed to start resolver agent", zap.Error(err))
	}
	cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	agent.Stop()

	logger.Info("Resolver agent shutdown complete")
}
