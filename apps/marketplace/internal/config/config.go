package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the marketplace server configuration.
type Config struct {
	DbURL           string
	KafkaBroker     string
	KafkaTopic      string
	APIPort         int
	AuctionWindow   time.Duration
	SweepInterval   time.Duration
	PublishInterval time.Duration
}

// ResolverConfig holds the resolver agent configuration.
type ResolverConfig struct {
	MarketplaceURL   string
	MarketplaceWsURL string
	RpcURL           string
	PrivateKey       string
	EscrowAddress    string
	StakingAddress   string
	MinStakeWei      string
	LiquidityWei     string
	ReconnectDelay   time.Duration
	SyncInterval     time.Duration
	SweepInterval    time.Duration
}

// NewConfig loads the marketplace configuration from environment variables
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	return &Config{
		DbURL:           getEnvOrFatal("DB_URL"),
		KafkaBroker:     getEnvOrFatal("KAFKA_BROKER"),
		KafkaTopic:      getEnvOrFatal("KAFKA_TOPIC"),
		APIPort:         getEnvInt("API_PORT", 8080),
		AuctionWindow:   getEnvDuration("AUCTION_WINDOW", 60*time.Second),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 10*time.Second),
		PublishInterval: getEnvDuration("PUBLISH_INTERVAL", 3*time.Second),
	}
}

// NewResolverConfig loads the resolver agent configuration from environment variables
func NewResolverConfig() *ResolverConfig {
	_ = godotenv.Load()

	return &ResolverConfig{
		MarketplaceURL:   getEnvOrFatal("MARKETPLACE_URL"),
		MarketplaceWsURL: getEnvOrFatal("MARKETPLACE_WS_URL"),
		RpcURL:           getEnvOrFatal("RPC_URL"),
		PrivateKey:       getEnvOrFatal("RESOLVER_PRIVATE_KEY"),
		EscrowAddress:    getEnvOrFatal("ESCROW_ADDRESS"),
		StakingAddress:   getEnvOrFatal("STAKING_ADDRESS"),
		MinStakeWei:      getEnv("MIN_STAKE_WEI", "1000000000000000000"),
		LiquidityWei:     getEnv("LIQUIDITY_WEI", "10000000000000000000"),
		ReconnectDelay:   getEnvDuration("RECONNECT_DELAY", 5*time.Second),
		SyncInterval:     getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SweepInterval:    getEnvDuration("CACHE_SWEEP_INTERVAL", 60*time.Second),
	}
}

func getEnvOrFatal(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	log.Fatalf("environment variable %s not set", key)

	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
