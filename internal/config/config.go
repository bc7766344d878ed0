// Package config provides configuration management for the wallet cards
// service. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	GraphQL    GraphQLConfig
	Search     SearchConfig
	Avatar     AvatarConfig
	WeeklyRuns WeeklyRunsConfig
	Chain      ChainConfig
	Assets     AssetsConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// GraphQLConfig holds indexer endpoint configuration
type GraphQLConfig struct {
	Endpoint    string
	AdminSecret string
}

// SearchConfig holds profile-search API configuration
type SearchConfig struct {
	Endpoint    string
	BearerToken string
}

// AvatarConfig holds avatar proxy configuration
type AvatarConfig struct {
	// AllowedHost is the bare apex host accepted as-is
	AllowedHost string
	// AllowedHostSuffix is the domain suffix accepted for subdomains
	AllowedHostSuffix string
}

// WeeklyRunsConfig holds the weekly competition API configuration
type WeeklyRunsConfig struct {
	Endpoint string
}

// ChainConfig holds JSON-RPC and payout estimation configuration
type ChainConfig struct {
	RPCEndpoint     string
	PurchaseAddress string
	PurchaseTopic   string
	PoolShareBps    int64
	PoolCacheTTL    time.Duration
}

// AssetsConfig holds static asset configuration
type AssetsConfig struct {
	Dir string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		GraphQL: GraphQLConfig{
			Endpoint:    getEnv("GRAPHQL_ENDPOINT", "http://127.0.0.1:8080/v1/graphql"),
			AdminSecret: getEnv("HASURA_ADMIN_SECRET", ""),
		},
		Search: SearchConfig{
			Endpoint:    getEnv("SEARCH_ENDPOINT", "https://backend.portal.abs.xyz/api/search/global"),
			BearerToken: getEnv("SEARCH_BEARER", ""),
		},
		Avatar: AvatarConfig{
			AllowedHost:       getEnv("AVATAR_ALLOWED_HOST", "abs.xyz"),
			AllowedHostSuffix: getEnv("AVATAR_ALLOWED_HOST_SUFFIX", ".abs.xyz"),
		},
		WeeklyRuns: WeeklyRunsConfig{
			Endpoint: getEnv("WEEKLY_RUNS_ENDPOINT", ""),
		},
		Chain: ChainConfig{
			RPCEndpoint:     getEnv("RPC_ENDPOINT", ""),
			PurchaseAddress: getEnv("PURCHASE_CONTRACT_ADDRESS", ""),
			PurchaseTopic:   getEnv("PURCHASE_EVENT_TOPIC", ""),
			PoolShareBps:    getEnvAsInt64("POOL_SHARE_BPS", 5000),
			PoolCacheTTL:    getEnvAsDuration("POOL_CACHE_TTL", 45*time.Second),
		},
		Assets: AssetsConfig{
			Dir: getEnv("ASSETS_DIR", "assets"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if config.Chain.PoolShareBps < 0 || config.Chain.PoolShareBps > 10000 {
		return nil, fmt.Errorf("POOL_SHARE_BPS must be between 0 and 10000, got %d", config.Chain.PoolShareBps)
	}

	return config, nil
}

// PoolShareBpsBig returns the configured pool share as a big integer for
// wei arithmetic.
func (c *ChainConfig) PoolShareBpsBig() *big.Int {
	return big.NewInt(c.PoolShareBps)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 gets an environment variable as an integer with a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
