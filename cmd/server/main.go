// Package main provides the API server entry point for the wallet cards
// service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/wallet-cards/internal/api"
	"github.com/wallet-cards/internal/assets"
	"github.com/wallet-cards/internal/card"
	"github.com/wallet-cards/internal/chain"
	"github.com/wallet-cards/internal/config"
	"github.com/wallet-cards/internal/indexer"
	"github.com/wallet-cards/internal/logging"
	"github.com/wallet-cards/internal/profile"
	"github.com/wallet-cards/internal/weekly"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Collaborator clients
	statsClient := indexer.NewClient(cfg.GraphQL.Endpoint, cfg.GraphQL.AdminSecret)
	profileClient := profile.NewClient(
		cfg.Search.Endpoint,
		cfg.Search.BearerToken,
		cfg.Avatar.AllowedHost,
		cfg.Avatar.AllowedHostSuffix,
	)
	weeklyClient := weekly.NewClient(cfg.WeeklyRuns.Endpoint)

	// The RPC connection is optional: without it the weekly pool estimate
	// is unavailable but every other endpoint still works.
	var backend chain.EthBackend
	if cfg.Chain.RPCEndpoint != "" {
		ethClient, err := ethclient.Dial(cfg.Chain.RPCEndpoint)
		if err != nil {
			logger.WithError(err).Warn("RPC endpoint unreachable, pool estimates disabled")
		} else {
			backend = ethClient
			defer ethClient.Close()
		}
	} else {
		logger.Warn("No RPC endpoint configured, pool estimates disabled")
	}

	estimator := chain.NewEstimator(backend, weeklyClient, chain.Config{
		PurchaseAddress: common.HexToAddress(cfg.Chain.PurchaseAddress),
		PurchaseTopic:   common.HexToHash(cfg.Chain.PurchaseTopic),
		ShareBps:        cfg.Chain.PoolShareBpsBig(),
		CacheTTL:        cfg.Chain.PoolCacheTTL,
	})

	assetResolver := assets.NewResolver(cfg.Assets.Dir)
	composer := card.NewComposer(assetResolver)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	server := api.NewServer(serverConfig, statsClient, profileClient, estimator, assetResolver, composer)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("Server stopped")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		os.Exit(1)
	}

	logger.Info("Server exited")
}
