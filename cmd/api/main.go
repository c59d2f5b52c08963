package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"walletd/internal/cache"
	"walletd/internal/config"
	"walletd/internal/db"
	"walletd/internal/metrics"
	"walletd/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("starting walletd",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
	)

	// Connect to PostgreSQL
	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()
	logger.Info("connected to PostgreSQL")

	// Connect to Redis (optional; snapshot cache and rate limiting)
	cacheClient, err := cache.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		cacheClient = nil
	} else {
		defer cacheClient.Close()
		logger.Info("connected to Redis")
	}

	srv := server.New(server.Config{
		Port:               cfg.Server.Port,
		Database:           database,
		CacheClient:        cacheClient,
		Logger:             logger,
		Metrics:            metrics.New(prometheus.DefaultRegisterer),
		SnapshotTTL:        time.Duration(cfg.Redis.SnapshotTTLSeconds) * time.Second,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
