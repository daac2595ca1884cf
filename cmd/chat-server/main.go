package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookswap/database"
	"bookswap/internal/config"
	httpapi "bookswap/internal/microservices/http-api"
	"bookswap/internal/microservices/http-api/repository"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	db, err := database.ConnectDB(cfg, logger)
	if err != nil {
		logger.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Redis is optional; unread counters fall back to SQL without it
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = repository.NewRedisClient(context.Background(), cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			logger.Warn("redis_unavailable", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
			logger.Info("redis_connected")
		}
	}

	server := httpapi.NewServer(cfg, db, rdb, logger)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
		if err := server.Stop(10 * time.Second); err != nil {
			logger.Error("server_shutdown_failed", "error", err)
		}
		logger.Info("server_stopped_gracefully")
	case err := <-errChan:
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
}
