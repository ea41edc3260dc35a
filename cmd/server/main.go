package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"lite-signal/configs"
	"lite-signal/server"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.New()
)

// Main function to start the server
func main() {
	cfg, err := configs.Load(".env")
	if err != nil {
		logger.Fatalf("Error loading config: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var store server.Store
	switch cfg.ServerStore {
	case "memory":
		store = server.NewMemoryStore()
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatalf("Error connecting to redis at %s: %v", cfg.RedisAddress, err)
		}
		store = server.NewRedisStore(client)
	default:
		logger.Fatalf("Unknown server store %q", cfg.ServerStore)
	}

	s := server.NewServer(ctx, store, logger)
	defer s.Close()

	httpServer := &http.Server{Addr: cfg.ServerAddress, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Error shutting down server: %v", err)
		}
	}()

	logger.Infof("Relay running on %s (store: %s)", cfg.ServerAddress, cfg.ServerStore)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Error starting server: %v", err)
	}

	logger.Info("Closing server...")
}
