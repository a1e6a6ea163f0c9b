package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/grocery-storefront/internal/api"
	"github.com/example/grocery-storefront/internal/backend/httpclient"
	"github.com/example/grocery-storefront/internal/config"
	"github.com/example/grocery-storefront/internal/infrastructure/cache"
	"github.com/example/grocery-storefront/internal/session"
	"github.com/example/grocery-storefront/internal/storefront/cartstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.Named("storefront")

	client := httpclient.New(httpclient.Config{
		BaseURL:             cfg.BackendURL,
		Timeout:             cfg.BackendTimeout,
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
	}, logger)

	var snapshots cartstore.SnapshotCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, cart snapshots disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			snapshots = cache.NewRedisCache(rdb)
			logger.Info("cart snapshots cached in redis", zap.String("addr", cfg.RedisAddr))
		}
		pingCancel()
	}

	sessions := session.NewRegistry(client, snapshots, cfg.DeliveryFee, logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(api.NewHandlers(sessions, logger), logger),
	}

	go func() {
		logger.Info("server started",
			zap.String("addr", server.Addr),
			zap.String("backend", cfg.BackendURL),
			zap.String("delivery_fee", cfg.DeliveryFee.StringFixed(2)))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
