package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/grocery-storefront/internal/config"
	"github.com/example/grocery-storefront/internal/email"
	"github.com/example/grocery-storefront/internal/infrastructure/kafka"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/notification"
	"github.com/example/grocery-storefront/internal/projection"
	"github.com/example/grocery-storefront/internal/readmodel"
	"go.uber.org/zap"
)

// Dedicated consumer group for email notifications
const consumerGroup = "grocery-notifier"

func main() {
	cfg := config.Load()
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.Named("notifier")

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting email notifier",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", consumerGroup),
		zap.String("smtp", cfg.SMTPHost+":"+cfg.SMTPPort))

	mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)

	// With a database the backend keeps the read models current. Without one
	// the notifier projects accounts and orders itself before notifying.
	var handle kafka.MessageHandler
	if cfg.DatabaseURL != "" {
		db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()
		readStore := store.NewPostgresReadStore(db, readmodel.Factories())
		handle = notification.NewHandler(mailer, readStore, logger).HandleEvent
	} else {
		readStore := store.NewReadStore()
		projector := projection.NewProjector(readStore, logger)
		notifier := notification.NewHandler(mailer, readStore, logger)
		handle = func(ctx context.Context, key, value []byte) error {
			if err := projector.HandleEvent(ctx, key, value); err != nil {
				return err
			}
			return notifier.HandleEvent(ctx, key, value)
		}
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup, logger)
	defer consumer.Close()

	go func() {
		if err := consumer.Consume(ctx, handle); err != nil && ctx.Err() == nil {
			logger.Error("consumer error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
}
