package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/grocery-storefront/internal/config"
	"github.com/example/grocery-storefront/internal/email"
	"github.com/example/grocery-storefront/internal/infrastructure/kinesis"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/notification"
	"github.com/example/grocery-storefront/internal/readmodel"
	"go.uber.org/zap"
)

var (
	notifier *notification.Handler
	logger   *zap.Logger
)

// The projector lambda owns the read models; this one only reads accounts
// and orders from them.
func init() {
	cfg := config.Load()
	var err error
	logger, err = config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	logger = logger.Named("lambda-notifier")

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	db, err := store.ConnectPostgres(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}

	mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	notifier = notification.NewHandler(mailer, store.NewPostgresReadStore(db, readmodel.Factories()), logger)
	logger.Info("initialized", zap.String("smtp", cfg.SMTPHost+":"+cfg.SMTPPort))
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.ProcessBatch(ctx, batch, notifier.Apply, logger), nil
}

func main() {
	lambda.Start(handler)
}
