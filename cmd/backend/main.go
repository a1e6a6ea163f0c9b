package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/grocery-storefront/internal/backendapi"
	"github.com/example/grocery-storefront/internal/command"
	"github.com/example/grocery-storefront/internal/config"
	"github.com/example/grocery-storefront/internal/infrastructure/kafka"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/projection"
	"github.com/example/grocery-storefront/internal/query"
	"github.com/example/grocery-storefront/internal/readmodel"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.Named("backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := cfg.EventStoreBackend()
	if backend == "postgres" && cfg.DatabaseURL == "" {
		logger.Fatal("EVENT_STORE=postgres requires DATABASE_URL")
	}

	// Read side
	var db *sql.DB
	var readStore store.ReadStoreInterface = store.NewReadStore()
	if cfg.DatabaseURL != "" {
		db, err = store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()
		if err := store.RunMigrations(db, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		readStore = store.NewPostgresReadStore(db, readmodel.Factories())
		logger.Info("using PostgreSQL read store")
	} else {
		logger.Info("using in-memory read store")
	}
	projector := projection.NewProjector(readStore, logger)

	// Projection runs through Kafka when brokers are configured and
	// synchronously on append otherwise. DynamoDB with a shared read store
	// leaves projection to the Kinesis lambdas.
	var publisher store.Publisher = projector.Publisher()
	var consumer *kafka.Consumer
	switch {
	case len(cfg.KafkaBrokers) > 0:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer producer.Close()
		publisher = kafka.BestEffort(producer, logger)
		consumer = kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
		defer consumer.Close()
		logger.Info("projecting through Kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
			zap.String("group", cfg.KafkaGroupID))
	case backend == "dynamodb" && db != nil:
		publisher = nil
		logger.Info("projecting through the DynamoDB Kinesis stream")
	}

	var eventStore store.EventStoreInterface
	switch backend {
	case "dynamodb":
		client, err := newDynamoClient(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to configure DynamoDB", zap.Error(err))
		}
		eventStore = store.NewDynamoEventStore(client, cfg.DynamoDBTable, cfg.DynamoDBSnapshots, publisher)
		logger.Info("using DynamoDB event store",
			zap.String("table", cfg.DynamoDBTable),
			zap.String("region", cfg.AWSRegion))
	case "postgres":
		eventStore = store.NewPostgresEventStore(db, publisher)
		logger.Info("using PostgreSQL event store")
	default:
		eventStore = store.NewEventStore(publisher)
		logger.Info("using in-memory event store")
	}

	n, err := projector.Replay(ctx, eventStore)
	if err != nil {
		logger.Fatal("failed to replay events", zap.Error(err))
	}
	logger.Info("read models rebuilt", zap.Int("events", n))

	var wg sync.WaitGroup
	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
				logger.Error("projector consumer stopped", zap.Error(err))
			}
		}()
	}

	// Write side
	scheduler := command.NewTimerScheduler()
	defer scheduler.Stop()
	svcs := command.NewServices(eventStore, logger)
	cmdHandler := command.NewHandler(svcs, readStore, scheduler, command.Config{
		DeliveryFee: cfg.DeliveryFee,
		Slots:       cfg.DeliverySlots,
		CloseDelay:  cfg.SharedCartCloseDelay,
	}, logger)
	queryHandler := query.NewHandler(readStore, svcs.Carts, svcs.Wallets, cfg.DeliverySlots, logger)

	resumed, err := cmdHandler.ResumeScheduled(ctx)
	if err != nil {
		logger.Error("failed to resume shared cart closes", zap.Error(err))
	}
	logger.Info("shared cart closes resumed", zap.Int("count", resumed))

	server := &http.Server{
		Addr:    ":" + cfg.BackendPort,
		Handler: backendapi.NewRouter(backendapi.NewHandlers(cmdHandler, queryHandler, logger), logger),
	}

	go func() {
		logger.Info("server started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	cancel()
	wg.Wait()
}

// newDynamoClient honours DYNAMODB_ENDPOINT so DynamoDB Local can stand in.
func newDynamoClient(ctx context.Context, cfg config.Config) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}
