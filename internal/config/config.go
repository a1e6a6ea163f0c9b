// Package config reads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	Port     string
	LogLevel string

	// Storefront
	BackendURL         string
	BackendTimeout     time.Duration
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	DeliveryFee        decimal.Decimal
	RedisAddr          string

	// Backend
	BackendPort          string
	EventStore           string
	DatabaseURL          string
	DynamoDBTable        string
	DynamoDBSnapshots    string
	DynamoDBEndpoint     string
	AWSRegion            string
	KafkaBrokers         []string
	KafkaTopic           string
	KafkaGroupID         string
	DeliverySlots        []string
	SharedCartCloseDelay time.Duration

	// Notifier
	SMTPHost string
	SMTPPort string
	SMTPFrom string
}

var defaultDeliveryFee = decimal.NewFromInt(33)

func Load() Config {
	return Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8081"),
		BackendTimeout:     parseDuration(getEnv("BACKEND_TIMEOUT", "10s"), 10*time.Second),
		BreakerFailures:    uint32(parseInt(getEnv("BREAKER_FAILURES", "5"), 5)),
		BreakerOpenTimeout: parseDuration(getEnv("BREAKER_OPEN_TIMEOUT", "30s"), 30*time.Second),
		DeliveryFee:        parseDecimal(getEnv("DELIVERY_FEE", "33"), defaultDeliveryFee),
		RedisAddr:          getEnv("REDIS_ADDR", ""),

		BackendPort:          getEnv("BACKEND_PORT", "8081"),
		EventStore:           strings.ToLower(getEnv("EVENT_STORE", "")),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		DynamoDBTable:        getEnv("DYNAMODB_TABLE", "grocery-events"),
		DynamoDBSnapshots:    getEnv("DYNAMODB_SNAPSHOT_TABLE", "grocery-snapshots"),
		DynamoDBEndpoint:     getEnv("DYNAMODB_ENDPOINT", ""),
		AWSRegion:            getEnv("AWS_REGION", "ap-northeast-1"),
		KafkaBrokers:         splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "grocery-events"),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "grocery-projector"),
		DeliverySlots:        splitCSV(getEnv("DELIVERY_SLOTS", "9am,12pm,6pm")),
		SharedCartCloseDelay: parseDuration(getEnv("SHARED_CART_CLOSE_DELAY", "0s"), 0),

		SMTPHost: getEnv("SMTP_HOST", "localhost"),
		SMTPPort: getEnv("SMTP_PORT", "1025"),
		SMTPFrom: getEnv("SMTP_FROM", "noreply@grocery.local"),
	}
}

// NewLogger builds a development logger for LOG_LEVEL=debug and a production
// logger otherwise.
func NewLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}

// EventStoreBackend resolves which event store to use. EVENT_STORE wins;
// otherwise a DATABASE_URL selects postgres and the default is memory.
func (c Config) EventStoreBackend() string {
	switch c.EventStore {
	case "memory", "postgres", "dynamodb":
		return c.EventStore
	}
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "memory"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); strings.TrimSpace(value) != "" {
		return value
	}
	return defaultValue
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func parseInt(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseDecimal(v string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
