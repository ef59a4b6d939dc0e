package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	aws_pkg "github.com/yashrajoria/stock-ledger/pkg/aws"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/database"
)

const (
	StoragePostgres = "postgres"
	StorageDynamoDB = "dynamodb"
	StorageMemory   = "memory"

	EventsSNS   = "sns"
	EventsKafka = "kafka"
	EventsNone  = "none"
)

// Config holds all configuration for the inventory-service.
type Config struct {
	Port           string
	Env            string
	JWTSecret      string
	RequestTimeout time.Duration

	StorageBackend string
	Postgres       database.PostgresConfig
	// DynamoDB holds stock rows and movements only; warehouses and
	// settings stay in Postgres.
	DDBStockTable     string
	DDBMovementsTable string
	DDBEnsureTables   bool

	RedisURL         string
	SettingsCacheTTL time.Duration
	LowStockFallback int64

	EventsBackend string
	SNSTopicARN   string
	KafkaBrokers  []string
	KafkaTopic    string

	CommandsQueueURL  string
	CommandsQueueName string
	CommandDedupeTTL  time.Duration

	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
}

// LoadConfig reads configuration from the environment (and .env when
// present) with an optional Secrets Manager override.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8084"),
		Env:            getEnv("APP_ENV", "development"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StoragePostgres)),
		Postgres: database.PostgresConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		DDBStockTable:     getEnv("DDB_TABLE_STOCK", "InventoryStock"),
		DDBMovementsTable: getEnv("DDB_TABLE_MOVEMENTS", "InventoryMovements"),
		DDBEnsureTables:   os.Getenv("DDB_ENSURE_TABLES") == "true",
		RedisURL:          os.Getenv("REDIS_URL"),
		EventsBackend:     strings.ToLower(getEnv("EVENTS_BACKEND", EventsNone)),
		SNSTopicARN:       os.Getenv("INVENTORY_SNS_TOPIC_ARN"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        getEnv("KAFKA_TOPIC_INVENTORY", "inventory-events"),
		CommandsQueueURL:  os.Getenv("INVENTORY_COMMANDS_QUEUE_URL"),
		CommandsQueueName: os.Getenv("INVENTORY_COMMANDS_QUEUE_NAME"),
		AllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SettingsCacheTTL, err = getDuration("SETTINGS_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CommandDedupeTTL, err = getDuration("COMMAND_DEDUPE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LowStockFallback, err = strconv.ParseInt(getEnv("LOW_STOCK_FALLBACK", "10"), 10, 64); err != nil || cfg.LowStockFallback < 0 {
		return nil, fmt.Errorf("LOW_STOCK_FALLBACK must be a non-negative integer")
	}
	if cfg.RateLimit, err = strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "50"), 64); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateBurst, err = strconv.Atoi(getEnv("RATE_LIMIT_BURST", "100")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
	}

	// Override DB credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			sm := aws_pkg.NewSecretsClient(awsCfg)
			if m, err := sm.GetSecretMap(context.Background(), "inventory/DB_CREDENTIALS"); err == nil {
				override(&cfg.Postgres.User, m["POSTGRES_USER"])
				override(&cfg.Postgres.Password, m["POSTGRES_PASSWORD"])
				override(&cfg.Postgres.DBName, m["POSTGRES_DB"])
				override(&cfg.Postgres.Host, m["POSTGRES_HOST"])
				override(&cfg.Postgres.Port, m["POSTGRES_PORT"])
			}
			if jwt, err := sm.GetSecret(context.Background(), "inventory/JWT_SECRET"); err == nil {
				override(&cfg.JWTSecret, jwt)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the selected backends need.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StoragePostgres, StorageDynamoDB:
		p := c.Postgres
		if p.User == "" || p.Password == "" || p.DBName == "" || p.Host == "" {
			return fmt.Errorf("database config incomplete")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.EventsBackend {
	case EventsSNS:
		if c.SNSTopicARN == "" {
			return fmt.Errorf("INVENTORY_SNS_TOPIC_ARN is required when EVENTS_BACKEND=sns")
		}
	case EventsKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_BACKEND=kafka")
		}
	case EventsNone, "":
	default:
		return fmt.Errorf("unknown EVENTS_BACKEND %q", c.EventsBackend)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
