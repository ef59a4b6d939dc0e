package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	awspkg "github.com/yashrajoria/stock-ledger/pkg/aws"
	ddbpkg "github.com/yashrajoria/stock-ledger/pkg/dynamodb"
	"github.com/yashrajoria/stock-ledger/services/common/auth"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/common/logger"
	commonmw "github.com/yashrajoria/stock-ledger/services/common/middleware"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/consumer"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/controllers"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/database"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/events"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/middleware"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/routes"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/services"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const serviceName = "inventory-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- AWS / CloudWatch ---
	awsCfg, awsErr := awspkg.LoadAWSConfig(ctx)

	var sink io.Writer
	var metricsClient *awspkg.MetricsClient
	if awsErr == nil {
		if cw, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, serviceName); err == nil && cw.IsEnabled() {
			sink = cw
		} else if err != nil {
			log.Printf("CloudWatch logs client init failed (non-fatal): %v", err)
		}
		metricsClient = awspkg.NewMetricsClient(awsCfg)
	}

	zlog, err := logger.New(cfg.Env, sink)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if awsErr != nil {
		zlog.Warn("AWS config unavailable, CloudWatch/SNS/SQS/DynamoDB disabled", zap.Error(awsErr))
	}

	// --- Storage ---
	var db *gorm.DB
	if cfg.StorageBackend != StorageMemory {
		db, err = database.ConnectPostgres(ctx, zlog, cfg.Postgres)
		if err != nil {
			zlog.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer database.Close(db) //nolint:errcheck
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zlog.Warn("Redis unavailable, running without cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	store, warehouseRepo, settingsRepo := buildStorage(ctx, cfg, db, redisClient, awsCfg, awsErr, zlog)

	// --- Events ---
	publisher := buildPublisher(cfg, awsCfg, awsErr, zlog)
	defer publisher.Close() //nolint:errcheck

	// --- Service wiring ---
	warehouseService := services.NewWarehouseService(warehouseRepo, zlog)
	lowStock := services.NewLowStockReporter(store, settingsRepo, cfg.LowStockFallback, metricsClient, zlog)
	notifier := services.NewNotifier(publisher, lowStock, metricsClient, zlog)
	ledger := services.NewStockLedger(store, warehouseService, notifier, metricsClient, zlog)
	transfers := services.NewTransferOrchestrator(store, warehouseService, notifier, metricsClient, zlog)

	inventoryController := controllers.NewInventoryController(ledger, transfers, lowStock)
	warehouseController := controllers.NewWarehouseController(warehouseService)

	// --- Async command intake ---
	var wg sync.WaitGroup
	if cfg.CommandsQueueURL != "" || cfg.CommandsQueueName != "" {
		if awsErr != nil {
			zlog.Fatal("Command queue configured but AWS config failed", zap.Error(awsErr))
		}
		if cfg.CommandsQueueURL == "" {
			url, err := awspkg.GetQueueURL(ctx, sqs.NewFromConfig(awsCfg), cfg.CommandsQueueName)
			if err != nil {
				zlog.Fatal("Failed to resolve command queue", zap.String("queue", cfg.CommandsQueueName), zap.Error(err))
			}
			cfg.CommandsQueueURL = url
		}
		var claims consumer.IdempotencyStore = consumer.NewMemoryIdempotencyStore(cfg.CommandDedupeTTL)
		if redisClient != nil {
			claims = consumer.NewRedisIdempotencyStore(redisClient, cfg.CommandDedupeTTL)
		}
		sqsConsumer := awspkg.NewSQSConsumer(awsCfg, cfg.CommandsQueueURL, zlog)
		commands := consumer.NewStockCommandConsumer(sqsConsumer, ledger, transfers, claims, metricsClient, zlog)
		wg.Add(1)
		go func() {
			defer wg.Done()
			commands.Start(ctx)
		}()
	}

	// --- HTTP router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORS(cfg.AllowedOrigins))
	r.Use(commonmw.RequestLogger(zlog))
	if metricsClient.IsEnabled() {
		r.Use(commonmw.MetricsMiddleware(metricsClient, serviceName))
	}
	r.Use(commonmw.Timeout(cfg.RequestTimeout))
	r.Use(apperrors.ErrorMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName, "storage": cfg.StorageBackend})
	})

	limiter := commonmw.NewRateLimiter(ctx, rate.Limit(cfg.RateLimit), cfg.RateBurst, 10*time.Minute)
	routes.RegisterRoutes(r, inventoryController, warehouseController,
		middleware.AuthMiddleware(auth.NewVerifier(cfg.JWTSecret)),
		commonmw.RateLimitMiddleware(limiter))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		zlog.Info("Inventory Service starting",
			zap.String("port", cfg.Port),
			zap.String("storage", cfg.StorageBackend),
			zap.String("events", cfg.EventsBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	zlog.Info("Shutting down Inventory Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	wg.Wait()

	zlog.Info("Inventory Service stopped gracefully")
}

func buildStorage(ctx context.Context, cfg *Config, db *gorm.DB, redisClient *redis.Client, awsCfg aws.Config, awsErr error, zlog *zap.Logger) (repository.StockStore, repository.WarehouseRepository, repository.SettingsRepository) {
	if cfg.StorageBackend == StorageMemory {
		zlog.Warn("Using in-memory storage; data is lost on restart")
		return repository.NewMemoryStockStore(),
			repository.NewMemoryWarehouseRepository(),
			repository.NewStaticSettingsRepository(nil)
	}

	var settings repository.SettingsRepository = repository.NewGormSettingsRepository(db)
	if redisClient != nil {
		settings = repository.NewCachedSettingsRepository(settings, redisClient, cfg.SettingsCacheTTL, zlog)
	}
	warehouses := repository.NewGormWarehouseRepository(db)

	if cfg.StorageBackend == StorageDynamoDB {
		if awsErr != nil {
			zlog.Fatal("STORAGE_BACKEND=dynamodb requires AWS config", zap.Error(awsErr))
		}
		client := ddbpkg.NewClientFromConfig(awsCfg)
		if cfg.DDBEnsureTables {
			if err := ddbpkg.EnsureTable(ctx, client, cfg.DDBStockTable, repository.StockKeyAttr); err != nil {
				zlog.Fatal("Failed to ensure stock table", zap.Error(err))
			}
			if err := ddbpkg.EnsureTable(ctx, client, cfg.DDBMovementsTable, repository.MovementKeyAttr); err != nil {
				zlog.Fatal("Failed to ensure movements table", zap.Error(err))
			}
		}
		return repository.NewDynamoStockStore(client, cfg.DDBStockTable, cfg.DDBMovementsTable), warehouses, settings
	}

	return repository.NewGormStockStore(db), warehouses, settings
}

func buildPublisher(cfg *Config, awsCfg aws.Config, awsErr error, zlog *zap.Logger) events.Publisher {
	switch cfg.EventsBackend {
	case EventsSNS:
		if awsErr != nil {
			zlog.Warn("SNS events disabled: AWS config unavailable", zap.Error(awsErr))
			return events.NopPublisher{}
		}
		return events.NewSNSPublisher(awspkg.NewSNSClient(awsCfg), cfg.SNSTopicARN)
	case EventsKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		zlog.Info("Inventory events disabled", zap.Strings("types", []string{models.EventStockMoved, models.EventLowStock}))
		return events.NopPublisher{}
	}
}
