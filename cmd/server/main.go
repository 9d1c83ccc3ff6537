// Webhook ingestion service for the booking system. Receives payment
// state-change callbacks from the payment gateway, marks bookings paid,
// and sends chat confirmations through a single-worker in-process retry
// queue so events for the same booking never interleave.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/TechLoui/Vagafogo-sub000/internal/api"
	"github.com/TechLoui/Vagafogo-sub000/internal/audit"
	"github.com/TechLoui/Vagafogo-sub000/internal/clock"
	"github.com/TechLoui/Vagafogo-sub000/internal/config"
	"github.com/TechLoui/Vagafogo-sub000/internal/dedup"
	"github.com/TechLoui/Vagafogo-sub000/internal/notify"
	"github.com/TechLoui/Vagafogo-sub000/internal/observability"
	"github.com/TechLoui/Vagafogo-sub000/internal/queue"
	"github.com/TechLoui/Vagafogo-sub000/internal/repository/postgres"
	"github.com/TechLoui/Vagafogo-sub000/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Database connection
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = cfg.Database.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if err := postgres.Bootstrap(ctx, pool); err != nil {
		logger.Error("failed to bootstrap schema", "error", err)
		os.Exit(1)
	}

	bookingRepo := postgres.NewBookingRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)

	metrics := observability.NewMetrics("vagafogo")

	// Messaging gateway
	notifierConfig := notify.DefaultConfig()
	notifierConfig.BaseURL = cfg.Notifier.BaseURL
	notifierConfig.APIKey = cfg.Notifier.APIKey
	notifierConfig.Instance = cfg.Notifier.Instance
	notifierConfig.CountryCode = cfg.Notifier.CountryCode

	gateway := notify.NewGateway(notifierConfig, nil, logger)
	if cfg.Notifier.BaseURL == "" {
		logger.Warn("NOTIFIER_URL not set, confirmations will be skipped")
	}

	processor := webhook.NewProcessor(bookingRepo, settingsRepo, gateway, clock.RealClock{}, logger).
		WithMetrics(metrics)

	// Redelivery guard (optional, redis-backed)
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to parse REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opt)

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not available, redelivery guard disabled", "error", err)
			redisClient = nil
		} else {
			logger.Info("connected to redis")
			processor.WithDedupGuard(dedup.NewRedisGuard(redisClient, 0))
		}
	}

	// Audit publisher (optional, kafka-backed)
	var auditor *audit.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisherConfig := audit.DefaultPublisherConfig()
		publisherConfig.Brokers = cfg.Kafka.Brokers
		publisherConfig.Topic = cfg.Kafka.Topic

		auditor = audit.NewPublisher(publisherConfig, logger)
		processor.WithAuditor(auditor)
		logger.Info("audit publisher enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// Task queue
	queueConfig := queue.Config{
		MaxRetries: cfg.Webhook.MaxRetries,
		RetryDelay: cfg.Webhook.RetryDelay,
	}
	taskQueue := queue.New(queueConfig, processor, clock.RealClock{}, logger).
		WithMetrics(metrics)
	if auditor != nil {
		taskQueue.WithAuditor(auditor)
	}

	// HTTP server
	handler := api.NewHandler(taskQueue, cfg.Webhook.AccessToken, logger).
		WithMetrics(metrics)

	healthHandler := observability.NewHealthHandler(pool).WithQueue(taskQueue)
	router := api.NewRouter(api.RouterConfig{
		Handler:       handler,
		HealthHandler: healthHandler,
		Metrics:       metrics,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr,
			"max_retries", cfg.Webhook.MaxRetries,
			"retry_delay", cfg.Webhook.RetryDelay,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()
	healthHandler.SetReady(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	taskQueue.Stop()

	if auditor != nil {
		if err := auditor.Close(); err != nil {
			logger.Error("audit publisher close error", "error", err)
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("shutdown complete")
}
