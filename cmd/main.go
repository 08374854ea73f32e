/**
 * @description
 * This is the main entry point for the escrow service. It wires configuration,
 * the database pool, the Redis job lock, the notification producer, the
 * external gateway clients and the engines together, then runs the cron
 * scheduler alongside a small HTTP server for externally-triggered batch runs
 * and health checks.
 */
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/joseairosa/codesalvage-sub004/internal/api"
	"github.com/joseairosa/codesalvage-sub004/internal/app"
	"github.com/joseairosa/codesalvage-sub004/internal/config"
	"github.com/joseairosa/codesalvage-sub004/internal/store"
	"github.com/joseairosa/codesalvage-sub004/pkg/codehostclient"
	"github.com/joseairosa/codesalvage-sub004/pkg/paygateclient"
	"github.com/joseairosa/codesalvage-sub004/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Redis is optional: without it the jobs simply run without the
	// best-effort overlap lock.
	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	} else {
		logger.Warn("REDIS_URL not set, running without the job overlap lock")
	}

	// Notifications are best-effort, so a broker outage at startup downgrades
	// to the no-op producer instead of failing the service.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.NotificationExchange, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, notifications disabled", "error", err)
			producer = &rabbitmq.EventProducerFallback{Logger: logger}
		} else {
			producer = p
		}
	} else {
		logger.Warn("RABBITMQ_URL not set, notifications disabled")
		producer = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	defer producer.Close()

	// Initialize dependencies
	repository := store.NewPostgresRepository(dbpool)
	gateway := paygateclient.NewClient(cfg.PaymentAPIBaseURL, cfg.PaymentAPIKey)
	codeHost := codehostclient.NewClient(cfg.CodeHostAPIBaseURL, cfg.CodeHostAPIToken)
	jobLock := app.NewRedisJobLock(redisClient, "codesalvage:escrow:jobs")

	escrowEngine := app.NewEscrowEngine(repository, gateway, producer, logger, nil)
	transferEngine := app.NewTransferEngine(repository, codeHost, producer, logger, nil)
	jobs := app.NewJobs(repository, escrowEngine, transferEngine, jobLock, logger, cfg, nil)
	scheduler := app.NewScheduler(jobs, logger, cfg)

	// Start the cron scheduler in the background
	scheduler.Start()
	logger.Info("scheduler started")

	handlers := api.NewCronHandlers(jobs, logger)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: api.NewRouter(handlers, cfg.CronTriggerSecret),
	}

	go func() {
		logger.Info("http server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for in-flight jobs to finish
	logger.Info("scheduler stopped gracefully")
}
