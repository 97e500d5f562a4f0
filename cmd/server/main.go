package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/highscore-api/internal/config"
	"github.com/highscore-api/internal/domain"
	"github.com/highscore-api/internal/handler"
	"github.com/highscore-api/internal/kafka"
	"github.com/highscore-api/internal/postgres"
	"github.com/highscore-api/internal/redis"
	"github.com/highscore-api/internal/service"
	"github.com/highscore-api/internal/websocket"
	"github.com/highscore-api/internal/worker"
)

func toDomainLimits(l config.LimitsConfig) domain.Limits {
	return domain.Limits{
		MaxPlayerNameLength:  l.MaxPlayerNameLength,
		MaxGameNameLength:    l.MaxGameNameLength,
		MaxDescriptionLength: l.MaxDescriptionLength,
		MaxScoreValue:        l.MaxScoreValue,
		MaxMetadataBytes:     l.MaxMetadataBytes,
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	cache, err := redis.NewCache(&cfg.Redis, cfg.Leaderboard.CacheTTL, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("connected to Redis")

	// Initialize service
	limits := cfg.Limits
	svc, err := service.New(repo, cache, &cfg.Leaderboard, toDomainLimits(limits), logger)
	if err != nil {
		logger.Error("failed to initialize service", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	svc.SetBroadcaster(wsHub)
	logger.Info("WebSocket hub initialized")

	// Initialize cache refresher
	refresher := worker.NewRefresher(svc, &cfg.Worker, logger)
	if cfg.Worker.Enabled {
		if err := refresher.Start(ctx); err != nil {
			logger.Error("failed to start cache refresher", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-volume score ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, svc, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started")
		}
	}

	// Initialize HTTP handler
	var limiter handler.Limiter
	if cfg.RateLimit.Enabled {
		limiter = cache
	}
	httpHandler := handler.NewHandler(svc, wsHub, limiter, cfg, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	wsHub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := refresher.Stop(); err != nil {
		logger.Error("failed to stop cache refresher", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
