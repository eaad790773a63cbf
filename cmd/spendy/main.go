package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Phyllis9783/spendy-map-joy/internal/amqp"
	"github.com/Phyllis9783/spendy-map-joy/internal/cache"
	"github.com/Phyllis9783/spendy-map-joy/internal/config"
	"github.com/Phyllis9783/spendy-map-joy/internal/core"
	apphttp "github.com/Phyllis9783/spendy-map-joy/internal/http"
	applog "github.com/Phyllis9783/spendy-map-joy/internal/log"
	"github.com/Phyllis9783/spendy-map-joy/internal/services"
	"github.com/Phyllis9783/spendy-map-joy/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	applog.SetDefault(logger)

	logger.Info("Starting spendy API server")

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Initialize SQLite repository
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Initialize AMQP client for change events and completion notifications.
	// The API keeps serving without it; the reconciler covers missed events.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExpenseQueue, cfg.AMQPCompletionQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - expense change events will not be published")
	}

	// Wire services. A nil *amqp.Client must become a nil interface.
	var publisher services.EventPublisher
	var notifier services.Notifier
	if amqpClient != nil {
		publisher = amqpClient
		notifier = amqpClient
	}

	catalogCache := cache.NewLRU[[]core.Challenge](8, 5*time.Minute)
	snapshotCache := cache.NewLRU[[]core.EnrolledChallenge](1024, 30*time.Second)
	cacheManager := cache.NewManager()
	cacheManager.Register(catalogCache)
	cacheManager.Register(snapshotCache)
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.StopCleanup()

	ledgerService := services.NewLedgerService(repo, publisher)
	challengeService := services.NewChallengeService(repo, catalogCache, snapshotCache)
	progressService := services.NewProgressService(repo, repo, notifier)

	srv := apphttp.NewServer(":"+cfg.Port, ledgerService, challengeService, progressService, cfg.MetricsUser, cfg.MetricsPass)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting spendy server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
