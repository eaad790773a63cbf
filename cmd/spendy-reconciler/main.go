package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Phyllis9783/spendy-map-joy/internal/amqp"
	"github.com/Phyllis9783/spendy-map-joy/internal/config"
	applog "github.com/Phyllis9783/spendy-map-joy/internal/log"
	"github.com/Phyllis9783/spendy-map-joy/internal/services"
	"github.com/Phyllis9783/spendy-map-joy/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentReconciler)
	applog.SetDefault(logger)

	logger.Info("Starting spendy-reconciler")

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

	// Initialize AMQP client for completion notifications. The reconciler
	// keeps sweeping without it; completions are recomputed, not announced.
	var notifier services.Notifier
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExpenseQueue, cfg.AMQPCompletionQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		} else {
			defer amqpClient.Close()
			notifier = amqpClient
		}
	} else {
		logger.Info("AMQP disabled - completion notifications will not be published")
	}

	progressService := services.NewProgressService(repo, repo, notifier)

	reconciler := services.NewReconciler(repo, progressService, services.ReconcilerConfig{
		Interval:  cfg.ReconcileInterval,
		BatchSize: cfg.ReconcileBatchSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconciler", "error", err)
		os.Exit(1)
	}
	logger.Info("Reconciler running",
		"interval", cfg.ReconcileInterval,
		"batch_size", cfg.ReconcileBatchSize)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := reconciler.Stop(shutdownCtx); err != nil {
		logger.Error("Reconciler shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("Reconciler stopped gracefully")
}
