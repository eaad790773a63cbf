package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Phyllis9783/spendy-map-joy/internal/amqp"
	"github.com/Phyllis9783/spendy-map-joy/internal/config"
	"github.com/Phyllis9783/spendy-map-joy/internal/core"
	applog "github.com/Phyllis9783/spendy-map-joy/internal/log"
	"github.com/Phyllis9783/spendy-map-joy/internal/services"
	"github.com/Phyllis9783/spendy-map-joy/internal/sheets"
	gsheet "github.com/Phyllis9783/spendy-map-joy/internal/sheets/google"
	"github.com/Phyllis9783/spendy-map-joy/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting spendy-worker")

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

	// Initialize Google Sheets backup client (optional)
	var backup sheets.EntryWriter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Options{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleSheetName,
			ClientJSON:    cfg.GoogleOAuthClientJSON,
			ClientFile:    cfg.GoogleOAuthClientFile,
			TokenJSON:     cfg.GoogleOAuthTokenJSON,
			TokenFile:     cfg.GoogleOAuthTokenFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		backup = client
		logger.Info("Google Sheets backup enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets backup disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	// Initialize AMQP client for consuming expense change events and
	// publishing completion notifications
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExpenseQueue, cfg.AMQPCompletionQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	progressService := services.NewProgressService(repo, repo, amqpClient)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(msg *amqp.ExpenseChangedMessage) error {
		logger.Info("Processing expense change event",
			"user_id", msg.UserID, "expense_id", msg.ExpenseID, "op", msg.Op)

		// Full recompute for the user; every op changes derived progress
		progressService.TrackAll(ctx, msg.UserID)

		if backup != nil && msg.Op == "created" {
			backupEntry(ctx, repo, backup, msg)
		}

		return nil
	}

	go func() {
		if err := amqpClient.ConsumeExpenseChanged(ctx, handler); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Give the in-flight handler time to finish
	logger.Info("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(5 * time.Second):
		logger.Info("Worker shutdown complete")
	}
}

// backupEntry appends a newly created expense to the backup spreadsheet.
// Failures are logged only; the sheet is a secondary copy, never the source
// of truth.
func backupEntry(ctx context.Context, repo *storage.SQLiteRepository, backup sheets.EntryWriter, msg *amqp.ExpenseChangedMessage) {
	entry, err := repo.GetEntry(ctx, msg.UserID, msg.ExpenseID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// deleted before the event was consumed
			return
		}
		slog.ErrorContext(ctx, "Failed to load expense for backup",
			"user_id", msg.UserID, "expense_id", msg.ExpenseID, "error", err)
		return
	}

	rowRef, err := backup.Append(ctx, entry)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to append expense to backup sheet",
			"expense_id", msg.ExpenseID, "error", err)
		return
	}

	slog.InfoContext(ctx, "Expense backed up to sheet",
		"expense_id", msg.ExpenseID, "row_ref", rowRef)
}
