package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"financeflow/internal/amqp"
	"financeflow/internal/backend"
	"financeflow/internal/cli"
	"financeflow/internal/config"
	gsheet "financeflow/internal/sheets/google"
	"financeflow/internal/storage"
	"financeflow/internal/worker"
)

// financeflow-worker mirrors expense events from the exchange to a Google
// spreadsheet. Its queue is durable so events published while it is down
// are synced when it comes back.
func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(
		(*config.Config).RequireAMQP,
		(*config.Config).RequireSheets,
	)
	logger.Info("Starting financeflow-worker")

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sheets, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return err
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Warn("Failed to write sheet header", "error", err)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	// The store lets the worker skip expenses deleted before they were
	// synced. The in-memory backend is private to another process, so it is
	// not opened here.
	var store storage.ExpenseStore
	if cfg.DataBackend != config.BackendMemory {
		backendCfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			return err
		}
		opened, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
		if err != nil {
			logger.Warn("Storage unavailable, mirroring event payloads as received", "error", err)
		} else {
			defer opened.Cleanup()
			store = opened.Store
		}
	}

	queue := amqp.QueueOptions{Name: cfg.AMQPExchange + ".sheets", Durable: true}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, queue)
	if err != nil {
		return err
	}
	defer client.Close()

	syncWorker := worker.NewSyncWorker(store, sheets)
	logger.Info("Consuming expense events", "exchange", cfg.AMQPExchange, "queue", queue.Name)
	return client.ConsumeEvents(ctx, syncWorker.HandleEvent)
}
