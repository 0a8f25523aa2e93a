package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/backend"
	"financeflow/internal/cli"
	"financeflow/internal/config"
	"financeflow/internal/notify"
	"financeflow/internal/scheduler"
	"financeflow/internal/services"
)

// recurring-worker runs the recurring trigger on its own, for deployments
// where the API servers run with TRIGGER_ENABLED=false. Events reach
// connected clients through the exchange.
func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger.Info("Starting recurring-worker")

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Recurring-worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Recurring-worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	opened, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer opened.Cleanup()

	var publisher notify.Publisher = notify.Discard
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, amqp.QueueOptions{})
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, expenses will be created without notifications", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - created expenses will not be announced")
	}

	expenses := services.NewExpenseService(opened.Store, publisher)
	processor := services.NewRecurringProcessor(opened.Store, expenses, publisher)

	trigger, err := scheduler.New("recurring", cfg.TriggerSchedule, func(ctx context.Context, at time.Time) error {
		res, err := processor.ProcessDue(ctx, at)
		if err != nil {
			return fmt.Errorf("process due templates: %w", err)
		}
		logger.Info("Recurring pass complete",
			"checked", res.Checked,
			"created", res.Created,
			"failed", res.Failed)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Recurring expense processor configured",
		"schedule", cfg.TriggerSchedule,
		"backend", cfg.DataBackend)
	return trigger.Run(ctx)
}
