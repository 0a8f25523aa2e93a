// Package cli provides the start-up steps shared by every binary under cmd/.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"financeflow/internal/config"
	applog "financeflow/internal/log"
)

// SetupLogger installs the default slog logger for the given level and
// format ("text" or "json").
func SetupLogger(level, format string) *slog.Logger {
	logger := applog.New(applog.Config{Level: level, Format: format, Output: os.Stdout})
	slog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Check is an extra validation a binary needs beyond config.Validate.
type Check func(*config.Config) error

// LoadAndValidateConfig loads the configuration, reconfigures the logger
// from it and exits the process when any check fails.
func LoadAndValidateConfig(checks ...Check) (*config.Config, *slog.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := validate(cfg, checks...); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

func validate(cfg *config.Config, checks ...Check) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// cancellation cause names the signal.
func SignalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel(fmt.Errorf("received %s", sig))
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}
