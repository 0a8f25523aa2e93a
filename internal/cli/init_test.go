package cli

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"financeflow/internal/config"
)

func TestValidateRunsChecks(t *testing.T) {
	cfg := &config.Config{
		Port:             "3000",
		DataBackend:      config.BackendMemory,
		TokenTTL:         time.Hour,
		AICacheSize:      1,
		NotifySendBuffer: 16,
		PollTimeout:      25 * time.Second,
		PollSessionTTL:   time.Minute,
		LogLevel:         "info",
		LogFormat:        "text",
	}

	if err := validate(cfg); err != nil {
		t.Fatalf("validate() error = %v", err)
	}

	err := validate(cfg, (*config.Config).RequireAuth)
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Errorf("validate() error = %v, want JWT_SECRET failure", err)
	}

	called := false
	custom := func(*config.Config) error {
		called = true
		return errors.New("custom")
	}
	cfg.Port = "bad"
	if err := validate(cfg, custom); err == nil {
		t.Error("validate() should fail on an invalid port")
	}
	if called {
		t.Error("checks should not run when base validation fails")
	}
}

func TestSetupLoggerSetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger("debug", "json")
	if slog.Default() != logger {
		t.Error("SetupLogger should install the logger as default")
	}
	if !logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext(slog.Default())
	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}
