package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"financeflow/internal/ai"
	"financeflow/internal/amqp"
	"financeflow/internal/auth"
	"financeflow/internal/backend"
	"financeflow/internal/cache"
	"financeflow/internal/cli"
	"financeflow/internal/config"
	apphttp "financeflow/internal/http"
	applog "financeflow/internal/log"
	"financeflow/internal/middleware/ratelimit"
	"financeflow/internal/middleware/security"
	"financeflow/internal/notify"
	"financeflow/internal/scheduler"
	"financeflow/internal/services"
)

const (
	shutdownTimeout    = 30 * time.Second
	cacheCleanInterval = 10 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig((*config.Config).RequireAuth)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
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
	defer func() {
		if err := opened.Cleanup(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()
	store := opened.Store

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("configure tokens: %w", err)
	}

	hub := notify.NewHub(cfg.NotifySendBuffer)

	// With a broker, events fan out to every server instance through the
	// exchange; without one, they go straight to this process's hub.
	var (
		publisher notify.Publisher = hub
		bridge    *amqp.Bridge
	)
	if cfg.AMQPURL != "" {
		queue := amqp.QueueOptions{Name: fmt.Sprintf("%s.%s", cfg.AMQPQueue, uuid.NewString())}
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, queue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, delivering events locally", "error", err)
		} else {
			defer client.Close()
			bridge = amqp.NewBridge(client, hub)
			publisher = bridge
			logger.Info("AMQP bridge enabled", "exchange", cfg.AMQPExchange, "queue", queue.Name)
		}
	}

	expenses := services.NewExpenseService(store, publisher)
	recurring := services.NewRecurringService(store)
	processor := services.NewRecurringProcessor(store, expenses, publisher)

	caches := cache.NewManager()
	var categorizer *ai.Categorizer
	if cfg.GroqAPIKey != "" {
		predictions := cache.NewLRU[ai.Prediction](cfg.AICacheSize, cfg.AICacheTTL)
		caches.Register("ai_predictions", predictions)
		categorizer = ai.New(cfg.GroqAPIKey, cfg.AIBaseURL, cfg.AIModel, predictions)
		logger.Info("AI categorizer enabled", "model", cfg.AIModel)
	} else {
		logger.Info("GROQ_API_KEY not set, categorization falls back to Other")
	}

	notifyHandler := notify.NewHandler(hub, tokens, notify.HandlerConfig{
		AllowedOrigin: cfg.ClientOrigin,
		PollTimeout:   cfg.PollTimeout,
		SessionTTL:    cfg.PollSessionTTL,
	})

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:        store,
		Auth:         auth.NewService(store, tokens),
		Tokens:       tokens,
		Expenses:     expenses,
		Recurring:    recurring,
		Categorizer:  categorizer,
		Hub:          hub,
		Notify:       notifyHandler,
		Limiter:      limiter,
		Detector:     security.NewDetector(),
		ClientOrigin: cfg.ClientOrigin,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting financeflow server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"client_origin", cfg.ClientOrigin)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.TriggerEnabled {
		trigger, err := scheduler.New("recurring", cfg.TriggerSchedule, func(ctx context.Context, at time.Time) error {
			res, err := processor.ProcessDue(ctx, at)
			if err != nil {
				return err
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
		g.Go(func() error { return trigger.Run(gctx) })
	} else {
		logger.Info("Recurring trigger disabled")
	}

	if bridge != nil {
		g.Go(func() error {
			if err := bridge.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("amqp bridge: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error { return notifyHandler.RunJanitor(gctx) })
	g.Go(func() error { return caches.Run(gctx, cacheCleanInterval) })
	g.Go(func() error { return limiter.Run(gctx) })

	return g.Wait()
}
