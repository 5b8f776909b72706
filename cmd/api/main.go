// Package main is the entry point for the inbox API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/whatsapp-inbox/internal/agent"
	"github.com/capitalize-ai/whatsapp-inbox/internal/config"
	"github.com/capitalize-ai/whatsapp-inbox/internal/handler"
	"github.com/capitalize-ai/whatsapp-inbox/internal/llm"
	natsclient "github.com/capitalize-ai/whatsapp-inbox/internal/nats"
	"github.com/capitalize-ai/whatsapp-inbox/internal/schedule"
	"github.com/capitalize-ai/whatsapp-inbox/internal/service"
	"github.com/capitalize-ai/whatsapp-inbox/internal/store"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inbox: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting inbox API server", zap.String("store", cfg.StoreBackend))

	ctx := context.Background()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "whatsapp-inbox", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	agentCfg, err := agent.Load(cfg.AgentConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load agent config: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []service.Option{
		service.WithAgent(agentCfg),
		service.WithConfirmationTTL(cfg.ConfirmationTTL),
	}
	checks := map[string]handler.Pinger{}

	// Scheduled actions go to Redis when configured
	if cfg.RedisURL != "" {
		scheduler, err := schedule.NewRedisScheduler(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer scheduler.Close()
		opts = append(opts, service.WithScheduler(scheduler))
	} else {
		log.Warn("REDIS_URL not set, scheduled actions are kept in memory")
	}

	// Connect to NATS
	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			Name:     "whatsapp-inbox",
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		// Ensure JetStream stream exists
		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		opts = append(opts, service.WithNotifier(streamManager), service.WithEventLog(streamManager))
		checks["nats"] = natsClient
	}

	// Initialize LLM client
	if key := cfg.LLMKey(); key != "" {
		llmClient, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), key)
		if err != nil {
			log.Warn("failed to create LLM client, AI replies disabled", zap.Error(err))
		} else {
			if agentCfg.Model != "" && !slices.Contains(llmClient.Models(), agentCfg.Model) {
				log.Warn("agent model is not offered by the provider",
					zap.String("provider", llmClient.Name()),
					zap.String("model", agentCfg.Model),
				)
			}
			opts = append(opts, service.WithLLM(llmClient))
		}
	} else {
		log.Warn("no LLM API key configured, AI replies disabled", zap.String("provider", cfg.DefaultLLM))
	}

	controller := service.NewHandoffController(st, log, opts...)
	// Covers the store and the scheduler
	checks["store"] = controller

	router := handler.NewRouter(controller, log, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		Checks:            checks,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		st, err := store.NewPostgresStore(ctx, store.PostgresConfig{
			DSN:      cfg.DatabaseURL,
			MaxConns: cfg.DatabaseMaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	default:
		if cfg.DemoMode {
			return store.NewDemoStore(cfg.DemoTenantID, time.Now()), nil
		}
		return store.NewMemoryStore(), nil
	}
}
