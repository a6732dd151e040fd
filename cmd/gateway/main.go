// Package main is the entry point for the chat gateway server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brightline-ai/agent-gateway/internal/agent"
	"github.com/brightline-ai/agent-gateway/internal/config"
	"github.com/brightline-ai/agent-gateway/internal/handler"
	"github.com/brightline-ai/agent-gateway/internal/llm"
	"github.com/brightline-ai/agent-gateway/internal/middleware"
	natsclient "github.com/brightline-ai/agent-gateway/internal/nats"
	"github.com/brightline-ai/agent-gateway/internal/registry"
	"github.com/brightline-ai/agent-gateway/internal/session"
	"github.com/brightline-ai/agent-gateway/internal/transport/assistants"
	"github.com/brightline-ai/agent-gateway/internal/transport/local"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
	"github.com/brightline-ai/agent-gateway/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat gateway")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "agent-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS when configured; without it the gateway still works
	// but thread mappings do not survive a restart.
	var nc *natsclient.Client
	var store registry.ThreadStore = registry.NewMemoryStore()
	var transcript session.Transcript
	if cfg.NATSURL != "" {
		nc, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer nc.Close()

		mirror := natsclient.NewTranscript(nc)
		if err := mirror.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure transcript stream", zap.Error(err))
			os.Exit(1)
		}
		transcript = mirror

		bucket, err := natsclient.NewThreadBucket(ctx, nc, cfg.NATSThreadBucket)
		if err != nil {
			log.Error("failed to open thread bucket", zap.Error(err))
			os.Exit(1)
		}
		store = bucket
	} else {
		log.Warn("NATS disabled, thread mappings will not survive restarts")
	}

	// Select the agent backend
	dial, agentID, err := buildDialer(cfg, log)
	if err != nil {
		log.Error("failed to configure agent backend", zap.Error(err))
		os.Exit(1)
	}

	// Initialize the session registry
	regOpts := []registry.Option{}
	if transcript != nil {
		regOpts = append(regOpts, registry.WithTranscript(transcript))
	}
	reg := registry.New(dial, session.Config{
		AgentID:      agentID,
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.PollMaxAttempts,
		WakePolls:    cfg.WakeMaxAttempts,
		StreamBudget: cfg.StreamMaxRuntime,
	}, store, log, regOpts...)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(nc)
	sessionHandler := handler.NewSessionHandler(reg, log, cfg.WakeEnabled)
	streamHandler := handler.NewStreamHandler(reg, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/", sessionHandler.Start)
			r.Delete("/", sessionHandler.End)

			r.Post("/messages", sessionHandler.Send)
			r.Post("/stream", streamHandler.Stream)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// buildDialer configures the agent transport backend and returns the
// agent id sessions should target.
func buildDialer(cfg *config.Config, log *logger.Logger) (agent.DialFunc, string, error) {
	switch cfg.AgentBackend {
	case config.BackendAssistants:
		dial := assistants.Dial(assistants.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
		// Validate credentials eagerly so misconfiguration fails at boot,
		// not on the first message.
		if _, err := dial(context.Background()); err != nil {
			return nil, "", err
		}
		return dial, cfg.AgentID, nil

	case config.BackendLocal:
		var client llm.Client
		var err error
		if cfg.AnthropicAPIKey != "" {
			client, err = llm.New(llm.ProviderAnthropic, cfg.AnthropicAPIKey)
		} else if cfg.OpenAIAPIKey != "" {
			client, err = llm.New(llm.ProviderOpenAI, cfg.OpenAIAPIKey)
		} else {
			err = fmt.Errorf("local backend requires an Anthropic or OpenAI API key")
		}
		if err != nil {
			return nil, "", err
		}
		backend := local.New(client, cfg.LocalModel, log)
		return backend.Dial(), local.DefaultAgentID, nil

	default:
		return nil, "", fmt.Errorf("unknown agent backend %q", cfg.AgentBackend)
	}
}
