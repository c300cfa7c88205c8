// Agent Studio - chat relay between browsers and Ragwalla agents.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ragwalla/agent-studio/internal/api"
	"github.com/ragwalla/agent-studio/internal/config"
	"github.com/ragwalla/agent-studio/internal/gateway"
	"github.com/ragwalla/agent-studio/internal/middleware"
	"github.com/ragwalla/agent-studio/internal/relay"
	"github.com/ragwalla/agent-studio/internal/session"
	"github.com/ragwalla/agent-studio/internal/store"
	"github.com/ragwalla/agent-studio/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "addr", cfg.Addr(), "agent_base_url", cfg.AgentBaseURL)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	agents := gateway.NewClient(cfg.AgentBaseURL, cfg.APIKey, cfg.GatewayTimeout, logger)
	if agents.Healthy(context.Background()) {
		slog.Info("Agent gateway reachable")
	} else {
		// The gateway may come up later; requests fail per-call until then.
		slog.Warn("Agent gateway unreachable at startup", "base_url", cfg.AgentBaseURL)
	}

	// Initialize services.
	sessions := session.NewManager(repo, cfg.HistoryLimit)
	registry := relay.NewRegistry()
	chatRelay := relay.NewRelay(repo, agents, registry)

	// Initialize handlers.
	sessionHandler := api.NewSessionHandler(repo, agents, registry)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := relay.NewWebSocketHandler(sessions, chatRelay, cfg.CORSOrigins, cfg.MaxMessageLength)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WriteTimeout stays 0: WebSocket connections are long-lived.
	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartCleanupWorker(ctx, repo, cfg.SessionTTL)
	slog.Info("Session cleanup worker started", "session_ttl", cfg.SessionTTL)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
