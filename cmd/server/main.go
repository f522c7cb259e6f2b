// SDLC Studio server: a browser UI driving seven role-based agents through
// a clarify, feedback and synthesize conversation each.
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

	"github.com/ashureev/sdlc-studio/internal/api"
	"github.com/ashureev/sdlc-studio/internal/config"
	"github.com/ashureev/sdlc-studio/internal/conversation"
	"github.com/ashureev/sdlc-studio/internal/export"
	"github.com/ashureev/sdlc-studio/internal/gateway"
	"github.com/ashureev/sdlc-studio/internal/identity"
	"github.com/ashureev/sdlc-studio/internal/middleware"
	"github.com/ashureev/sdlc-studio/internal/prompts"
	"github.com/ashureev/sdlc-studio/internal/store"
	"github.com/ashureev/sdlc-studio/internal/studio"
	"github.com/ashureev/sdlc-studio/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newLogger(cfg config.LogConfig) *slog.Logger {
	if cfg.Format == "text" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level,
	}))
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "provider", cfg.Gateway.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	lib, err := prompts.Default()
	if err != nil {
		slog.Error("Failed to load prompt library", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := studio.NewMetrics(reg)

	provider, err := gateway.NewProvider(ctx, gateway.ProviderConfig{
		Provider:          cfg.Gateway.Provider,
		Model:             cfg.Gateway.Model,
		GoogleAPIKey:      cfg.Gateway.GoogleAPIKey,
		OpenRouterAPIKey:  cfg.Gateway.OpenRouterAPIKey,
		OpenRouterBaseURL: cfg.Gateway.OpenRouterBaseURL,
	})
	if err != nil {
		slog.Error("Failed to initialize reasoning gateway", "error", err)
		os.Exit(1)
	}
	gw := gateway.NewClient(provider, gateway.Options{
		Timeout:       cfg.Gateway.Timeout,
		MaxRetries:    cfg.Gateway.MaxRetries,
		RatePerSecond: cfg.Gateway.RatePerSecond,
		Observer:      metrics,
		Logger:        logger,
	})
	slog.Info("Reasoning gateway ready", "provider", gw.Provider())

	machine := conversation.NewMachine(gw, lib,
		conversation.WithObserver(metrics),
		conversation.WithLogger(logger),
	)

	convLogger, err := studio.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	renderer := export.NewRenderer()
	svc := studio.NewService(studio.Deps{
		Repo:     repo,
		Machine:  machine,
		Library:  lib,
		Renderer: renderer,
		Writer:   export.NewWriter(cfg.ExportDir, renderer),
		Events:   convLogger,
		Logger:   logger,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	accountHandler := api.NewHandler(repo, cfg)
	healthHandler := api.NewHealthHandler(repo)
	studioHandler := studio.NewHandler(svc, limiter.Middleware)
	wsHandler := studio.NewWebSocketHandler(svc, limiter, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Unauthenticated operational routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		accountHandler.RegisterRoutes(r)
		studioHandler.RegisterRoutes(r)
		r.Get("/ws/studio", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Synthesis calls can take most of the gateway timeout per attempt.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	studio.StartTTLWorker(ctx, svc, cfg.SessionTTL)

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

	if dropped := convLogger.Dropped(); dropped > 0 {
		slog.Warn("Conversation log events dropped", "count", dropped)
	}
	slog.Info("Server stopped successfully")
}
