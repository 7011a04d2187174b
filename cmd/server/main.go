// Prologue - Narrated Date Mission Server
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
	"github.com/prologuebox/prologue/internal/api"
	"github.com/prologuebox/prologue/internal/config"
	"github.com/prologuebox/prologue/internal/identity"
	"github.com/prologuebox/prologue/internal/middleware"
	"github.com/prologuebox/prologue/internal/mission"
	"github.com/prologuebox/prologue/internal/presence"
	"github.com/prologuebox/prologue/internal/session"
	"github.com/prologuebox/prologue/internal/store"
	"github.com/prologuebox/prologue/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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
	slog.Info("Database connected")

	// Initialize services.
	sessions := session.NewService(repo)
	hub := presence.NewHub()
	sessions.SetNotifier(hub)

	// Content generation is optional: without an API key the mission
	// endpoints degrade and the frontend hides the generation form.
	var generator mission.Generator
	if cfg.AIEnabled() {
		generator = mission.NewClient(mission.Config{
			APIKey:   cfg.Gemini.APIKey,
			Model:    cfg.Gemini.Model,
			TTSModel: cfg.Gemini.TTSModel,
			BaseURL:  cfg.Gemini.BaseURL,
			HTTPClient: &http.Client{
				Timeout: cfg.Gemini.RequestTimeout,
			},
		})
		slog.Info("Content service client initialized", "model", cfg.Gemini.Model)
	} else {
		slog.Info("AI features disabled (GEMINI_API_KEY not set)")
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sessions, generator, cfg.FrontendURL)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := presence.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	api.NewDuoHandler(baseHandler, cfg.AIEnabled()).RegisterRoutes(r)
	api.NewMissionHandler(baseHandler).RegisterRoutes(r)
	api.NewMemoryHandler(baseHandler).RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/presence", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // presence sockets stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
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
