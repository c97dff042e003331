// Package main is the entry point for the voice scheduling server.
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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voicecal/voice-scheduler/internal/calendar"
	"github.com/voicecal/voice-scheduler/internal/config"
	"github.com/voicecal/voice-scheduler/internal/handler"
	"github.com/voicecal/voice-scheduler/internal/identity"
	"github.com/voicecal/voice-scheduler/internal/middleware"
	"github.com/voicecal/voice-scheduler/internal/relay"
	"github.com/voicecal/voice-scheduler/internal/secret"
	"github.com/voicecal/voice-scheduler/internal/store"
	"github.com/voicecal/voice-scheduler/internal/timezone"
	"github.com/voicecal/voice-scheduler/pkg/logger"
	"github.com/voicecal/voice-scheduler/pkg/tracing"
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

	log.Info("starting voice scheduling server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "voice-scheduler", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := store.Connect(ctx, store.Config{
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
	defer natsClient.Close()

	// Initialize stores
	conversations, err := store.NewConversationLog(ctx, natsClient)
	if err != nil {
		log.Error("failed to initialize conversation log", zap.Error(err))
		os.Exit(1)
	}
	users, err := store.NewUserStore(ctx, natsClient)
	if err != nil {
		log.Error("failed to initialize user store", zap.Error(err))
		os.Exit(1)
	}
	sessions, err := store.NewSessionStore(ctx, natsClient, cfg.SessionTTL)
	if err != nil {
		log.Error("failed to initialize session store", zap.Error(err))
		os.Exit(1)
	}
	cipher, err := secret.NewCipher(cfg.SecretKey)
	if err != nil {
		log.Error("failed to initialize credential cipher", zap.Error(err))
		os.Exit(1)
	}
	credentials, err := store.NewCredentialStore(ctx, natsClient, cipher)
	if err != nil {
		log.Error("failed to initialize credential store", zap.Error(err))
		os.Exit(1)
	}

	// Initialize domain components
	tz := timezone.New(cfg.Timezone, log)
	oauth := calendar.NewOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	executor := calendar.NewExecutor(calendar.NewGoogleProvider(oauth.Config()), tz, log)
	resolver := identity.NewResolver(sessions, users, credentials, log)
	dispatcher := relay.NewDispatcher(executor, log)

	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set, voice sessions will be refused")
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	authHandler := handler.NewAuthHandler(oauth, sessions, users, credentials, resolver, cfg.SessionTTL, log)
	apiHandler := handler.NewAPIHandler(conversations, resolver, log)
	wsHandler := handler.NewWSHandler(
		cfg.OpenAIAPIKey,
		cfg.OpenAIRealtimeURL,
		resolver,
		conversations,
		dispatcher,
		tz,
		cfg.CORSOrigins,
		log,
	)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Session())
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", handler.Index)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// OAuth flow
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/status", authHandler.Status)
		r.Post("/logout", authHandler.Logout)
		r.Post("/disconnect", authHandler.Disconnect)
	})

	// Read-side API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Get("/conversations", apiHandler.ListConversations)
		r.Get("/conversations/{sessionID}", apiHandler.GetConversation)
		r.Get("/conversations/{sessionID}/messages", apiHandler.ListMessages)
		r.Get("/events", apiHandler.ListCalendarEvents)
		r.Get("/stats", apiHandler.Stats)
	})

	// Voice relay
	r.Get("/ws", wsHandler.Serve)

	// Create HTTP server. WriteTimeout defaults to 0 so long-lived voice
	// connections are not cut off.
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
