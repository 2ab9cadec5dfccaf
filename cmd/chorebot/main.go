package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Kerhoff/ChoreBoT/internal/api"
	"github.com/Kerhoff/ChoreBoT/internal/config"
	"github.com/Kerhoff/ChoreBoT/internal/handlers"
	"github.com/Kerhoff/ChoreBoT/internal/metrics"
	"github.com/Kerhoff/ChoreBoT/internal/middleware"
	"github.com/Kerhoff/ChoreBoT/internal/service"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
	"github.com/Kerhoff/ChoreBoT/internal/telegram"
	"github.com/Kerhoff/ChoreBoT/pkg/logger"
)

func main() {
	// A missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat)
	l.WithField("backend", cfg.Backend).Info("Starting ChoreBoT...")

	// Data source
	be, err := openBackend(cfg, l)
	if err != nil {
		l.Fatalf("Failed to open backend: %v", err)
	}
	defer be.Close()

	// Session persistence
	store, closeStore, err := openStore(cfg)
	if err != nil {
		l.Fatalf("Failed to open session store: %v", err)
	}
	defer closeStore()

	m := metrics.New()

	sessions := session.NewRegistry(func(key string) (*session.Manager, error) {
		scoped := storage.WithPrefix(store, key+":")
		return session.NewManager(session.Deps{
			Key:      key,
			Auth:     be.newAuth(scoped),
			Families: be.families,
			Members:  be.members,
			Storage:  scoped,
			Policy:   cfg.CodePolicy,
			Logger:   l,
			Recorder: m,
		}), nil
	})
	m.TrackSessions(sessions.Len)

	// Service layer
	svc := service.New(l, be.members, be.chores, be.rewards)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	// idle managers are dropped; their sessions come back from the store
	sessions.StartCleanup(time.Minute, cfg.SessionIdleTimeout, ctx.Done())

	if be.purger != nil {
		go svc.StartSessionJanitor(ctx, be.purger, cfg.JanitorInterval, m.ObservePurged)
	}

	limiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst, l)
	limiter.StartCleanup(10*time.Minute, ctx.Done())

	// Metrics endpoint
	metricsServer := &http.Server{
		Addr:    ":" + cfg.PrometheusPort,
		Handler: m.Handler(),
	}
	go func() {
		l.Infof("Metrics server listening on :%s", cfg.PrometheusPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("Metrics server error: %v", err)
		}
	}()

	// HTTP API
	apiServer := api.NewServer(sessions, svc, limiter, m, l)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("HTTP server error: %v", err)
		}
	}()

	// Telegram bot
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, l)
		if err != nil {
			l.Fatalf("Failed to create Telegram bot: %v", err)
		}
		handlers.Register(bot, sessions, svc, limiter, l)

		go func() {
			if err := bot.Start(ctx); err != nil {
				l.Errorf("Bot error: %v", err)
			}
		}()
	} else {
		l.Warn("TELEGRAM_TOKEN is not set, running the HTTP API only")
	}

	l.Info("ChoreBoT started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Errorf("HTTP server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		l.Errorf("Metrics server shutdown error: %v", err)
	}

	l.Info("ChoreBoT stopped")
}
