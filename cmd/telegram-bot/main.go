package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-trip-planner/internal/app"
	"ai-trip-planner/internal/config"
	"ai-trip-planner/internal/logging"
	"ai-trip-planner/internal/telegram"

	"go.uber.org/zap"
)

const (
	sessionSweepInterval = time.Hour
	metricsRetentionDays = 90
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize the application (database, provider, payments)
	application, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	sessions := telegram.NewSessionRepository(application.DB(), telegram.DefaultSessionTTL)

	// 3. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, application, sessions, logger.Named("telegram"))
	if err != nil {
		logger.Fatal("failed to initialize telegram bot", zap.Error(err))
	}

	go sweep(ctx, logger, sessions, application)

	// 4. Start Server with Graceful Shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("telegram bot server listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	bot.Wait()

	logger.Info("server exiting")
}

// sweep periodically drops expired wizard sessions and old metrics.
func sweep(ctx context.Context, logger *zap.Logger, sessions *telegram.SessionRepository, application *app.App) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := sessions.CleanupExpired(ctx); err != nil {
				logger.Warn("failed to clean up sessions", zap.Error(err))
			} else if n > 0 {
				logger.Info("expired sessions removed", zap.Int64("count", n))
			}
			if _, err := application.CleanupMetrics(ctx, metricsRetentionDays); err != nil {
				logger.Warn("failed to clean up metrics", zap.Error(err))
			}
		}
	}
}
