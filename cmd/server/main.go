package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/database"
	"github.com/mailrun/mailrun/internal/email"
	"github.com/mailrun/mailrun/internal/handler"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/middleware"
	"github.com/mailrun/mailrun/internal/router"
	"github.com/mailrun/mailrun/internal/suppression"
)

// The tracking server answers the open-pixel, click and unsubscribe links
// embedded in campaign emails.
func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("MAILRUN_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("starting mailrun tracking server")

	checks := map[string]handler.HealthCheck{}

	// Redis backs rate limiting and, optionally, the suppression list
	var rdb redis.UniversalClient
	if cfg.Server.RateLimiting.Enabled || cfg.Suppression.Backend == "redis" {
		r, err := database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer r.Close()
		log.Info().Msg("connected to Redis")
		rdb = r.Client
		checks["redis"] = r.HealthCheck
	}

	var list suppression.List
	switch cfg.Suppression.Backend {
	case "", "file":
		list = suppression.NewFileList(cfg.Suppression.File)
	case "redis":
		list = suppression.NewRedisList(rdb, cfg.Redis.KeyPrefix)
	default:
		log.Fatal().Str("backend", cfg.Suppression.Backend).Msg("unknown suppression backend")
	}
	checks["suppression"] = func(ctx context.Context) error {
		_, err := list.Contains(ctx, "health@check.invalid")
		return err
	}

	h := handler.New(email.NewLinkBuilder(cfg.Tracking), list, checks, log.WithComponent("tracking"))
	mw := middleware.New(rdb, log, cfg.Server.RateLimiting, cfg.Redis.KeyPrefix)
	r := router.New(h, mw)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
