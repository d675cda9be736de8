package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deskpilot/support-triage/internal/app"
	"github.com/deskpilot/support-triage/internal/config"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/deskpilot/support-triage/internal/queue"
)

// worker consumes deferred triage tasks from the asynq queue.
func main() {
	defer logger.Sync()

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg.Logging)
	logger.Info("starting triage worker")

	if cfg.Redis.URL == "" {
		logger.Error("REDIS_URL is required for the triage worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	srv, err := queue.NewServer(queue.ServerConfig{
		RedisURL:    cfg.Redis.URL,
		Concurrency: cfg.Queue.Concurrency,
		Queues:      cfg.Queue.Queues,
	})
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}
	a.RegisterWorker(srv)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	logger.Info("worker running", "concurrency", cfg.Queue.Concurrency, "queues", cfg.Queue.Queues)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
		logger.Info("shutting down worker")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Error("worker stopped", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("worker stopped")
}
