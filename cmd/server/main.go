package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deskpilot/support-triage/internal/api"
	"github.com/deskpilot/support-triage/internal/app"
	"github.com/deskpilot/support-triage/internal/config"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/deskpilot/support-triage/internal/queue"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	defer logger.Sync()

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg.Logging)
	logger.Info("support triage server starting", "log_level", cfg.Logging.Level)

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		logger.Error("pre-flight check failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	logger.Info("services initialized",
		"redis", a.Redis != nil, "follow_up_queue", cfg.Queue.Enabled && cfg.Redis.URL != "")

	workerDone := make(chan struct{})
	if cfg.Queue.Enabled && cfg.Queue.RunWorkerInServer && cfg.Redis.URL != "" {
		srv, err := queue.NewServer(queue.ServerConfig{
			RedisURL:    cfg.Redis.URL,
			Concurrency: cfg.Queue.Concurrency,
			Queues:      cfg.Queue.Queues,
		})
		if err != nil {
			logger.Error("failed to create triage worker", "error", err)
			os.Exit(1)
		}
		a.RegisterWorker(srv)
		go func() {
			defer close(workerDone)
			if err := srv.Run(ctx); err != nil {
				logger.Error("triage worker stopped", "error", err)
			}
		}()
		logger.Info("in-process triage worker started", "concurrency", cfg.Queue.Concurrency)
	} else {
		close(workerDone)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           api.SetupRoutes(a.Handlers(), cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	cancel()
	<-workerDone

	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
}
