package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// ServerConfig configures the asynq worker.
type ServerConfig struct {
	RedisURL    string
	Concurrency int
	// Queues is a weight list like "triage=6,default=1".
	Queues string
}

// Server consumes triage tasks.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer builds a worker for the configured queues.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.RedisURL == "" {
		return nil, errors.New("asynq: redis url is not set")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	queues := ParseQueueWeights(cfg.Queues)
	if len(queues) == 0 {
		queues = map[string]int{QueueTriage: 1}
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("[queue.Server] task failed",
				"type", task.Type(), "retry", retried, "max_retry", maxRetry, "error", err)
		}),
	})
	return &Server{server: srv, mux: asynq.NewServeMux()}, nil
}

// Mux exposes the handler registry.
func (s *Server) Mux() *asynq.ServeMux { return s.mux }

// Run starts processing and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	logger.Info("[queue.Server] worker started")
	<-ctx.Done()
	s.server.Shutdown()
	logger.Info("[queue.Server] worker stopped")
	return nil
}

// ParseQueueWeights parses "critical=6,default=3,low=1" into a map. Entries
// without a valid weight get 1.
func ParseQueueWeights(s string) map[string]int {
	res := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		name := strings.TrimSpace(kv[0])
		if name == "" {
			continue
		}
		w := 1
		if len(kv) == 2 {
			if i, err := strconv.Atoi(strings.TrimSpace(kv[1])); err == nil && i > 0 {
				w = i
			}
		}
		res[name] = w
	}
	return res
}
