package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/deskpilot/support-triage/internal/triage"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ClientConfig tunes follow-up scheduling.
type ClientConfig struct {
	// Delay postpones the follow-up so the current evaluation can finish.
	Delay time.Duration
	// UniqueTTL collapses follow-ups for one conversation inside the window.
	UniqueTTL time.Duration
	MaxRetry  int
}

// Client schedules triage follow-ups. It implements engine.FollowUp.
type Client struct {
	enqueuer Enqueuer
	cfg      ClientConfig
}

// NewClient wraps an asynq client. Zero config values take defaults.
func NewClient(e Enqueuer, cfg ClientConfig) *Client {
	if cfg.Delay <= 0 {
		cfg.Delay = 2 * time.Second
	}
	if cfg.UniqueTTL <= 0 {
		cfg.UniqueTTL = 30 * time.Second
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 10
	}
	return &Client{enqueuer: e, cfg: cfg}
}

// NewAsynqClient connects to the Redis behind redisURL.
func NewAsynqClient(redisURL string) (*asynq.Client, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is not set")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return asynq.NewClient(opt), nil
}

// EnqueueTrigger schedules a triage run for the conversation. A follow-up
// already pending for the conversation is not duplicated.
func (c *Client) EnqueueTrigger(ctx context.Context, conversationID string, source triage.Source) error {
	task, err := NewTriggerTask(TriggerPayload{ConversationID: conversationID, Source: source})
	if err != nil {
		return err
	}
	info, err := c.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(QueueTriage),
		asynq.ProcessIn(c.cfg.Delay),
		asynq.Unique(c.cfg.UniqueTTL),
		asynq.MaxRetry(c.cfg.MaxRetry),
	)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		logger.Debug("[queue.Client] follow-up already pending", "conversation_id", conversationID)
		return nil
	case err != nil:
		return fmt.Errorf("enqueue %s: %w", TypeTriageTrigger, err)
	}
	logger.Info("[queue.Client] follow-up scheduled",
		"conversation_id", conversationID, "task_id", info.ID, "source", source)
	return nil
}
