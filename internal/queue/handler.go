package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/deskpilot/support-triage/internal/engine"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// Triggerer runs one evaluation. *engine.Engine implements it.
type Triggerer interface {
	Trigger(ctx context.Context, in engine.TriggerInput) (*engine.Result, error)
}

// DefaultTaskTimeout bounds one task, lease wait included.
const DefaultTaskTimeout = 30 * time.Second

// Handler processes triage:trigger tasks.
type Handler struct {
	engine  Triggerer
	timeout time.Duration
}

// NewHandler creates a task handler.
func NewHandler(t Triggerer, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Handler{engine: t, timeout: timeout}
}

// ProcessTask implements asynq.Handler. A busy lease or a transient failure
// returns the error so asynq retries; malformed payloads and unknown
// conversations are not retried.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := ParseTriggerPayload(t.Payload())
	if err != nil {
		logger.Error("[queue.Handler] dropping malformed task", "type", t.Type(), "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.engine.Trigger(ctx, engine.TriggerInput{ConversationID: p.ConversationID, Source: p.Source})
	switch {
	case errors.Is(err, engine.ErrNotFound):
		logger.Warn("[queue.Handler] conversation gone, dropping task", "conversation_id", p.ConversationID)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case errors.Is(err, engine.ErrBusy):
		logger.Debug("[queue.Handler] lease busy, retrying later", "conversation_id", p.ConversationID)
		return err
	case err != nil:
		return err
	}

	logger.Info("[queue.Handler] follow-up evaluated",
		"conversation_id", p.ConversationID, "outcome", res.Outcome, "skipped", res.Skipped)
	return nil
}

// Register adds the triage handlers to mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeTriageTrigger, h)
}
