// Package queue runs triage evaluations out of band on asynq. The engine
// enqueues a follow-up when a conversation lease is busy; the worker
// process consumes the tasks and calls Engine.Trigger.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/deskpilot/support-triage/internal/triage"
)

// Task types.
const (
	TypeTriageTrigger = "triage:trigger"
)

// QueueTriage is the asynq queue triage tasks are enqueued on.
const QueueTriage = "triage"

// TriggerPayload is the body of a triage:trigger task.
type TriggerPayload struct {
	ConversationID string        `json:"conversation_id"`
	Source         triage.Source `json:"source"`
}

// NewTriggerTask encodes a triage:trigger task.
func NewTriggerTask(p TriggerPayload) (*asynq.Task, error) {
	if p.ConversationID == "" {
		return nil, errors.New("queue: conversation id is required")
	}
	if p.Source == "" {
		p.Source = triage.SourceFollowUp
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger payload: %w", err)
	}
	return asynq.NewTask(TypeTriageTrigger, body), nil
}

// ParseTriggerPayload decodes a triage:trigger task body.
func ParseTriggerPayload(body []byte) (TriggerPayload, error) {
	var p TriggerPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("unmarshal trigger payload: %w", err)
	}
	if p.ConversationID == "" {
		return p, errors.New("trigger payload without conversation id")
	}
	return p, nil
}
