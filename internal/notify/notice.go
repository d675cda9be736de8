// Package notify delivers escalation notices to the humans who take over a
// conversation. Delivery is at-least-once and never part of the state
// change: the engine enqueues a Notice on a Dispatcher and moves on.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// MaxHistory caps how many messages a notice carries.
const MaxHistory = 20

// Summary is the analyzer's view of the message that caused the escalation.
type Summary struct {
	Reason        string          `json:"reason"`
	Keywords      []string        `json:"keywords,omitempty"`
	ErrorCodes    []string        `json:"error_codes,omitempty"`
	Category      domain.Category `json:"category"`
	Priority      domain.Priority `json:"priority"`
	Language      string          `json:"language"`
	Frustrated    bool            `json:"frustrated"`
	TopPatternID  string          `json:"top_pattern_id,omitempty"`
	TopConfidence float64         `json:"top_confidence"`
}

// Notice is one escalation event: the conversation after the hand-off,
// its recent history and the analysis summary.
type Notice struct {
	Conversation domain.Conversation `json:"conversation"`
	History      []domain.Message    `json:"history"`
	Summary      Summary             `json:"summary"`
	CreatedAt    time.Time           `json:"created_at"`
}

// NewNotice builds a notice, keeping only the most recent MaxHistory
// messages.
func NewNotice(c domain.Conversation, history []domain.Message, s Summary) Notice {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	return Notice{
		Conversation: c,
		History:      append([]domain.Message(nil), history...),
		Summary:      s,
		CreatedAt:    time.Now().UTC(),
	}
}

// Key identifies the conversation a notice belongs to. Transports use it
// for partitioning and deduplication.
func (n Notice) Key() string { return n.Conversation.ID }

// Notifier sends escalation notices to one channel.
type Notifier interface {
	SendEscalationNotice(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

// SendEscalationNotice implements Notifier.
func (f NotifierFunc) SendEscalationNotice(ctx context.Context, n Notice) error { return f(ctx, n) }

// Multi fans a notice out to every notifier. All channels are attempted;
// the joined error lists the ones that failed.
type Multi []Notifier

// SendEscalationNotice implements Notifier.
func (m Multi) SendEscalationNotice(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.SendEscalationNotice(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notices to the structured log. It is the channel for
// local runs without AWS or Kafka.
type LogNotifier struct{}

// SendEscalationNotice implements Notifier.
func (LogNotifier) SendEscalationNotice(_ context.Context, n Notice) error {
	logger.Info("[notify] escalation",
		"conversation_id", n.Conversation.ID,
		"reason", n.Summary.Reason,
		"handled_by", n.Conversation.HandledBy,
		"priority", n.Summary.Priority,
		"category", n.Summary.Category,
		"customer_email", n.Conversation.Customer.Email,
		"messages", len(n.History),
	)
	return nil
}
