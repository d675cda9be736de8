// Package api exposes the triage engine and the support console actions
// over HTTP.
package api

import (
	"context"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/engine"
	"github.com/deskpilot/support-triage/internal/notify"
	"github.com/deskpilot/support-triage/internal/service/conversation"
	"github.com/deskpilot/support-triage/internal/service/learning"
)

// Triager runs triage evaluations. Implemented by *engine.Engine.
type Triager interface {
	HandleInbound(ctx context.Context, in engine.InboundInput) (*engine.Result, error)
	Trigger(ctx context.Context, in engine.TriggerInput) (*engine.Result, error)
}

// Conversations is the part of conversation.Service the console uses.
type Conversations interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	Messages(ctx context.Context, id string) ([]domain.Message, error)
	AppendAdminMessage(ctx context.Context, id, adminID, content string, internal bool) (*domain.Message, error)
	Escalate(ctx context.Context, id string, in conversation.EscalateInput) (*domain.Message, error)
	Resolve(ctx context.Context, id string, in conversation.ResolveInput) error
	Reopen(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
	MarkSpam(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	Rate(ctx context.Context, id string, rating int, feedback string) error
	Assign(ctx context.Context, id, adminID string) error
}

// Learning is the part of learning.Service the console uses.
type Learning interface {
	SuggestPattern(ctx context.Context, conversationID string) (*domain.PatternSuggestion, error)
	SaveSuggestion(ctx context.Context, draft *domain.PatternSuggestion, name, createdBy string) (*domain.Pattern, error)
	Effectiveness(ctx context.Context) ([]learning.Effectiveness, error)
}

// Settings reads and writes the triage settings. Implemented by
// *settings.Store.
type Settings interface {
	Snapshot(ctx context.Context) (domain.Settings, error)
	Set(ctx context.Context, key, value string) error
}

// NoticeStats reports notification delivery counters. Implemented by
// *notify.Dispatcher.
type NoticeStats interface {
	Stats() notify.Stats
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	triager       Triager
	conversations Conversations
	learning      Learning
	settings      Settings
	notices       NoticeStats
	health        *HealthChecker
}

// Deps lists what the handlers need. Notices and Health are optional.
type Deps struct {
	Triager       Triager
	Conversations Conversations
	Learning      Learning
	Settings      Settings
	Notices       NoticeStats
	Health        *HealthChecker
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	h := d.Health
	if h == nil {
		h = NewHealthChecker(nil, nil, d.Notices)
	}
	return &Handlers{
		triager:       d.Triager,
		conversations: d.Conversations,
		learning:      d.Learning,
		settings:      d.Settings,
		notices:       d.Notices,
		health:        h,
	}
}
