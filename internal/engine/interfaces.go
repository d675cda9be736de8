package engine

import (
	"context"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/notify"
	"github.com/deskpilot/support-triage/internal/service/conversation"
	"github.com/deskpilot/support-triage/internal/triage"
)

// ConversationService applies state changes to conversations. The
// conversation service implements it; every mutation appends at most one
// message.
type ConversationService interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	Messages(ctx context.Context, id string) ([]domain.Message, error)
	Create(ctx context.Context, in conversation.CreateInput) (*domain.Conversation, *domain.Message, error)
	AppendCustomerMessage(ctx context.Context, id, content string) (*domain.Message, error)
	Classify(ctx context.Context, id string, priority domain.Priority, category domain.Category, language string) error
	ApplyAutoReply(ctx context.Context, id string, in conversation.ReplyInput) (*domain.Message, error)
	ApplySuggestion(ctx context.Context, id string, in conversation.ReplyInput) (*domain.Message, error)
	Escalate(ctx context.Context, id string, in conversation.EscalateInput) (*domain.Message, error)
	Settle(ctx context.Context, id string, m domain.Message) (bool, error)
}

// PatternSource loads the active patterns for one evaluation.
type PatternSource interface {
	ActivePatterns(ctx context.Context) ([]*domain.Pattern, error)
}

// ArticleSearcher finds published knowledge-base articles for a keyword.
type ArticleSearcher interface {
	SearchArticles(ctx context.Context, keyword, language string) ([]domain.KnowledgeArticle, error)
}

// SettingsSource returns a fresh, validated settings snapshot.
type SettingsSource interface {
	Snapshot(ctx context.Context) (domain.Settings, error)
}

// NoticeQueue accepts escalation notices without blocking. The notify
// Dispatcher implements it.
type NoticeQueue interface {
	Enqueue(n notify.Notice) bool
}

// FollowUp schedules a triage run out of band, used when the lease for a
// conversation is held by another evaluation.
type FollowUp interface {
	EnqueueTrigger(ctx context.Context, conversationID string, source triage.Source) error
}
