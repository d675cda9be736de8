package learning

import (
	"context"

	"github.com/deskpilot/support-triage/internal/domain"
)

// Repository defines the data access contract for patterns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// TrackUsage increments times_triggered and either times_resolved or
	// times_escalated in one statement. Returns ErrPatternNotFound for
	// unknown ids.
	TrackUsage(ctx context.Context, patternID string, resolved bool) error

	// Create inserts a pattern.
	Create(ctx context.Context, p *domain.Pattern) error

	// List returns every pattern, active or not.
	List(ctx context.Context) ([]domain.Pattern, error)
}

// ConversationSource loads a conversation and its history.
type ConversationSource interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	Messages(ctx context.Context, id string) ([]domain.Message, error)
}
