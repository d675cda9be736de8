package conversation

import (
	"context"
	"time"

	"github.com/deskpilot/support-triage/internal/domain"
)

// Repository defines the data access contract for conversations.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single conversation with its customer. Returns
	// ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Conversation, error)

	// Create inserts a new conversation together with its first message.
	// Either both are stored or neither is.
	Create(ctx context.Context, c *domain.Conversation, first *domain.Message) error

	// Update modifies a conversation. Only non-nil fields are applied and
	// updated_at is always bumped. Returns ErrNotFound for unknown ids.
	Update(ctx context.Context, id string, u UpdateFields) error
}

// MessageRepository is the append-only message log.
type MessageRepository interface {
	// Add appends a message to its conversation.
	Add(ctx context.Context, m *domain.Message) error

	// List returns every message of a conversation ordered by creation.
	List(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// UsageTracker receives pattern outcome signals. The learning service
// implements it.
type UsageTracker interface {
	TrackPatternUsage(ctx context.Context, patternID string, resolved bool) error
}

// UpdateFields holds the mutable fields for a conversation update.
// Nil fields are not applied.
type UpdateFields struct {
	Status        *domain.ConversationStatus
	Priority      *domain.Priority
	Category      *domain.Category
	Language      *string
	HandledBy     *domain.HandledBy
	LastPatternID *string
	AssignedTo    *string

	// PatternOutcomeTracked marks the outcome of the last pattern as
	// counted.
	PatternOutcomeTracked *bool

	ResolvedAt      *time.Time
	ResolutionType  *domain.ResolutionType
	ResolutionNotes *string
	// ClearResolution nulls resolved_at, resolution_type and
	// resolution_notes. It wins over the three fields above.
	ClearResolution bool

	SatisfactionRating   *int
	SatisfactionFeedback *string
}

// IsEmpty reports whether u would change nothing.
func (u UpdateFields) IsEmpty() bool {
	return u.Status == nil && u.Priority == nil && u.Category == nil && u.Language == nil &&
		u.HandledBy == nil && u.LastPatternID == nil && u.PatternOutcomeTracked == nil && u.AssignedTo == nil &&
		u.ResolvedAt == nil && u.ResolutionType == nil && u.ResolutionNotes == nil &&
		!u.ClearResolution && u.SatisfactionRating == nil && u.SatisfactionFeedback == nil
}

// Apply copies the non-nil fields of u onto c. Repositories that hold
// conversations in memory use it to mirror Update.
func (u UpdateFields) Apply(c *domain.Conversation) {
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Priority != nil {
		c.Priority = *u.Priority
	}
	if u.Category != nil {
		c.Category = *u.Category
	}
	if u.Language != nil {
		c.Language = *u.Language
	}
	if u.HandledBy != nil {
		c.HandledBy = *u.HandledBy
	}
	if u.LastPatternID != nil {
		id := *u.LastPatternID
		c.LastPatternID = &id
	}
	if u.PatternOutcomeTracked != nil {
		c.PatternOutcomeTracked = *u.PatternOutcomeTracked
	}
	if u.AssignedTo != nil {
		a := *u.AssignedTo
		c.AssignedTo = &a
	}
	if u.ResolvedAt != nil {
		at := *u.ResolvedAt
		c.ResolvedAt = &at
	}
	if u.ResolutionType != nil {
		c.ResolutionType = *u.ResolutionType
	}
	if u.ResolutionNotes != nil {
		c.ResolutionNotes = *u.ResolutionNotes
	}
	if u.ClearResolution {
		c.ResolvedAt = nil
		c.ResolutionType = ""
		c.ResolutionNotes = ""
	}
	if u.SatisfactionRating != nil {
		r := *u.SatisfactionRating
		c.SatisfactionRating = &r
	}
	if u.SatisfactionFeedback != nil {
		c.SatisfactionFeedback = *u.SatisfactionFeedback
	}
}
