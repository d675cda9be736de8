package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/deskpilot/support-triage/internal/triage"
)

// Draft thresholds.
const (
	MinSuggestionKeywords = 3
	MaxSuggestionKeywords = 5
)

// Service implements the learning loop.
type Service struct {
	repo          Repository
	conversations ConversationSource
	analyzer      *triage.Analyzer
	defaultLang   string
	now           func() time.Time
}

// NewService creates a learning service. defaultLang is used for draft
// responses when a conversation has no language.
func NewService(repo Repository, conversations ConversationSource, defaultLang string) *Service {
	if defaultLang == "" {
		defaultLang = domain.DefaultSettings().DefaultLanguage
	}
	return &Service{
		repo:          repo,
		conversations: conversations,
		analyzer:      triage.NewAnalyzer(domain.DefaultSettings()),
		defaultLang:   defaultLang,
		now:           time.Now,
	}
}

// TrackPatternUsage records one outcome for a pattern: the trigger counter
// always moves, plus the resolved or the escalated counter.
func (s *Service) TrackPatternUsage(ctx context.Context, patternID string, resolved bool) error {
	if patternID == "" {
		return nil
	}
	if err := s.repo.TrackUsage(ctx, patternID, resolved); err != nil {
		return fmt.Errorf("track pattern %s: %w", patternID, err)
	}
	logger.Debug("[learning.Service] pattern usage tracked", "pattern_id", patternID, "resolved", resolved)
	return nil
}

// SuggestPattern drafts a pattern from a conversation that support staff
// answered. It returns nil without error when the conversation is not
// eligible.
func (s *Service) SuggestPattern(ctx context.Context, conversationID string) (*domain.PatternSuggestion, error) {
	c, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history, err := s.conversations.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return Suggest(c, history, s.analyzer, s.defaultLang), nil
}

// Suggest builds a draft from a conversation history. It needs at least
// one customer message, one admin message and enough keywords in the
// customer's first message.
func Suggest(c *domain.Conversation, history []domain.Message, analyzer *triage.Analyzer, defaultLang string) *domain.PatternSuggestion {
	first := domain.FirstBySender(history, domain.SenderUser)
	if first == nil {
		return nil
	}
	reply := firstAdminReply(history)
	if reply == nil {
		return nil
	}

	keywords := triage.ExtractKeywords(first.Content)
	if len(keywords) < MinSuggestionKeywords {
		return nil
	}
	if len(keywords) > MaxSuggestionKeywords {
		keywords = keywords[:MaxSuggestionKeywords]
	}

	lang := triage.ReplyLanguage(c, triage.DetectLanguage(first.Content), defaultLang)
	return &domain.PatternSuggestion{
		SourceConversationID: c.ID,
		Keywords:             keywords,
		Category:             analyzer.DetermineCategory(first.Content, keywords),
		Responses:            map[string]string{lang: reply.Content},
		Confidence:           domain.SuggestedPatternConfidence,
		IsActive:             false,
	}
}

// firstAdminReply prefers the first reply the customer actually saw and
// falls back to the first internal note.
func firstAdminReply(history []domain.Message) *domain.Message {
	var note *domain.Message
	for i := range history {
		m := &history[i]
		if m.SenderType != domain.SenderAdmin || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if !m.IsInternal {
			return m
		}
		if note == nil {
			note = m
		}
	}
	return note
}

// SaveSuggestion stores a draft as an inactive pattern for review.
func (s *Service) SaveSuggestion(ctx context.Context, draft *domain.PatternSuggestion, name, createdBy string) (*domain.Pattern, error) {
	if draft == nil {
		return nil, ErrInvalidDraft
	}
	if name == "" {
		name = "suggested: " + strings.Join(draft.Keywords, " ")
	}
	p := draft.ToPattern(name)
	p.ID = uuid.New().String()
	p.CreatedBy = createdBy
	p.IsActive = false
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create pattern: %w", err)
	}
	logger.Info("[learning.Service] pattern draft saved for review",
		"pattern_id", p.ID, "source_conversation_id", draft.SourceConversationID)
	return p, nil
}

// Effectiveness is one row of the pattern performance report.
type Effectiveness struct {
	PatternID      string  `json:"pattern_id"`
	Name           string  `json:"name"`
	IsActive       bool    `json:"is_active"`
	TimesTriggered int     `json:"times_triggered"`
	TimesResolved  int     `json:"times_resolved"`
	TimesEscalated int     `json:"times_escalated"`
	SuccessRate    float64 `json:"success_rate"`
}

// Effectiveness reports every pattern's success rate, most used first.
func (s *Service) Effectiveness(ctx context.Context) ([]Effectiveness, error) {
	patterns, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	out := make([]Effectiveness, 0, len(patterns))
	for i := range patterns {
		p := &patterns[i]
		out = append(out, Effectiveness{
			PatternID:      p.ID,
			Name:           p.Name,
			IsActive:       p.IsActive,
			TimesTriggered: p.TimesTriggered,
			TimesResolved:  p.TimesResolved,
			TimesEscalated: p.TimesEscalated,
			SuccessRate:    p.SuccessRate(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TimesTriggered != out[j].TimesTriggered {
			return out[i].TimesTriggered > out[j].TimesTriggered
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
