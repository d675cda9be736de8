package learning_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/service/learning"
)

// memPatterns is an in-memory pattern repository for unit testing.
type memPatterns struct {
	mu       sync.Mutex
	patterns map[string]*domain.Pattern
	order    []string
}

func newMemPatterns(ps ...domain.Pattern) *memPatterns {
	m := &memPatterns{patterns: make(map[string]*domain.Pattern)}
	for i := range ps {
		p := ps[i]
		m.patterns[p.ID] = &p
		m.order = append(m.order, p.ID)
	}
	return m
}

func (m *memPatterns) TrackUsage(_ context.Context, id string, resolved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patterns[id]
	if !ok {
		return learning.ErrPatternNotFound
	}
	p.TimesTriggered++
	if resolved {
		p.TimesResolved++
	} else {
		p.TimesEscalated++
	}
	return nil
}

func (m *memPatterns) Create(_ context.Context, p *domain.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.patterns[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *memPatterns) List(_ context.Context) ([]domain.Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Pattern
	for _, id := range m.order {
		out = append(out, *m.patterns[id])
	}
	return out, nil
}

// memConversations serves a fixed set of conversations.
type memConversations struct {
	conversations map[string]*domain.Conversation
	messages      map[string][]domain.Message
}

func (m *memConversations) Get(_ context.Context, id string) (*domain.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok {
		return nil, assert.AnError
	}
	return c, nil
}

func (m *memConversations) Messages(_ context.Context, id string) ([]domain.Message, error) {
	return m.messages[id], nil
}

func conversations(history ...domain.Message) *memConversations {
	return &memConversations{
		conversations: map[string]*domain.Conversation{"conv-1": {ID: "conv-1", Customer: domain.Customer{Language: "nl"}}},
		messages:      map[string][]domain.Message{"conv-1": history},
	}
}

func msg(sender domain.SenderType, content string) domain.Message {
	return domain.Message{ConversationID: "conv-1", SenderType: sender, Content: content}
}

func TestTrackPatternUsage(t *testing.T) {
	repo := newMemPatterns(domain.Pattern{ID: "p1", Name: "token"})
	svc := learning.NewService(repo, conversations(), "nl")
	ctx := context.Background()

	require.NoError(t, svc.TrackPatternUsage(ctx, "p1", true))
	require.NoError(t, svc.TrackPatternUsage(ctx, "p1", false))
	require.NoError(t, svc.TrackPatternUsage(ctx, "p1", true))
	require.NoError(t, svc.TrackPatternUsage(ctx, "", true))

	p := repo.patterns["p1"]
	assert.Equal(t, 3, p.TimesTriggered)
	assert.Equal(t, 2, p.TimesResolved)
	assert.Equal(t, 1, p.TimesEscalated)

	assert.ErrorIs(t, svc.TrackPatternUsage(ctx, "missing", true), learning.ErrPatternNotFound)
}

func TestSuggestPattern_SingleMessage(t *testing.T) {
	svc := learning.NewService(newMemPatterns(), conversations(
		msg(domain.SenderUser, "Mijn API token is verlopen na de update van gisteren"),
	), "nl")

	s, err := svc.SuggestPattern(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSuggestPattern_TooFewKeywords(t *testing.T) {
	svc := learning.NewService(newMemPatterns(), conversations(
		msg(domain.SenderUser, "token verlopen"),
		msg(domain.SenderAdmin, "Vernieuw je token in de instellingen."),
	), "nl")

	s, err := svc.SuggestPattern(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSuggestPattern_Eligible(t *testing.T) {
	svc := learning.NewService(newMemPatterns(), conversations(
		msg(domain.SenderUser, "Mijn API token is verlopen na de update, webhook integratie faalt nu ook"),
		msg(domain.SenderAI, "Sorry, ik schakel een collega in."),
		msg(domain.SenderAdmin, "Klant heeft enterprise plan"),
		msg(domain.SenderAdmin, "Vernieuw je token via Instellingen > API."),
	), "nl")
	// the first admin message is an internal note
	svc2 := learning.NewService(newMemPatterns(), func() *memConversations {
		c := conversations()
		h := []domain.Message{
			msg(domain.SenderUser, "Mijn API token is verlopen na de update, webhook integratie faalt nu ook"),
			msg(domain.SenderAdmin, "Klant heeft enterprise plan"),
			msg(domain.SenderAdmin, "Vernieuw je token via Instellingen > API."),
		}
		h[1].IsInternal = true
		c.messages["conv-1"] = h
		return c
	}(), "nl")

	s, err := svc.SuggestPattern(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, []string{"api", "token", "verlopen", "update", "webhook"}, s.Keywords)
	assert.Equal(t, domain.CategoryTechnical, s.Category)
	assert.Equal(t, map[string]string{"nl": "Klant heeft enterprise plan"}, s.Responses)
	assert.Equal(t, domain.SuggestedPatternConfidence, s.Confidence)
	assert.False(t, s.IsActive)
	assert.Equal(t, "conv-1", s.SourceConversationID)

	s2, err := svc2.SuggestPattern(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, s2)
	assert.Equal(t, "Vernieuw je token via Instellingen > API.", s2.Responses["nl"])
}

func TestSuggestPattern_NotFound(t *testing.T) {
	svc := learning.NewService(newMemPatterns(), conversations(), "nl")
	_, err := svc.SuggestPattern(context.Background(), "other")
	assert.Error(t, err)
}

func TestSaveSuggestion(t *testing.T) {
	repo := newMemPatterns()
	svc := learning.NewService(repo, conversations(), "nl")

	p, err := svc.SaveSuggestion(context.Background(), &domain.PatternSuggestion{
		SourceConversationID: "conv-1",
		Keywords:             []string{"token", "verlopen", "api"},
		Category:             domain.CategoryTechnical,
		Responses:            map[string]string{"nl": "Vernieuw je token."},
		Confidence:           domain.SuggestedPatternConfidence,
	}, "", "admin-1")
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.False(t, p.IsActive)
	assert.Equal(t, "suggested: token verlopen api", p.Name)
	assert.Equal(t, domain.SuggestedPatternConfidence, p.MinConfidence)
	assert.Contains(t, repo.patterns, p.ID)

	_, err = svc.SaveSuggestion(context.Background(), &domain.PatternSuggestion{Confidence: 0.6}, "leeg", "admin-1")
	assert.ErrorIs(t, err, learning.ErrInvalidDraft)
	_, err = svc.SaveSuggestion(context.Background(), nil, "", "")
	assert.ErrorIs(t, err, learning.ErrInvalidDraft)
}

func TestEffectiveness(t *testing.T) {
	repo := newMemPatterns(
		domain.Pattern{ID: "a", Name: "rare", TimesTriggered: 2, TimesResolved: 1, TimesEscalated: 1},
		domain.Pattern{ID: "b", Name: "busy", TimesTriggered: 10, TimesResolved: 8, TimesEscalated: 2, IsActive: true},
		domain.Pattern{ID: "c", Name: "unused"},
	)
	svc := learning.NewService(repo, conversations(), "nl")

	report, err := svc.Effectiveness(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 3)
	assert.Equal(t, "b", report[0].PatternID)
	assert.InDelta(t, 0.8, report[0].SuccessRate, 1e-9)
	assert.Equal(t, "a", report[1].PatternID)
	assert.InDelta(t, 0.5, report[1].SuccessRate, 1e-9)
	assert.Equal(t, 0.0, report[2].SuccessRate)
}
