package triage

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/support-triage/internal/domain"
)

func pattern(id string, minConf float64, keywords ...string) *domain.Pattern {
	return &domain.Pattern{
		ID:            id,
		Name:          id,
		Keywords:      keywords,
		Responses:     map[string]string{"nl": "antwoord " + id, "en": "answer " + id},
		MinConfidence: minConf,
		IsActive:      true,
	}
}

func TestMatch_TokenExpired(t *testing.T) {
	p := pattern("token-expired", 0.5, "token", "verlopen")

	matches := MatchPatterns("mijn token is verlopen", []*domain.Pattern{p})

	require.Len(t, matches, 1)
	assert.GreaterOrEqual(t, matches[0].Confidence, 0.6)
	assert.True(t, matches[0].AutoRespondEligible())
	assert.Equal(t, []string{"token", "verlopen"}, matches[0].MatchedKeywords)
}

func TestMatch_ConfidenceFormula(t *testing.T) {
	p := pattern("password", 0.5, "login", "wachtwoord", "vergeten", "reset")
	p.Expression = `wachtwoord\s+vergeten`
	p.ErrorCodes = []string{"401"}

	matches := MatchPatterns("Wachtwoord vergeten, ik krijg 401", []*domain.Pattern{p})

	require.Len(t, matches, 1)
	m := matches[0]
	assert.InDelta(t, 0.5*KeywordWeight+ExpressionWeight+ErrorCodeWeight, m.Confidence, 1e-9)
	assert.True(t, m.ExpressionMatched)
	assert.True(t, m.ErrorCodeMatched)
}

func TestMatch_FullEvidenceIsClamped(t *testing.T) {
	p := pattern("full", 1, "gateway")
	p.Expression = `bad\s+gateway`
	p.ErrorCodes = []string{"502"}

	matches := MatchPatterns("502 Bad Gateway", []*domain.Pattern{p})

	require.Len(t, matches, 1)
	assert.LessOrEqual(t, matches[0].Confidence, 1.0)
	assert.InDelta(t, 1.0, matches[0].Confidence, 1e-9)
}

func TestMatch_ExcludesPatternsWithoutEvidence(t *testing.T) {
	patterns := []*domain.Pattern{
		pattern("billing", 0.5, "factuur"),
		pattern("token", 0.5, "token"),
	}

	matches := MatchPatterns("mijn token werkt niet", patterns)

	require.Len(t, matches, 1)
	assert.Equal(t, "token", matches[0].Pattern.ID)
}

func TestMatch_SkipsInactive(t *testing.T) {
	p := pattern("token", 0.5, "token")
	p.IsActive = false

	assert.Empty(t, MatchPatterns("token", []*domain.Pattern{p, nil}))
}

func TestMatch_MalformedExpressionIsNoEvidence(t *testing.T) {
	broken := pattern("broken", 0.5)
	broken.Expression = `([unclosed`
	withKeyword := pattern("kw", 0.5, "token")
	withKeyword.Expression = `(`

	matches := MatchPatterns("token (unclosed", []*domain.Pattern{broken, withKeyword})

	require.Len(t, matches, 1)
	assert.Equal(t, "kw", matches[0].Pattern.ID)
	assert.False(t, matches[0].ExpressionMatched)
	assert.InDelta(t, KeywordWeight, matches[0].Confidence, 1e-9)
}

func TestMatch_SortedAndStable(t *testing.T) {
	patterns := []*domain.Pattern{
		pattern("half-a", 0.5, "token", "factuur"),
		pattern("full", 0.5, "token"),
		pattern("half-b", 0.5, "token", "wachtwoord"),
		pattern("half-c", 0.5, "token", "inloggen"),
	}

	matches := MatchPatterns("mijn token", patterns)

	var ids []string
	for i, m := range matches {
		assert.GreaterOrEqual(t, m.Confidence, 0.0)
		assert.LessOrEqual(t, m.Confidence, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, matches[i-1].Confidence, m.Confidence)
		}
		ids = append(ids, m.Pattern.ID)
	}
	assert.Equal(t, []string{"full", "half-a", "half-b", "half-c"}, ids)
}

func TestMatch_Idempotent(t *testing.T) {
	m := NewMatcher()
	p1 := pattern("a", 0.5, "token", "verlopen")
	p1.Expression = `token\s+is`
	p2 := pattern("b", 0.5, "verlopen")
	p2.ErrorCodes = []string{"401"}
	patterns := []*domain.Pattern{p1, p2}

	first := m.Match("Mijn token is verlopen (401)", patterns)
	second := m.Match("Mijn token is verlopen (401)", patterns)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("match not idempotent (-first +second):\n%s", diff)
	}
}

func TestMatcher_ExpressionCacheIsBounded(t *testing.T) {
	m := NewMatcher()
	for i := 0; i < maxCachedExpressions+10; i++ {
		m.compile("p", fmt.Sprintf("expr%d", i))
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	assert.LessOrEqual(t, len(m.exprs), maxCachedExpressions)
}

func TestTop(t *testing.T) {
	_, ok := Top(nil)
	assert.False(t, ok)

	p := pattern("x", 0.9, "token")
	top, ok := Top([]Match{{Pattern: p, Confidence: 0.6}})
	assert.True(t, ok)
	assert.False(t, top.AutoRespondEligible())
}
