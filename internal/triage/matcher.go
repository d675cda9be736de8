package triage

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// Evidence weights. Keyword coverage contributes at most KeywordWeight.
const (
	KeywordWeight    = 0.6
	ExpressionWeight = 0.2
	ErrorCodeWeight  = 0.2
)

// maxCachedExpressions bounds the compiled-expression cache. The cache is
// reset when full; patterns are few and re-compilation is cheap.
const maxCachedExpressions = 512

// Match is one ranked candidate produced by the matcher.
type Match struct {
	Pattern           *domain.Pattern `json:"pattern"`
	Confidence        float64         `json:"confidence"`
	MatchedKeywords   []string        `json:"matched_keywords"`
	ExpressionMatched bool            `json:"expression_matched"`
	ErrorCodeMatched  bool            `json:"error_code_matched"`
}

// AutoRespondEligible reports whether the candidate clears its own
// pattern's minimum confidence.
func (m Match) AutoRespondEligible() bool {
	return m.Pattern != nil && m.Confidence >= m.Pattern.MinConfidence
}

// Matcher scores messages against stored patterns. The zero value is not
// usable; call NewMatcher. A Matcher is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	exprs map[string]*regexp.Regexp
}

// NewMatcher creates a matcher with an empty expression cache.
func NewMatcher() *Matcher {
	return &Matcher{exprs: make(map[string]*regexp.Regexp)}
}

// MatchPatterns scores content against patterns with a throwaway matcher.
func MatchPatterns(content string, patterns []*domain.Pattern) []Match {
	return NewMatcher().Match(content, patterns)
}

// Match evaluates every active pattern independently and returns the
// patterns with any evidence, best first. Equal confidences keep their
// input order.
func (m *Matcher) Match(content string, patterns []*domain.Pattern) []Match {
	lowered := lower(content)
	codes := DetectErrorCodes(content)

	out := make([]Match, 0, len(patterns))
	for _, p := range patterns {
		if p == nil || !p.IsActive {
			continue
		}
		match, ok := m.score(lowered, content, codes, p)
		if ok {
			out = append(out, match)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func (m *Matcher) score(lowered, raw string, codes []string, p *domain.Pattern) (Match, bool) {
	var matched []string
	for _, kw := range p.Keywords {
		kw = strings.TrimSpace(lower(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, kw) {
			matched = append(matched, kw)
		}
	}

	exprHit := false
	if p.Expression != "" {
		if re := m.compile(p.ID, p.Expression); re != nil {
			exprHit = re.MatchString(raw)
		}
	}

	codeHit := overlapFold(p.ErrorCodes, codes)

	if len(matched) == 0 && !exprHit && !codeHit {
		return Match{}, false
	}

	confidence := 0.0
	if n := len(p.Keywords); n > 0 {
		ratio := float64(len(matched)) / float64(n)
		if ratio > 1 {
			ratio = 1
		}
		confidence += ratio * KeywordWeight
	}
	if exprHit {
		confidence += ExpressionWeight
	}
	if codeHit {
		confidence += ErrorCodeWeight
	}

	return Match{
		Pattern:           p,
		Confidence:        clamp01(confidence),
		MatchedKeywords:   matched,
		ExpressionMatched: exprHit,
		ErrorCodeMatched:  codeHit,
	}, true
}

// compile returns the cached case-insensitive regexp for expr. A malformed
// expression is cached as nil and never matches.
func (m *Matcher) compile(patternID, expr string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.exprs[expr]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		logger.Debug("[triage.Matcher] pattern expression does not compile",
			"pattern_id", patternID, "error", err)
		re = nil
	}

	m.mu.Lock()
	if len(m.exprs) >= maxCachedExpressions {
		m.exprs = make(map[string]*regexp.Regexp)
	}
	m.exprs[expr] = re
	m.mu.Unlock()
	return re
}

func overlapFold(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(strings.TrimSpace(w), h) {
				return true
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Top returns the best candidate, if any.
func Top(matches []Match) (Match, bool) {
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}
