package domain

import (
	"errors"
	"sort"
	"time"
)

// Pattern is a stored rule mapping trigger evidence (keywords, expression,
// error codes) to a localized canned response.
type Pattern struct {
	ID            string            `json:"id" db:"id"`
	Name          string            `json:"name" db:"name"`
	Keywords      []string          `json:"keywords" db:"keywords"`
	Expression    string            `json:"expression,omitempty" db:"expression"`
	ErrorCodes    []string          `json:"error_codes,omitempty" db:"error_codes"`
	Category      Category          `json:"category" db:"category"`
	Responses     map[string]string `json:"responses" db:"responses"`
	MinConfidence float64           `json:"min_confidence" db:"min_confidence"`
	IsActive      bool              `json:"is_active" db:"is_active"`

	TimesTriggered int `json:"times_triggered" db:"times_triggered"`
	TimesResolved  int `json:"times_resolved" db:"times_resolved"`
	TimesEscalated int `json:"times_escalated" db:"times_escalated"`

	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Response returns the template for lang, then for fallback, then any
// available template.
func (p *Pattern) Response(lang, fallback string) string {
	if r, ok := p.Responses[lang]; ok && r != "" {
		return r
	}
	if r, ok := p.Responses[fallback]; ok && r != "" {
		return r
	}
	return firstByKey(p.Responses)
}

// SuccessRate is the share of triggers that ended resolved.
func (p *Pattern) SuccessRate() float64 {
	if p.TimesTriggered == 0 {
		return 0
	}
	return float64(p.TimesResolved) / float64(p.TimesTriggered)
}

// Validate checks the structural rules for a pattern.
func (p *Pattern) Validate() error {
	if p.MinConfidence <= 0 || p.MinConfidence > 1 {
		return errors.New("min_confidence must be in (0,1]")
	}
	if len(p.Keywords) == 0 && p.Expression == "" && len(p.ErrorCodes) == 0 {
		return errors.New("pattern needs keywords, an expression or error codes")
	}
	if len(p.Responses) == 0 {
		return errors.New("pattern needs at least one response")
	}
	return nil
}

// SuggestedPatternConfidence is the fixed confidence assigned to drafts.
const SuggestedPatternConfidence = 0.6

// PatternSuggestion is a draft pattern proposed from a resolved conversation.
// It is never activated automatically.
type PatternSuggestion struct {
	SourceConversationID string            `json:"source_conversation_id"`
	Keywords             []string          `json:"keywords"`
	Category             Category          `json:"category"`
	Responses            map[string]string `json:"responses"`
	Confidence           float64           `json:"confidence"`
	IsActive             bool              `json:"is_active"`
}

// ToPattern converts the draft into an inactive pattern ready for review.
func (s *PatternSuggestion) ToPattern(name string) *Pattern {
	return &Pattern{
		Name:          name,
		Keywords:      append([]string(nil), s.Keywords...),
		Category:      s.Category,
		Responses:     s.Responses,
		MinConfidence: s.Confidence,
		IsActive:      false,
	}
}

// firstByKey returns the non-empty value with the lowest key so that
// fallbacks are deterministic.
func firstByKey(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return m[keys[0]]
}
