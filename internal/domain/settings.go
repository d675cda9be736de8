package domain

import (
	"fmt"
	"time"
)

// Setting keys read from the settings store on every evaluation.
const (
	SettingAutoReplyEnabled      = "ai_auto_reply_enabled"
	SettingConfidenceThreshold   = "ai_confidence_threshold"
	SettingEscalationFloor       = "ai_escalation_floor"
	SettingMaxAIResponses        = "ai_max_responses"
	SettingCategoryExactWeight   = "category_exact_weight"
	SettingCategoryFuzzyWeight   = "category_fuzzy_weight"
	SettingDefaultLanguage       = "default_language"
	SettingEvaluationTimeout     = "triage_timeout_seconds"
	SettingMaxArticleSuggestions = "max_article_suggestions"
	SettingSupportEmail          = "support_email"
)

// Settings is an immutable snapshot of the triage tuning knobs. A fresh
// snapshot is taken for each evaluation so changes apply without a restart.
type Settings struct {
	AutoReplyEnabled      bool          `json:"auto_reply_enabled"`
	ConfidenceThreshold   float64       `json:"confidence_threshold"`
	EscalationFloor       float64       `json:"escalation_floor"`
	MaxAIResponses        int           `json:"max_ai_responses"`
	CategoryExactWeight   float64       `json:"category_exact_weight"`
	CategoryFuzzyWeight   float64       `json:"category_fuzzy_weight"`
	DefaultLanguage       string        `json:"default_language"`
	EvaluationTimeout     time.Duration `json:"evaluation_timeout"`
	MaxArticleSuggestions int           `json:"max_article_suggestions"`
	SupportEmail          string        `json:"support_email"`
}

// DefaultSettings returns the values the engine shipped with.
func DefaultSettings() Settings {
	return Settings{
		AutoReplyEnabled:      true,
		ConfidenceThreshold:   0.7,
		EscalationFloor:       0.5,
		MaxAIResponses:        5,
		CategoryExactWeight:   1.0,
		CategoryFuzzyWeight:   0.5,
		DefaultLanguage:       "nl",
		EvaluationTimeout:     5 * time.Second,
		MaxArticleSuggestions: 3,
	}
}

// Validate checks that every threshold is in range.
func (s Settings) Validate() error {
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fmt.Errorf("%s out of range: %v", SettingConfidenceThreshold, s.ConfidenceThreshold)
	}
	if s.EscalationFloor < 0 || s.EscalationFloor > 1 {
		return fmt.Errorf("%s out of range: %v", SettingEscalationFloor, s.EscalationFloor)
	}
	if s.MaxAIResponses <= 0 {
		return fmt.Errorf("%s must be positive: %d", SettingMaxAIResponses, s.MaxAIResponses)
	}
	if s.EvaluationTimeout <= 0 {
		return fmt.Errorf("%s must be positive", SettingEvaluationTimeout)
	}
	return nil
}
