package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deskpilot/support-triage/internal/domain"
)

type field struct {
	key      string
	required bool
	apply    func(s *domain.Settings, raw string) error
	format   func(s domain.Settings) string
	present  func(s domain.Settings) bool
}

var fields = []field{
	{
		key: domain.SettingAutoReplyEnabled,
		apply: func(s *domain.Settings, raw string) error {
			v, err := strconv.ParseBool(raw)
			s.AutoReplyEnabled = v
			return err
		},
		format: func(s domain.Settings) string { return strconv.FormatBool(s.AutoReplyEnabled) },
	},
	{
		key:      domain.SettingConfidenceThreshold,
		required: true,
		apply:    parseFloat(func(s *domain.Settings, v float64) { s.ConfidenceThreshold = v }),
		format:   func(s domain.Settings) string { return formatFloat(s.ConfidenceThreshold) },
		present:  func(s domain.Settings) bool { return s.ConfidenceThreshold > 0 },
	},
	{
		key:    domain.SettingEscalationFloor,
		apply:  parseFloat(func(s *domain.Settings, v float64) { s.EscalationFloor = v }),
		format: func(s domain.Settings) string { return formatFloat(s.EscalationFloor) },
	},
	{
		key:      domain.SettingMaxAIResponses,
		required: true,
		apply: func(s *domain.Settings, raw string) error {
			v, err := strconv.Atoi(raw)
			s.MaxAIResponses = v
			return err
		},
		format:  func(s domain.Settings) string { return strconv.Itoa(s.MaxAIResponses) },
		present: func(s domain.Settings) bool { return s.MaxAIResponses > 0 },
	},
	{
		key:    domain.SettingCategoryExactWeight,
		apply:  parseFloat(func(s *domain.Settings, v float64) { s.CategoryExactWeight = v }),
		format: func(s domain.Settings) string { return formatFloat(s.CategoryExactWeight) },
	},
	{
		key:    domain.SettingCategoryFuzzyWeight,
		apply:  parseFloat(func(s *domain.Settings, v float64) { s.CategoryFuzzyWeight = v }),
		format: func(s domain.Settings) string { return formatFloat(s.CategoryFuzzyWeight) },
	},
	{
		key: domain.SettingDefaultLanguage,
		apply: func(s *domain.Settings, raw string) error {
			s.DefaultLanguage = strings.ToLower(raw)
			return nil
		},
		format: func(s domain.Settings) string { return s.DefaultLanguage },
	},
	{
		key: domain.SettingEvaluationTimeout,
		apply: func(s *domain.Settings, raw string) error {
			d, err := parseSeconds(raw)
			s.EvaluationTimeout = d
			return err
		},
		format: func(s domain.Settings) string { return strconv.Itoa(int(s.EvaluationTimeout / time.Second)) },
	},
	{
		key: domain.SettingMaxArticleSuggestions,
		apply: func(s *domain.Settings, raw string) error {
			v, err := strconv.Atoi(raw)
			s.MaxArticleSuggestions = v
			return err
		},
		format: func(s domain.Settings) string { return strconv.Itoa(s.MaxArticleSuggestions) },
	},
	{
		key: domain.SettingSupportEmail,
		apply: func(s *domain.Settings, raw string) error {
			s.SupportEmail = raw
			return nil
		},
		format: func(s domain.Settings) string { return s.SupportEmail },
	},
}

// Store builds settings snapshots from the repository. Values missing from
// the store come from fallback. The fallback built by the config package
// starts from domain.DefaultSettings, so a missing required key only
// fails when a caller passes a fallback without it.
type Store struct {
	repo     Repository
	fallback domain.Settings
}

// NewStore creates a settings store.
func NewStore(repo Repository, fallback domain.Settings) *Store {
	return &Store{repo: repo, fallback: fallback}
}

// Snapshot reads every key and returns a validated, immutable settings
// value. A required key with neither a stored nor a fallback value, or any
// unparsable or out-of-range value, yields a *ConfigError.
func (s *Store) Snapshot(ctx context.Context) (domain.Settings, error) {
	out := s.fallback
	for _, f := range fields {
		raw, err := s.repo.Get(ctx, f.key)
		switch {
		case errors.Is(err, ErrNotFound):
			if f.required && !f.present(s.fallback) {
				return domain.Settings{}, &ConfigError{Key: f.key, Reason: "missing"}
			}
			continue
		case err != nil:
			return domain.Settings{}, fmt.Errorf("read setting %s: %w", f.key, err)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			if f.required && !f.present(s.fallback) {
				return domain.Settings{}, &ConfigError{Key: f.key, Reason: "empty"}
			}
			continue
		}
		if err := f.apply(&out, raw); err != nil {
			return domain.Settings{}, &ConfigError{Key: f.key, Reason: fmt.Sprintf("invalid value %q", raw)}
		}
	}
	if err := out.Validate(); err != nil {
		return domain.Settings{}, &ConfigError{Key: "settings", Reason: err.Error()}
	}
	return out, nil
}

// Set validates and stores one setting.
func (s *Store) Set(ctx context.Context, key, value string) error {
	f, ok := lookup(key)
	if !ok {
		return &ConfigError{Key: key, Reason: "unknown setting"}
	}
	scratch := s.fallback
	if err := f.apply(&scratch, strings.TrimSpace(value)); err != nil {
		return &ConfigError{Key: key, Reason: fmt.Sprintf("invalid value %q", value)}
	}
	return s.repo.Set(ctx, key, strings.TrimSpace(value))
}

// Seed writes the fallback value for every key the store does not have
// yet. cmd/migrate calls it after applying the schema.
func (s *Store) Seed(ctx context.Context) (int, error) {
	n := 0
	for _, f := range fields {
		_, err := s.repo.Get(ctx, f.key)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return n, fmt.Errorf("read setting %s: %w", f.key, err)
		}
		if err := s.repo.Set(ctx, f.key, f.format(s.fallback)); err != nil {
			return n, fmt.Errorf("seed setting %s: %w", f.key, err)
		}
		n++
	}
	return n, nil
}

// Keys lists every known setting key.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.key)
	}
	return out
}

func lookup(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

func parseFloat(set func(*domain.Settings, float64)) func(*domain.Settings, string) error {
	return func(s *domain.Settings, raw string) error {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		set(s, v)
		return nil
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseSeconds accepts a whole number of seconds or a Go duration.
func parseSeconds(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
