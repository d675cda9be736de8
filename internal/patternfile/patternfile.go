// Package patternfile reads pattern definitions kept in YAML, the format
// support leads use to review patterns before loading them.
//
//	patterns:
//	  - name: password reset
//	    keywords: [wachtwoord, password, reset]
//	    category: account
//	    min_confidence: 0.7
//	    active: true
//	    responses:
//	      nl: "Hoi {{ first_name }}, je kunt je wachtwoord resetten via ..."
//	      en: "Hi {{ first_name }}, you can reset your password via ..."
package patternfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deskpilot/support-triage/internal/domain"
)

// DefaultMinConfidence applies to entries without min_confidence.
const DefaultMinConfidence = 0.7

type file struct {
	Patterns []entry `yaml:"patterns"`
}

type entry struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Keywords      []string          `yaml:"keywords"`
	Expression    string            `yaml:"expression"`
	ErrorCodes    []string          `yaml:"error_codes"`
	Category      string            `yaml:"category"`
	Responses     map[string]string `yaml:"responses"`
	MinConfidence float64           `yaml:"min_confidence"`
	Active        *bool             `yaml:"active"`
}

// Load reads and validates the pattern file at path.
func Load(path string) ([]*domain.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a pattern document. Every entry is validated; the error
// names the first entry that fails. Entries are active unless they say
// otherwise.
func Parse(r io.Reader) ([]*domain.Pattern, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}

	out := make([]*domain.Pattern, 0, len(doc.Patterns))
	for i, e := range doc.Patterns {
		p := e.toPattern()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("pattern %d (%s): %w", i+1, label(e, i), err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (e entry) toPattern() *domain.Pattern {
	p := &domain.Pattern{
		ID:            e.ID,
		Name:          e.Name,
		Keywords:      lowerAll(e.Keywords),
		Expression:    e.Expression,
		ErrorCodes:    e.ErrorCodes,
		Category:      domain.Category(strings.ToLower(e.Category)),
		Responses:     e.Responses,
		MinConfidence: e.MinConfidence,
		IsActive:      e.Active == nil || *e.Active,
	}
	if p.MinConfidence == 0 {
		p.MinConfidence = DefaultMinConfidence
	}
	if p.Category == "" {
		p.Category = domain.CategoryGeneral
	}
	return p
}

func label(e entry, i int) string {
	if e.Name != "" {
		return e.Name
	}
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("#%d", i+1)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
