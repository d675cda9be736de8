package patternfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/support-triage/internal/domain"
)

const sample = `
patterns:
  - id: pw-reset
    name: password reset
    keywords: [Wachtwoord, " password ", reset]
    category: Account
    min_confidence: 0.8
    responses:
      nl: "Hoi {{ first_name }}, reset je wachtwoord via de inlogpagina."
      en: "Hi {{ first_name }}, reset your password from the login page."
  - name: server errors
    error_codes: ["500", "503"]
    active: false
    responses:
      en: "We are looking into it."
`

func TestParse(t *testing.T) {
	patterns, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	want := &domain.Pattern{
		ID:            "pw-reset",
		Name:          "password reset",
		Keywords:      []string{"wachtwoord", "password", "reset"},
		Category:      domain.CategoryAccount,
		MinConfidence: 0.8,
		IsActive:      true,
		Responses: map[string]string{
			"nl": "Hoi {{ first_name }}, reset je wachtwoord via de inlogpagina.",
			"en": "Hi {{ first_name }}, reset your password from the login page.",
		},
	}
	if diff := cmp.Diff(want, patterns[0]); diff != "" {
		t.Errorf("first pattern mismatch (-want +got):\n%s", diff)
	}

	second := patterns[1]
	assert.False(t, second.IsActive)
	assert.Equal(t, domain.CategoryGeneral, second.Category)
	assert.Equal(t, DefaultMinConfidence, second.MinConfidence)
	assert.Equal(t, []string{"500", "503"}, second.ErrorCodes)
}

func TestParseRejectsInvalidEntry(t *testing.T) {
	_, err := Parse(strings.NewReader(`
patterns:
  - name: no evidence
    responses:
      en: "hello"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no evidence")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader(`
patterns:
  - name: typo
    keyword: [billing]
`))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	patterns, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	patterns, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, patterns, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
