package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/support-triage/internal/triage"
)

const patternsYAML = `
patterns:
  - id: pw-reset
    name: password reset
    keywords: [password, reset]
    expression: 'reset.*password'
    category: account
    min_confidence: 0.7
    responses:
      en: "You can reset your password from the login page."
      nl: "Je kunt je wachtwoord resetten via de inlogpagina."
  - id: invoices
    name: invoices
    keywords: [invoice, billing, refund]
    category: billing
    responses:
      en: "Invoices are under Billing."
`

func writePatterns(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(patternsYAML), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyze(t *testing.T) {
	out, err := run(t, "analyze", "I get error 500 when I open my invoice")
	require.NoError(t, err)

	var a triage.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Contains(t, a.ErrorCodes, "500")
	assert.NotEmpty(t, a.Keywords)
}

func TestMatch(t *testing.T) {
	out, err := run(t, "match", "--patterns", writePatterns(t), "please reset my password")
	require.NoError(t, err)
	assert.Contains(t, out, "1. password reset")
	assert.Contains(t, out, "eligible=yes")
	assert.NotContains(t, out, "invoices")
}

func TestMatchNothing(t *testing.T) {
	out, err := run(t, "match", "--patterns", writePatterns(t), "hello there")
	require.NoError(t, err)
	assert.Contains(t, out, "no pattern matched")
}

func TestMatchRequiresPatterns(t *testing.T) {
	_, err := run(t, "match", "reset my password")
	assert.Error(t, err)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		outcome triage.Outcome
		reason  triage.EscalationReason
	}{
		{
			name:    "pattern answers",
			args:    []string{"--lang", "en", "please reset my password"},
			outcome: triage.OutcomeAutoReply,
		},
		{
			name:    "human requested",
			args:    []string{"--lang", "en", "I want to talk to a human about my password"},
			outcome: triage.OutcomeEscalate,
			reason:  triage.ReasonHumanRequested,
		},
		{
			name:    "response limit",
			args:    []string{"--lang", "en", "--ai-replies", "5", "please reset my password"},
			outcome: triage.OutcomeEscalate,
			reason:  triage.ReasonResponseLimit,
		},
		{
			name:    "no evidence",
			args:    []string{"--lang", "en", "something odd happened"},
			outcome: triage.OutcomeEscalate,
			reason:  triage.ReasonLowConfidence,
		},
	}

	path := writePatterns(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"decide", "--patterns", path}, tt.args...)
			out, err := run(t, args...)
			require.NoError(t, err)

			var d triage.Decision
			require.NoError(t, json.Unmarshal([]byte(out), &d))
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, "en", d.Language)
		})
	}
}

func TestDecideUsesConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("triage:\n  auto_reply_enabled: false\n"), 0o644))

	out, err := run(t, "decide", "--config", cfgPath, "--patterns", writePatterns(t), "--lang", "en", "please reset my password")
	require.NoError(t, err)

	var d triage.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, triage.ReasonAutoReplyDisabled, d.Reason)
}
