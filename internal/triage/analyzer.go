// Package triage holds the deterministic decision core: the message
// analyzer, the pattern matcher and the escalation guard. Nothing in this
// package performs I/O; the engine package feeds it persisted state and
// applies its decisions.
package triage

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/deskpilot/support-triage/internal/domain"
)

// Default category weights. Both are overridable through settings.
const (
	DefaultCategoryExactWeight = 1.0
	DefaultCategoryFuzzyWeight = 0.5
)

// minKeywordLen is the longest token that is still dropped.
const minKeywordLen = 2

// fuzzyPrefixLen is the shared-prefix length at which two terms are
// considered related ("factuur" / "facturen").
const fuzzyPrefixLen = 5

// Analysis bundles everything the analyzer derives from one message.
type Analysis struct {
	Keywords   []string        `json:"keywords"`
	ErrorCodes []string        `json:"error_codes"`
	Category   domain.Category `json:"category"`
	Priority   domain.Priority `json:"priority"`
	Language   string          `json:"language,omitempty"`
	Frustrated bool            `json:"frustrated"`
}

// Analyzer classifies free text. It is safe for concurrent use.
type Analyzer struct {
	exactWeight float64
	fuzzyWeight float64
}

// NewAnalyzer builds an analyzer with the category weights from settings.
// Non-positive weights fall back to the defaults.
func NewAnalyzer(s domain.Settings) *Analyzer {
	a := &Analyzer{exactWeight: s.CategoryExactWeight, fuzzyWeight: s.CategoryFuzzyWeight}
	if a.exactWeight <= 0 {
		a.exactWeight = DefaultCategoryExactWeight
	}
	if a.fuzzyWeight <= 0 {
		a.fuzzyWeight = DefaultCategoryFuzzyWeight
	}
	return a
}

// Analyze runs every extractor over text.
func (a *Analyzer) Analyze(text string) Analysis {
	keywords := ExtractKeywords(text)
	codes := DetectErrorCodes(text)
	return Analysis{
		Keywords:   keywords,
		ErrorCodes: codes,
		Category:   a.DetermineCategory(text, keywords),
		Priority:   DeterminePriority(text, codes),
		Language:   DetectLanguage(text),
		Frustrated: isFrustrated(text),
	}
}

// lower folds case with Unicode rules. A Caser is stateful, so one is built
// per call rather than shared.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// tokens lowercases text, strips everything that is not a letter, digit,
// underscore or whitespace and splits on whitespace. "e-mail" stays one
// token.
func tokens(text string) []string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			return r
		}
		return -1
	}, lower(text))
	return strings.Fields(clean)
}

// ExtractKeywords returns the meaningful terms of text in first-seen order.
func ExtractKeywords(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range tokens(text) {
		if utf8.RuneCountInString(tok) <= minKeywordLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// errorCodePatterns are applied in order. The first non-empty capture group
// is the code, otherwise the whole match is.
var errorCodePatterns = []*regexp.Regexp{
	// HTTP status codes (client and server errors)
	regexp.MustCompile(`\b[45]\d{2}\b`),
	// error_code: X, error code = X, errorcode X4. Without a separator the
	// code needs a digit or a capital so plain words are not taken.
	regexp.MustCompile(`\b(?i:error[_ ]?code)(?:\s*[:=]\s*([A-Za-z0-9_.-]+)|\s+([A-Za-z_.-]*[0-9A-Z][A-Za-z0-9_.-]*))`),
	// [ERROR_TIMEOUT], [E1234], [ERR-42]
	regexp.MustCompile(`\[((?:ERROR|ERR|E)[_-]?[A-Z0-9_-]*)\]`),
	// runtime exceptions and errno names
	regexp.MustCompile(`\b(TypeError|ReferenceError|SyntaxError|RangeError|NullPointerException|IllegalArgumentException|IllegalStateException|TimeoutException|ECONNREFUSED|ECONNRESET|ETIMEDOUT|ENOTFOUND)\b`),
}

// DetectErrorCodes returns the distinct error codes in text in order of
// first appearance.
func DetectErrorCodes(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, re := range errorCodePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			code := m[0]
			for _, g := range m[1:] {
				if g != "" {
					code = g
					break
				}
			}
			code = strings.TrimSpace(code)
			key := strings.ToUpper(code)
			if code == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}

// IsServerError reports whether code is a 5xx HTTP status.
func IsServerError(code string) bool {
	return len(code) == 3 && code[0] == '5' && isDigits(code)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// categoryTable is scored in declaration order; earlier rows win ties.
var categoryTable = []struct {
	category domain.Category
	keywords []string
}{
	{domain.CategoryTechnical, []string{
		"error", "fout", "foutmelding", "werkt niet", "not working", "api", "token",
		"integratie", "integration", "timeout", "storing", "outage", "webhook", "server",
	}},
	{domain.CategoryBilling, []string{
		"factuur", "invoice", "betaling", "payment", "abonnement", "subscription",
		"refund", "terugbetaling", "prijs", "price", "incasso", "creditcard", "btw",
	}},
	{domain.CategoryAccount, []string{
		"account", "wachtwoord", "password", "inloggen", "login", "profiel", "profile",
		"e-mailadres", "email address", "gebruikersnaam", "username", "2fa",
	}},
	{domain.CategoryFeatureRequest, []string{
		"feature", "suggestie", "suggestion", "zou graag", "would like", "wens",
		"verzoek", "request", "toevoegen", "add support", "mogelijkheid",
	}},
	{domain.CategoryBugReport, []string{
		"bug", "kapot", "broken", "crash", "crasht", "onverwacht", "unexpected",
		"glitch", "reproduceren", "reproduce",
	}},
	{domain.CategoryGeneral, []string{
		"vraag", "question", "informatie", "information", "hoe", "how", "uitleg",
	}},
}

// DetermineCategory scores every category: an exact substring hit adds the
// exact weight, otherwise a related extracted keyword adds the fuzzy weight.
// The highest score wins, ties go to the earlier category, and a zero score
// everywhere yields "other".
func (a *Analyzer) DetermineCategory(text string, keywords []string) domain.Category {
	lowered := lower(text)
	best, bestScore := domain.CategoryOther, 0.0
	for _, row := range categoryTable {
		score := 0.0
		for _, kw := range row.keywords {
			switch {
			case strings.Contains(lowered, kw):
				score += a.exactWeight
			case fuzzyOverlap(kw, keywords):
				score += a.fuzzyWeight
			}
		}
		if score > bestScore {
			best, bestScore = row.category, score
		}
	}
	return best
}

func fuzzyOverlap(term string, keywords []string) bool {
	if strings.Contains(term, " ") {
		return false
	}
	for _, k := range keywords {
		if utf8.RuneCountInString(k) < 4 {
			continue
		}
		if strings.Contains(k, term) || strings.Contains(term, k) {
			return true
		}
		if sharedPrefix(k, term) >= fuzzyPrefixLen {
			return true
		}
	}
	return false
}

func sharedPrefix(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n := 0
	for n < len(ar) && n < len(br) && ar[n] == br[n] {
		n++
	}
	return n
}

var highUrgency = []string{
	"urgent", "spoed", "dringend", "asap", "direct nodig", "onmiddellijk", "immediately",
	"kritiek", "critical", "noodgeval", "emergency", "down", "ligt eruit", "niet bereikbaar",
	"productie", "production",
}

var lowUrgency = []string{
	"geen haast", "no rush", "geen spoed", "when you have time", "als je tijd hebt",
	"vraagje", "just wondering", "low priority", "lage prioriteit", "suggestie", "suggestion",
}

// DeterminePriority short-circuits on the first high-urgency term, then on
// the first low-urgency term, then on any 5xx code.
func DeterminePriority(text string, errorCodes []string) domain.Priority {
	padded := " " + strings.Join(tokens(text), " ") + " "
	for _, kw := range highUrgency {
		if strings.Contains(padded, " "+kw+" ") {
			return domain.PriorityUrgent
		}
	}
	for _, kw := range lowUrgency {
		if strings.Contains(padded, " "+kw+" ") {
			return domain.PriorityLow
		}
	}
	for _, code := range errorCodes {
		if IsServerError(code) {
			return domain.PriorityHigh
		}
	}
	return domain.PriorityNormal
}

// DetectLanguage guesses "nl" or "en" from stop-word hits. It returns ""
// when the text gives no signal either way.
func DetectLanguage(text string) string {
	nl, en := 0, 0
	for _, tok := range tokens(text) {
		if _, ok := dutchStopWords[tok]; ok {
			nl++
		}
		if _, ok := englishStopWords[tok]; ok {
			en++
		}
	}
	switch {
	case nl > en:
		return "nl"
	case en > nl:
		return "en"
	}
	return ""
}

var frustrationMarkers = []string{
	"belachelijk", "schandalig", "waardeloos", "onacceptabel", "ridiculous",
	"unacceptable", "useless", "terrible", "nog steeds niet", "still not",
}

func isFrustrated(text string) bool {
	if strings.Contains(text, "!!!") {
		return true
	}
	lowered := lower(text)
	for _, m := range frustrationMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}
