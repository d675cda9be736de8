package triage

import (
	"regexp"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// Source says where a triage call came from.
type Source string

const (
	SourceCustomerMessage  Source = "customer_message"
	SourceFollowUp         Source = "follow_up"
	SourceAdminInstruction Source = "admin_instruction"
)

// Outcome is the single terminal action chosen for one evaluation.
type Outcome string

const (
	OutcomeAutoReply       Outcome = "auto_reply"
	OutcomeAdminReply      Outcome = "admin_reply"
	OutcomeEscalate        Outcome = "escalate"
	OutcomeSuggestArticles Outcome = "suggest_articles"
)

// EscalationReason records which guard rail forced a hand-off.
type EscalationReason string

const (
	ReasonHumanRequested    EscalationReason = "human_requested"
	ReasonResponseLimit     EscalationReason = "response_limit"
	ReasonLowConfidence     EscalationReason = "low_confidence"
	ReasonAutoReplyDisabled EscalationReason = "auto_reply_disabled"
	ReasonEvaluationFailed  EscalationReason = "evaluation_failed"
)

// TargetLevel is the handled_by level an escalation for r moves towards.
func (r EscalationReason) TargetLevel() domain.HandledBy {
	if r == ReasonHumanRequested {
		return domain.HandledByHuman
	}
	return domain.HandledByHybrid
}

// humanRequestPatterns detect requests to reach a person, rejections of the
// bot and phone-support requests, in Dutch and English.
var humanRequestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(medewerker|mens|persoon|iemand|collega)\b.*\b(spreken|praten|bellen|contact)\b`),
	regexp.MustCompile(`(?i)\b(spreken|praten)\b.*\b(medewerker|mens|persoon)\b`),
	regexp.MustCompile(`(?i)\b(echte|levende)\s+(persoon|mens|medewerker)\b`),
	regexp.MustCompile(`(?i)\bgeen\s+(bot|robot|chatbot|computer|automatisch\w*)\b`),
	regexp.MustCompile(`(?i)\b(bel|bellen)\s+(me|mij)\b|\btelefonisch\w*\b|\bterugbel\w*\b`),
	regexp.MustCompile(`(?i)\b(speak|talk|chat)\b.*\b(human|person|agent|someone|representative|employee|staff)\b`),
	regexp.MustCompile(`(?i)\b(real|actual|live)\s+(person|human|agent)\b`),
	regexp.MustCompile(`(?i)\b(not|no)\s+(a\s+)?(bot|robot|machine)\b|\bstop\s+(the\s+)?bot\b`),
	regexp.MustCompile(`(?i)\b(call|phone)\s+me\b|\bphone\s+support\b|\bcall\s*back\b`),
}

// IsHumanRequest reports whether text asks for a human.
func IsHumanRequest(text string) bool {
	for _, re := range humanRequestPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Input is everything one guard evaluation may look at. History is the
// persisted message history in creation order; the guard never keeps
// state between calls.
type Input struct {
	Conversation *domain.Conversation
	Message      *domain.Message
	History      []domain.Message
	Source       Source
	AdminContent string
	Analysis     Analysis
	Matches      []Match
	Articles     []domain.KnowledgeArticle
	Settings     domain.Settings
}

// Decision is the guard's single outcome plus the one customer-facing
// message that goes with it.
type Decision struct {
	Outcome    Outcome           `json:"outcome"`
	Reason     EscalationReason  `json:"reason,omitempty"`
	Reply      string            `json:"reply"`
	Sender     domain.SenderType `json:"sender"`
	Pattern    *domain.Pattern   `json:"pattern,omitempty"`
	Confidence float64           `json:"confidence"`
	Articles   []string          `json:"articles,omitempty"`
	Language   string            `json:"language"`
	HandledBy  domain.HandledBy  `json:"handled_by,omitempty"`
}

// Escalates reports whether the decision hands the conversation over.
func (d Decision) Escalates() bool { return d.Outcome == OutcomeEscalate }

// Guard applies the guard rails in fixed precedence: human request,
// response limit, admin instruction, then the standard flow.
type Guard struct {
	renderer *Renderer
}

// NewGuard creates a guard. A nil renderer gets a fresh one.
func NewGuard(r *Renderer) *Guard {
	if r == nil {
		r = NewRenderer()
	}
	return &Guard{renderer: r}
}

// Decide picks exactly one outcome for in.
func (g *Guard) Decide(in Input) Decision {
	lang := ReplyLanguage(in.Conversation, in.Analysis.Language, in.Settings.DefaultLanguage)

	if in.Message != nil && IsHumanRequest(in.Message.Content) {
		return escalation(ReasonHumanRequested, lang, nil)
	}

	aiCount := domain.CountBySender(in.History, domain.SenderAI)
	if aiCount >= in.Settings.MaxAIResponses {
		if aiCount > in.Settings.MaxAIResponses {
			logger.Error("[triage.Guard] invariant violation: ai response count above cap",
				"conversation_id", conversationID(in.Conversation),
				"count", aiCount, "cap", in.Settings.MaxAIResponses)
		}
		return escalation(ReasonResponseLimit, lang, nil)
	}

	if in.Source == SourceAdminInstruction && in.AdminContent != "" {
		return Decision{
			Outcome:    OutcomeAdminReply,
			Reply:      in.AdminContent,
			Sender:     domain.SenderAI,
			Confidence: 1,
			Language:   lang,
		}
	}

	articles := in.Articles
	if limit := in.Settings.MaxArticleSuggestions; limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}

	if !in.Settings.AutoReplyEnabled {
		return escalation(ReasonAutoReplyDisabled, lang, nil)
	}

	top, ok := Top(in.Matches)
	if ok && top.AutoRespondEligible() && top.Confidence >= in.Settings.ConfidenceThreshold {
		tmpl := top.Pattern.Response(lang, in.Settings.DefaultLanguage)
		if tmpl != "" {
			var customer domain.Customer
			if in.Conversation != nil {
				customer = in.Conversation.Customer
			}
			return Decision{
				Outcome:    OutcomeAutoReply,
				Reply:      g.renderer.Render(tmpl, customer),
				Sender:     domain.SenderAI,
				Pattern:    top.Pattern,
				Confidence: top.Confidence,
				Language:   lang,
			}
		}
	}

	confidence := 0.0
	if ok {
		confidence = top.Confidence
	}

	if confidence < in.Settings.EscalationFloor {
		d := escalation(ReasonLowConfidence, lang, articles)
		d.Confidence = confidence
		return d
	}

	d := Decision{
		Outcome:    OutcomeSuggestArticles,
		Reply:      Text(lang, MsgHandOff),
		Sender:     domain.SenderAI,
		Confidence: confidence,
		Language:   lang,
	}
	if len(articles) > 0 {
		d.Reply = ArticleList(lang, articles)
		d.Articles = slugs(articles)
	}
	return d
}

func escalation(reason EscalationReason, lang string, articles []domain.KnowledgeArticle) Decision {
	d := Decision{
		Outcome:   OutcomeEscalate,
		Reason:    reason,
		Reply:     Text(lang, MessageKey(reason)),
		Sender:    domain.SenderSystem,
		Language:  lang,
		HandledBy: reason.TargetLevel(),
	}
	if len(articles) > 0 {
		d.Reply += "\n\n" + ArticleList(lang, articles)
		d.Articles = slugs(articles)
	}
	return d
}

// EvaluationFailed is the fail-safe decision used when an evaluation
// cannot complete.
func EvaluationFailed(lang string) Decision {
	return escalation(ReasonEvaluationFailed, lang, nil)
}

// ReplyLanguage picks the language for customer-facing text: the
// conversation, then the customer profile, then the detected language,
// then def. Languages without a catalog fall back to def.
func ReplyLanguage(c *domain.Conversation, detected, def string) string {
	candidates := []string{detected, def}
	if c != nil {
		candidates = []string{c.Language, c.Customer.Language, detected, def}
	}
	for _, l := range candidates {
		if l != "" && SupportedLanguage(l) {
			return normalizeLang(l)
		}
	}
	return "nl"
}

func slugs(articles []domain.KnowledgeArticle) []string {
	out := make([]string, 0, len(articles))
	for i := range articles {
		out = append(out, articles[i].Slug)
	}
	return out
}

func conversationID(c *domain.Conversation) string {
	if c == nil {
		return ""
	}
	return c.ID
}
