package triage

import (
	"strings"

	"github.com/deskpilot/support-triage/internal/domain"
)

// MessageKey identifies a system text in the localized catalog.
type MessageKey string

const (
	MsgHumanRequested    MessageKey = "human_requested"
	MsgResponseLimit     MessageKey = "response_limit"
	MsgLowConfidence     MessageKey = "low_confidence"
	MsgAutoReplyDisabled MessageKey = "auto_reply_disabled"
	MsgEvaluationFailed  MessageKey = "evaluation_failed"
	MsgArticleIntro      MessageKey = "article_intro"
	MsgHandOff           MessageKey = "hand_off"
)

var catalog = map[string]map[MessageKey]string{
	"nl": {
		MsgHumanRequested:    "Geen probleem, ik zet je gesprek door naar een medewerker van ons supportteam. Je hoort zo snel mogelijk van ons.",
		MsgResponseLimit:     "Ik heb een collega van het supportteam gevraagd om met je mee te kijken. Zij nemen het gesprek zo snel mogelijk over.",
		MsgLowConfidence:     "Sorry, ik kan je vraag niet direct beantwoorden. Ik heb een medewerker van ons supportteam ingeschakeld die zo snel mogelijk contact met je opneemt.",
		MsgAutoReplyDisabled: "Bedankt voor je bericht. Een medewerker van ons supportteam neemt zo snel mogelijk contact met je op.",
		MsgEvaluationFailed:  "Bedankt voor je bericht. Een medewerker van ons supportteam bekijkt je vraag en neemt zo snel mogelijk contact met je op.",
		MsgArticleIntro:      "Misschien helpen deze artikelen je alvast verder:",
		MsgHandOff:           "Bedankt voor je bericht. We bekijken je vraag en komen zo snel mogelijk bij je terug.",
	},
	"en": {
		MsgHumanRequested:    "No problem, I am passing your conversation to a member of our support team. You will hear from us as soon as possible.",
		MsgResponseLimit:     "I have asked a colleague from the support team to look into this with you. They will take over the conversation shortly.",
		MsgLowConfidence:     "Sorry, I cannot answer your question right away. I have brought in a member of our support team who will get back to you as soon as possible.",
		MsgAutoReplyDisabled: "Thanks for your message. A member of our support team will get back to you as soon as possible.",
		MsgEvaluationFailed:  "Thanks for your message. A member of our support team is looking at your question and will get back to you as soon as possible.",
		MsgArticleIntro:      "These articles might help you in the meantime:",
		MsgHandOff:           "Thanks for your message. We are looking into your question and will get back to you as soon as possible.",
	},
}

// Text returns the catalog entry for lang, falling back to Dutch.
func Text(lang string, key MessageKey) string {
	if m, ok := catalog[normalizeLang(lang)]; ok {
		if s := m[key]; s != "" {
			return s
		}
	}
	return catalog["nl"][key]
}

// SupportedLanguage reports whether the catalog has texts for lang.
func SupportedLanguage(lang string) bool {
	_, ok := catalog[normalizeLang(lang)]
	return ok
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

// ArticleList renders suggested articles as one bullet per article.
func ArticleList(lang string, articles []domain.KnowledgeArticle) string {
	var b strings.Builder
	b.WriteString(Text(lang, MsgArticleIntro))
	for i := range articles {
		b.WriteString("\n- ")
		b.WriteString(articles[i].TitleFor(normalizeLang(lang)))
		b.WriteString(" (/help/")
		b.WriteString(articles[i].Slug)
		b.WriteString(")")
	}
	return b.String()
}
