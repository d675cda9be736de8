package domain

import "time"

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderAI     SenderType = "ai"
	SenderAdmin  SenderType = "admin"
	SenderSystem SenderType = "system"
)

// Message is a single append-only entry in a conversation. System messages
// that hand the conversation to support carry their EscalationReason.
type Message struct {
	ID                string     `json:"id" db:"id"`
	ConversationID    string     `json:"conversation_id" db:"conversation_id"`
	SenderType        SenderType `json:"sender_type" db:"sender_type"`
	SenderID          string     `json:"sender_id,omitempty" db:"sender_id"`
	Content           string     `json:"content" db:"content"`
	AIConfidence      *float64   `json:"ai_confidence,omitempty" db:"ai_confidence"`
	PatternID         *string    `json:"pattern_id,omitempty" db:"pattern_id"`
	SuggestedArticles []string   `json:"suggested_articles,omitempty" db:"suggested_articles"`
	IsInternal        bool       `json:"is_internal" db:"is_internal"`
	EscalationReason  string     `json:"escalation_reason,omitempty" db:"escalation_reason"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// CountBySender returns how many messages in history were authored by sender.
func CountBySender(history []Message, sender SenderType) int {
	n := 0
	for i := range history {
		if history[i].SenderType == sender {
			n++
		}
	}
	return n
}

// LastBySender returns the most recent message authored by sender, or nil.
// History is expected in creation order.
func LastBySender(history []Message, sender SenderType) *Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SenderType == sender {
			return &history[i]
		}
	}
	return nil
}

// FirstBySender returns the earliest message authored by sender, or nil.
func FirstBySender(history []Message, sender SenderType) *Message {
	for i := range history {
		if history[i].SenderType == sender {
			return &history[i]
		}
	}
	return nil
}
