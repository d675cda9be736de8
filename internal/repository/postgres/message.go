package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deskpilot/support-triage/internal/domain"
)

// MessageRepo implements conversation.MessageRepository. Messages are never
// updated; order is the insertion sequence.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed message log.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

func (r *MessageRepo) Add(ctx context.Context, m *domain.Message) error {
	return insertMessage(ctx, r.db, m)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	articles, err := jsonArray(m.SuggestedArticles)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO support_messages
			(id, conversation_id, sender_type, sender_id, content, ai_confidence,
			 pattern_id, suggested_articles, is_internal, escalation_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, m.ID, m.ConversationID, m.SenderType, m.SenderID, m.Content, nullFloat(m.AIConfidence),
		nullString(m.PatternID), articles, m.IsInternal, m.EscalationReason, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

func (r *MessageRepo) List(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_type, sender_id, content, ai_confidence,
		       pattern_id, suggested_articles, is_internal, escalation_reason, created_at
		FROM support_messages
		WHERE conversation_id = $1
		ORDER BY seq
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m          domain.Message
			confidence sql.NullFloat64
			patternID  sql.NullString
			articles   []byte
		)
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderType, &m.SenderID, &m.Content, &confidence,
			&patternID, &articles, &m.IsInternal, &m.EscalationReason, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if confidence.Valid {
			m.AIConfidence = &confidence.Float64
		}
		if patternID.Valid {
			m.PatternID = &patternID.String
		}
		if err := decodeJSON(articles, &m.SuggestedArticles); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
