package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/service/conversation"
)

// ConversationRepo implements conversation.Repository against PostgreSQL.
type ConversationRepo struct{ db *sql.DB }

// NewConversationRepo creates a Postgres-backed conversation repository.
func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

func (r *ConversationRepo) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var (
		lastPattern, assigned sql.NullString
		resolvedAt            sql.NullTime
		rating                sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.customer_id, c.subject, c.language, c.status, c.priority,
		       c.category, c.handled_by, c.last_pattern_id, c.pattern_outcome_tracked, c.assigned_to,
		       c.resolved_at, c.resolution_type, c.resolution_notes,
		       c.satisfaction_rating, c.satisfaction_feedback, c.created_at, c.updated_at,
		       cu.name, cu.email, cu.plan, cu.language
		FROM support_conversations c
		JOIN support_customers cu ON cu.id = c.customer_id
		WHERE c.id = $1
	`, id).Scan(
		&c.ID, &c.CustomerID, &c.Subject, &c.Language, &c.Status, &c.Priority,
		&c.Category, &c.HandledBy, &lastPattern, &c.PatternOutcomeTracked, &assigned,
		&resolvedAt, &c.ResolutionType, &c.ResolutionNotes,
		&rating, &c.SatisfactionFeedback, &c.CreatedAt, &c.UpdatedAt,
		&c.Customer.Name, &c.Customer.Email, &c.Customer.Plan, &c.Customer.Language,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.Customer.ID = c.CustomerID
	if lastPattern.Valid {
		c.LastPatternID = &lastPattern.String
	}
	if assigned.Valid {
		c.AssignedTo = &assigned.String
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	if rating.Valid {
		v := int(rating.Int64)
		c.SatisfactionRating = &v
	}
	return c, nil
}

// Create upserts the customer profile and inserts the conversation with its
// first message in one transaction.
func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, first *domain.Message) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO support_customers (id, name, email, plan, language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), support_customers.name),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), support_customers.email),
			plan = COALESCE(NULLIF(EXCLUDED.plan, ''), support_customers.plan),
			language = COALESCE(NULLIF(EXCLUDED.language, ''), support_customers.language),
			updated_at = NOW()
	`, c.CustomerID, c.Customer.Name, c.Customer.Email, c.Customer.Plan, c.Customer.Language); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO support_conversations
			(id, customer_id, subject, language, status, priority, category, handled_by,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.CustomerID, c.Subject, c.Language, c.Status, c.Priority, c.Category,
		c.HandledBy, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	if first != nil {
		first.ConversationID = c.ID
		if err := insertMessage(ctx, tx, first); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ConversationRepo) Update(ctx context.Context, id string, u conversation.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.Priority != nil {
		add("priority", *u.Priority)
	}
	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.Language != nil {
		add("language", *u.Language)
	}
	if u.HandledBy != nil {
		add("handled_by", *u.HandledBy)
	}
	if u.LastPatternID != nil {
		add("last_pattern_id", *u.LastPatternID)
	}
	if u.PatternOutcomeTracked != nil {
		add("pattern_outcome_tracked", *u.PatternOutcomeTracked)
	}
	if u.AssignedTo != nil {
		add("assigned_to", *u.AssignedTo)
	}
	if u.ClearResolution {
		sets = append(sets, "resolved_at = NULL", "resolution_type = ''", "resolution_notes = ''")
	} else {
		if u.ResolvedAt != nil {
			add("resolved_at", *u.ResolvedAt)
		}
		if u.ResolutionType != nil {
			add("resolution_type", *u.ResolutionType)
		}
		if u.ResolutionNotes != nil {
			add("resolution_notes", *u.ResolutionNotes)
		}
	}
	if u.SatisfactionRating != nil {
		add("satisfaction_rating", *u.SatisfactionRating)
	}
	if u.SatisfactionFeedback != nil {
		add("satisfaction_feedback", *u.SatisfactionFeedback)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")
	q := fmt.Sprintf("UPDATE support_conversations SET %s WHERE id = $%d", joinComma(sets), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return conversation.ErrNotFound
	}
	return nil
}
