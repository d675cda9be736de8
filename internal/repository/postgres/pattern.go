package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/service/learning"
)

// PatternRepo implements learning.Repository and engine.PatternSource.
type PatternRepo struct{ db *sql.DB }

// NewPatternRepo creates a Postgres-backed pattern repository.
func NewPatternRepo(db *sql.DB) *PatternRepo { return &PatternRepo{db: db} }

const patternColumns = `id, name, keywords, expression, error_codes, category, responses,
		       min_confidence, is_active, times_triggered, times_resolved, times_escalated,
		       created_by, created_at, updated_at`

// ActivePatterns returns the patterns the matcher may use.
func (r *PatternRepo) ActivePatterns(ctx context.Context) ([]*domain.Pattern, error) {
	ps, err := r.query(ctx, `SELECT `+patternColumns+` FROM support_patterns WHERE is_active = true ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Pattern, len(ps))
	for i := range ps {
		out[i] = &ps[i]
	}
	return out, nil
}

// List returns every pattern, active or not.
func (r *PatternRepo) List(ctx context.Context) ([]domain.Pattern, error) {
	return r.query(ctx, `SELECT `+patternColumns+` FROM support_patterns ORDER BY created_at, id`)
}

// TrackUsage bumps the counters in a single statement so concurrent
// outcomes never lose an increment.
func (r *PatternRepo) TrackUsage(ctx context.Context, patternID string, resolved bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE support_patterns SET
			times_triggered = times_triggered + 1,
			times_resolved  = times_resolved + CASE WHEN $2 THEN 1 ELSE 0 END,
			times_escalated = times_escalated + CASE WHEN $2 THEN 0 ELSE 1 END,
			updated_at = NOW()
		WHERE id = $1
	`, patternID, resolved)
	if err != nil {
		return fmt.Errorf("track pattern usage: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return learning.ErrPatternNotFound
	}
	return nil
}

func (r *PatternRepo) Create(ctx context.Context, p *domain.Pattern) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	keywords, err := jsonArray(p.Keywords)
	if err != nil {
		return err
	}
	codes, err := jsonArray(p.ErrorCodes)
	if err != nil {
		return err
	}
	responses, err := jsonObject(p.Responses)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO support_patterns
			(id, name, keywords, expression, error_codes, category, responses,
			 min_confidence, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, p.ID, p.Name, keywords, p.Expression, codes, p.Category, responses,
		p.MinConfidence, p.IsActive, p.CreatedBy)
	if err != nil {
		return fmt.Errorf("create pattern: %w", err)
	}
	return nil
}

func (r *PatternRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Pattern, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var out []domain.Pattern
	for rows.Next() {
		var (
			p                          domain.Pattern
			keywords, codes, responses []byte
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &keywords, &p.Expression, &codes, &p.Category, &responses,
			&p.MinConfidence, &p.IsActive, &p.TimesTriggered, &p.TimesResolved, &p.TimesEscalated,
			&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		if err := decodeJSON(keywords, &p.Keywords); err != nil {
			return nil, err
		}
		if err := decodeJSON(codes, &p.ErrorCodes); err != nil {
			return nil, err
		}
		if err := decodeJSON(responses, &p.Responses); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
