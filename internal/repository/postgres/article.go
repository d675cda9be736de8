package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/deskpilot/support-triage/internal/domain"
)

// DefaultArticleLimit caps the articles returned per keyword.
const DefaultArticleLimit = 5

// ArticleRepo searches published knowledge-base articles. It never writes.
type ArticleRepo struct {
	db    *sql.DB
	limit int
}

// NewArticleRepo creates a Postgres-backed article search.
func NewArticleRepo(db *sql.DB) *ArticleRepo {
	return &ArticleRepo{db: db, limit: DefaultArticleLimit}
}

// SearchArticles returns published articles whose title, content or tags
// contain keyword. Articles with a title in language rank first, then the
// most helpful ones.
func (r *ArticleRepo) SearchArticles(ctx context.Context, keyword, language string) ([]domain.KnowledgeArticle, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, title, content, tags, published, view_count, helpful_count,
		       created_at, updated_at
		FROM support_articles
		WHERE published = true
		  AND (title::text ILIKE $1 OR content::text ILIKE $1 OR tags::text ILIKE $1)
		ORDER BY jsonb_exists(title, $2) DESC, helpful_count DESC, view_count DESC, slug
		LIMIT $3
	`, likePattern(keyword), language, r.limit)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()

	var out []domain.KnowledgeArticle
	for rows.Next() {
		var (
			a                    domain.KnowledgeArticle
			title, content, tags []byte
		)
		if err := rows.Scan(
			&a.ID, &a.Slug, &title, &content, &tags, &a.Published, &a.ViewCount, &a.HelpfulCount,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		if err := decodeJSON(title, &a.Title); err != nil {
			return nil, err
		}
		if err := decodeJSON(content, &a.Content); err != nil {
			return nil, err
		}
		if err := decodeJSON(tags, &a.Tags); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
