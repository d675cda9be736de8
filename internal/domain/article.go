package domain

import "time"

// KnowledgeArticle is a published help-center article. The engine only reads
// articles to suggest them; it never mutates them.
type KnowledgeArticle struct {
	ID           string            `json:"id" db:"id"`
	Slug         string            `json:"slug" db:"slug"`
	Title        map[string]string `json:"title" db:"title"`
	Content      map[string]string `json:"content" db:"content"`
	Tags         []string          `json:"tags" db:"tags"`
	Published    bool              `json:"published" db:"published"`
	ViewCount    int               `json:"view_count" db:"view_count"`
	HelpfulCount int               `json:"helpful_count" db:"helpful_count"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// TitleFor returns the localized title, falling back to any title present.
func (a *KnowledgeArticle) TitleFor(lang string) string {
	if t := a.Title[lang]; t != "" {
		return t
	}
	if t := firstByKey(a.Title); t != "" {
		return t
	}
	return a.Slug
}
