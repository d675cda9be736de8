package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

// Schema is the DDL for every support table. Statements are idempotent.
//
//go:embed schema.sql
var Schema string

// Migrate applies Schema statement by statement.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	n := 0
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return n, fmt.Errorf("apply schema statement %d: %w", n+1, err)
		}
		n++
	}
	return n, nil
}
