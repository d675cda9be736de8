package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSONB columns are written as JSON text and read back into Go values.
// Nil slices and maps are stored as empty JSON collections.

func jsonArray(v []string) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode array: %w", err)
	}
	return string(b), nil
}

func jsonObject(v map[string]string) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode object: %w", err)
	}
	return string(b), nil
}

func decodeJSON(raw []byte, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

// likePattern escapes LIKE wildcards in term and wraps it for a contains
// match.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func joinComma(parts []string) string {
	return strings.Join(parts, ", ")
}
