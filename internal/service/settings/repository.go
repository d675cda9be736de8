package settings

import "context"

// Repository is the key/value settings store.
type Repository interface {
	// Get returns the raw value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set upserts a value.
	Set(ctx context.Context, key, value string) error
}
