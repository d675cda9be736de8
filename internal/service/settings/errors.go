package settings

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories for keys that have no row.
var ErrNotFound = errors.New("setting not found")

// ConfigError reports a required setting that is missing or unusable.
// It is fatal for the evaluation and raised before any mutation.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
