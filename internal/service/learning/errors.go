package learning

import "errors"

// Sentinel errors for the learning service layer.
var (
	ErrPatternNotFound = errors.New("pattern not found")
	ErrInvalidDraft    = errors.New("invalid pattern draft")
)
