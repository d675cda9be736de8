package conversation

import "errors"

// Sentinel errors for the conversation service layer.
var (
	ErrNotFound           = errors.New("conversation not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrEmptyMessage       = errors.New("message content is empty")
)
