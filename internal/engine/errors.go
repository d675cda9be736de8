package engine

import (
	"errors"

	"github.com/deskpilot/support-triage/internal/service/conversation"
)

var (
	// ErrBusy is returned when another evaluation holds the conversation
	// lease. Callers retry later.
	ErrBusy = errors.New("conversation is being evaluated")

	// ErrNotFound is returned for unknown conversations.
	ErrNotFound = conversation.ErrNotFound

	// ErrInvalidInput is returned for malformed trigger or inbound input.
	ErrInvalidInput = errors.New("invalid input")
)
