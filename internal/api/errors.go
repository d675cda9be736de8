package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/deskpilot/support-triage/internal/engine"
	"github.com/deskpilot/support-triage/internal/pkg/httputil"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/deskpilot/support-triage/internal/service/conversation"
	"github.com/deskpilot/support-triage/internal/service/learning"
	"github.com/deskpilot/support-triage/internal/service/settings"
)

// busyRetryAfter is the Retry-After hint sent while a conversation is
// being evaluated.
const busyRetryAfter = "2"

// respondError maps service errors to HTTP responses. 4xx messages come
// from the sentinel errors and are safe to show; anything else is logged
// and answered with a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *settings.ConfigError
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		httputil.NotFound(w, "conversation not found")
	case errors.Is(err, learning.ErrPatternNotFound):
		httputil.NotFound(w, "pattern not found")
	case errors.Is(err, engine.ErrBusy):
		w.Header().Set("Retry-After", busyRetryAfter)
		httputil.Conflict(w, "conversation is being triaged, retry shortly")
	case errors.Is(err, conversation.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, conversation.ErrInvalidRating),
		errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, learning.ErrInvalidDraft):
		httputil.BadRequest(w, err.Error())
	case errors.As(err, &cfgErr):
		logger.Error("[api] triage settings misconfigured",
			"key", cfgErr.Key, "reason", cfgErr.Reason, "request_id", middleware.GetReqID(r.Context()))
		httputil.Unprocessable(w, "config_error", cfgErr.Error())
	default:
		logger.Error("[api] request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
	}
}

func logRequest(r *http.Request, status int, elapsed time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	fields := []interface{}{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"duration_ms", elapsed.Milliseconds(),
	}
	if status >= 500 {
		logger.Warn("[api] request", fields...)
		return
	}
	logger.Debug("[api] request", fields...)
}
