package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/deskpilot/support-triage/internal/pkg/httputil"
	"github.com/deskpilot/support-triage/internal/service/settings"
)

type settingRequest struct {
	Value string `json:"value"`
}

// GetSettings returns the settings the next evaluation will use. A
// misconfigured store answers 422 naming the key.
//
//	GET /api/settings
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Snapshot(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"settings": s,
		"keys":     settings.Keys(),
	})
}

// PutSetting validates and stores one setting. It applies to the next
// evaluation without a restart.
//
//	PUT /api/settings/{key}
func (h *Handlers) PutSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, map[string]string{"key": key, "value": req.Value})
}

// NotifyStats reports escalation notice delivery counters.
//
//	GET /api/notify/stats
func (h *Handlers) NotifyStats(w http.ResponseWriter, r *http.Request) {
	if h.notices == nil {
		httputil.NotFound(w, "notifications not configured")
		return
	}
	httputil.OK(w, h.notices.Stats())
}
