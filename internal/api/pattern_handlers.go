package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/pkg/httputil"
	"github.com/deskpilot/support-triage/internal/service/learning"
)

// SuggestionResponse wraps a pattern draft. Eligible is false when the
// conversation does not yet hold enough to learn from.
type SuggestionResponse struct {
	Eligible   bool                      `json:"eligible"`
	Suggestion *domain.PatternSuggestion `json:"suggestion,omitempty"`
}

type saveSuggestionRequest struct {
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

// GetPatternSuggestion drafts a pattern from a handled conversation.
//
//	GET /api/patterns/suggestions/{id}
func (h *Handlers) GetPatternSuggestion(w http.ResponseWriter, r *http.Request) {
	s, err := h.learning.SuggestPattern(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, SuggestionResponse{Eligible: s != nil, Suggestion: s})
}

// SavePatternSuggestion stores the draft as an inactive pattern waiting
// for review.
//
//	POST /api/patterns/suggestions/{id}
func (h *Handlers) SavePatternSuggestion(w http.ResponseWriter, r *http.Request) {
	var req saveSuggestionRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	s, err := h.learning.SuggestPattern(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if s == nil {
		httputil.Unprocessable(w, "not_eligible", "conversation has too little to learn from")
		return
	}
	p, err := h.learning.SaveSuggestion(r.Context(), s, req.Name, req.CreatedBy)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.Created(w, p)
}

// PatternEffectiveness lists every pattern's success rate, most used first.
//
//	GET /api/patterns/effectiveness
func (h *Handlers) PatternEffectiveness(w http.ResponseWriter, r *http.Request) {
	rows, err := h.learning.Effectiveness(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []learning.Effectiveness{}
	}
	httputil.OK(w, map[string]interface{}{"patterns": rows, "count": len(rows)})
}
