package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/engine"
	"github.com/deskpilot/support-triage/internal/pkg/httputil"
	"github.com/deskpilot/support-triage/internal/service/conversation"
	"github.com/deskpilot/support-triage/internal/triage"
)

// ConversationView is a conversation with its message log.
type ConversationView struct {
	Conversation *domain.Conversation `json:"conversation"`
	Messages     []domain.Message     `json:"messages"`
}

type customerMessageRequest struct {
	CustomerID string          `json:"customer_id"`
	Customer   domain.Customer `json:"customer"`
	Subject    string          `json:"subject"`
	Language   string          `json:"language"`
	Content    string          `json:"content"`
}

type adminMessageRequest struct {
	AdminID  string `json:"admin_id"`
	Content  string `json:"content"`
	Internal bool   `json:"internal"`
	// Instruct relays the note to the customer through the assistant.
	Instruct bool `json:"instruct"`
}

type escalateRequest struct {
	Reason  string `json:"reason"`
	AdminID string `json:"admin_id"`
}

type rateRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

type assignRequest struct {
	AdminID string `json:"admin_id"`
}

// CreateConversation opens a conversation with the customer's first
// message and triages it.
//
//	POST /api/conversations
func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req customerMessageRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.triager.HandleInbound(r.Context(), engine.InboundInput{
		CustomerID: req.CustomerID,
		Customer:   req.Customer,
		Subject:    req.Subject,
		Language:   req.Language,
		Content:    req.Content,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.Created(w, res)
}

// GetConversation returns the conversation and its full log, internal
// notes included.
//
//	GET /api/conversations/{id}
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.conversations.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	msgs, err := h.conversations.Messages(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, ConversationView{Conversation: c, Messages: msgs})
}

// PostCustomerMessage appends a customer message and triages it. A busy
// conversation answers 202 when the evaluation was deferred to the queue.
//
//	POST /api/conversations/{id}/messages
func (h *Handlers) PostCustomerMessage(w http.ResponseWriter, r *http.Request) {
	var req customerMessageRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.triager.HandleInbound(r.Context(), engine.InboundInput{
		ConversationID: chi.URLParam(r, "id"),
		Content:        req.Content,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if res.Deferred {
		httputil.JSON(w, http.StatusAccepted, res)
		return
	}
	httputil.OK(w, res)
}

// TriggerTriage re-runs the evaluation for a conversation. It does
// nothing when the latest customer message was already answered.
//
//	POST /api/conversations/{id}/triage
func (h *Handlers) TriggerTriage(w http.ResponseWriter, r *http.Request) {
	res, err := h.triager.Trigger(r.Context(), engine.TriggerInput{
		ConversationID: chi.URLParam(r, "id"),
		Source:         triage.SourceFollowUp,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, res)
}

// PostAdminMessage records a reply or an internal note from support
// staff. With instruct set the note is stored internally and the assistant
// relays it to the customer.
//
//	POST /api/conversations/{id}/admin-messages
func (h *Handlers) PostAdminMessage(w http.ResponseWriter, r *http.Request) {
	var req adminMessageRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AdminID) == "" {
		httputil.BadRequest(w, "admin_id is required")
		return
	}
	id := chi.URLParam(r, "id")
	internal := req.Internal || req.Instruct

	m, err := h.conversations.AppendAdminMessage(r.Context(), id, req.AdminID, req.Content, internal)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !req.Instruct {
		httputil.Created(w, m)
		return
	}

	res, err := h.triager.Trigger(r.Context(), engine.TriggerInput{
		ConversationID: id,
		Source:         triage.SourceAdminInstruction,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.Created(w, map[string]interface{}{"note": m, "triage": res})
}

// EscalateConversation hands the conversation to a human by hand.
//
//	POST /api/conversations/{id}/escalate
func (h *Handlers) EscalateConversation(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}
	if _, err := h.conversations.Escalate(r.Context(), chi.URLParam(r, "id"), conversation.EscalateInput{
		Level:  domain.HandledByHuman,
		Reason: reason,
	}); err != nil {
		respondError(w, r, err)
		return
	}
	if req.AdminID != "" {
		if err := h.conversations.Assign(r.Context(), chi.URLParam(r, "id"), req.AdminID); err != nil {
			respondError(w, r, err)
			return
		}
	}
	h.respondConversation(w, r)
}

// ResolveConversation marks the conversation resolved.
//
//	POST /api/conversations/{id}/resolve
func (h *Handlers) ResolveConversation(w http.ResponseWriter, r *http.Request) {
	var req conversation.ResolveInput
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.conversations.Resolve(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondConversation(w, r)
}

// ReopenConversation returns a finished conversation to open.
//
//	POST /api/conversations/{id}/reopen
func (h *Handlers) ReopenConversation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.conversations.Reopen)
}

// CloseConversation closes the conversation without a resolution.
//
//	POST /api/conversations/{id}/close
func (h *Handlers) CloseConversation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.conversations.Close)
}

// MarkSpam flags the conversation as spam.
//
//	POST /api/conversations/{id}/spam
func (h *Handlers) MarkSpam(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.conversations.MarkSpam)
}

// ArchiveConversation archives the conversation.
//
//	POST /api/conversations/{id}/archive
func (h *Handlers) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.conversations.Archive)
}

// RateConversation stores the customer's satisfaction rating.
//
//	POST /api/conversations/{id}/rate
func (h *Handlers) RateConversation(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.conversations.Rate(r.Context(), chi.URLParam(r, "id"), req.Rating, req.Feedback); err != nil {
		respondError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// AssignConversation gives the conversation to a support agent.
//
//	POST /api/conversations/{id}/assign
func (h *Handlers) AssignConversation(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AdminID) == "" {
		httputil.BadRequest(w, "admin_id is required")
		return
	}
	if err := h.conversations.Assign(r.Context(), chi.URLParam(r, "id"), req.AdminID); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondConversation(w, r)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondConversation(w, r)
}

func (h *Handlers) respondConversation(w http.ResponseWriter, r *http.Request) {
	c, err := h.conversations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	httputil.OK(w, c)
}
