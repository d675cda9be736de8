package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/support-triage/internal/notify"
)

// handlerDoer serves requests in-process so no connections outlive the test.
type handlerDoer struct{ h http.Handler }

func (d handlerDoer) Do(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	d.h.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func TestWebhookNotifier(t *testing.T) {
	var got notify.Notice
	doer := handlerDoer{http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "conv-1", r.Header.Get("X-Conversation-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})}

	n := notify.NewWebhookNotifier(doer, "https://hooks.example.com/support", "s3cret")
	require.NoError(t, n.SendEscalationNotice(context.Background(), sampleNotice("conv-1")))
	assert.Equal(t, "conv-1", got.Conversation.ID)
	assert.Equal(t, "human_requested", got.Summary.Reason)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	doer := handlerDoer{http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel archived", http.StatusGone)
	})}

	n := notify.NewWebhookNotifier(doer, "https://hooks.example.com/support", "")
	err := n.SendEscalationNotice(context.Background(), sampleNotice("conv-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
	assert.Contains(t, err.Error(), "channel archived")
}
