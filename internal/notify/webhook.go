package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/deskpilot/support-triage/internal/pkg/httpretry"
)

// WebhookNotifier posts notices as JSON to an HTTP endpoint, typically a
// chat or ticketing integration. Transient failures are retried by the
// wrapped client.
type WebhookNotifier struct {
	client httpretry.HTTPDoer
	url    string
	secret string
}

// NewWebhookNotifier creates a webhook notifier. A nil client gets a
// retrying default client. secret, when set, is sent as a bearer token.
func NewWebhookNotifier(client httpretry.HTTPDoer, url, secret string) *WebhookNotifier {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &WebhookNotifier{client: client, url: url, secret: secret}
}

// SendEscalationNotice implements Notifier.
func (w *WebhookNotifier) SendEscalationNotice(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Conversation-ID", n.Key())
	if w.secret != "" {
		req.Header.Set("Authorization", "Bearer "+w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}
