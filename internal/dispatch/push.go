package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lessonpulse/notify/internal/domain"
)

// PushSink delivers admitted notifications to the platform push provider.
// Provider failure is surfaced to the dispatcher, which isolates it to this
// channel.
type PushSink struct {
	provider domain.PushProvider
}

// NewPushSink creates a push sink over the given provider
func NewPushSink(provider domain.PushProvider) *PushSink {
	return &PushSink{provider: provider}
}

// Channel returns the push channel
func (s *PushSink) Channel() domain.Channel {
	return domain.ChannelPush
}

// Deliver forwards the notification to the provider
func (s *PushSink) Deliver(ctx context.Context, n *domain.Notification, grouped int) error {
	return s.provider.Show(ctx, n, grouped)
}

// WebhookProvider is a domain.PushProvider that POSTs notifications to an
// HTTP endpoint. The server binary uses it; embedded hosts bind the real
// platform push API instead. Permission requests always succeed since a
// webhook has no permission model.
type WebhookProvider struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewWebhookProvider creates a provider posting to url, optionally with a
// bearer token
func NewWebhookProvider(url, token string) *WebhookProvider {
	return &WebhookProvider{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RequestPermission reports granted; webhooks need no user consent
func (w *WebhookProvider) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	return domain.PermissionGranted, nil
}

type webhookMessage struct {
	ID       string                 `json:"id"`
	Category string                 `json:"category"`
	Priority string                 `json:"priority"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	Grouped  int                    `json:"grouped,omitempty"`
	Actions  []domain.Action        `json:"actions,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Show POSTs the notification as JSON
func (w *WebhookProvider) Show(ctx context.Context, n *domain.Notification, grouped int) error {
	msg := webhookMessage{
		ID:       n.ID,
		Category: string(n.Category),
		Priority: n.Priority.String(),
		Title:    n.Title,
		Body:     n.Body,
		Grouped:  grouped,
		Actions:  n.Actions,
		Metadata: n.Metadata,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned status: %s", resp.Status)
	}

	return nil
}
