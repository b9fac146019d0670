// Package notify delivers workflow notifications to users. Delivery is
// best-effort everywhere: a failed send is logged by the caller and never
// blocks a state transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Priority orders notifications in the receiving channel.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is one message to one user.
type Notification struct {
	UserID     string     `json:"user_id"`
	Type       string     `json:"type"`
	Priority   Priority   `json:"priority"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	ActionURL  string     `json:"action_url,omitempty"`
	CaseID     string     `json:"case_id,omitempty"`
	VariableID *uuid.UUID `json:"variable_id,omitempty"`
}

// Notifier is the notification sink boundary.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// webhookNotifier POSTs notifications to a corporate webhook endpoint.
type webhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a Notifier that POSTs JSON to url.
func NewWebhookNotifier(url string) Notifier {
	return &webhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Notifier = (*webhookNotifier)(nil)

func (w *webhookNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send to %s: %w", w.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: send to %s: status %d", w.url, resp.StatusCode)
	}
	return nil
}

// NoopNotifier discards notifications. Used when no webhook is configured.
type NoopNotifier struct{}

var _ Notifier = (*NoopNotifier)(nil)

func (NoopNotifier) Send(context.Context, Notification) error { return nil }

// MockNotifier records sent notifications for test assertions.
type MockNotifier struct {
	SendFunc func(ctx context.Context, n Notification) error
	Sent     []Notification
}

var _ Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Send(ctx context.Context, n Notification) error {
	m.Sent = append(m.Sent, n)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, n)
	}
	return nil
}
