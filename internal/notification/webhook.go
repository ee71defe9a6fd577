package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tphakala/platewatch/internal/errors"
)

const (
	// defaultWebhookTimeout is the default timeout for webhook HTTP requests
	defaultWebhookTimeout = 30 * time.Second

	// maxErrorBodySize limits error response body reading
	maxErrorBodySize = 1024

	webhookUserAgent = "platewatch-webhook/1.0"
)

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Priority  string         `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Plate     string         `json:"plate,omitempty"`
	ImageRef  string         `json:"image_ref,omitempty"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// WebhookProvider posts notifications as JSON to an HTTP endpoint.
type WebhookProvider struct {
	name    string
	enabled bool
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookProvider returns a provider posting to endpoint. A nil client
// gets a private one with the given timeout.
func NewWebhookProvider(name string, enabled bool, endpoint string, headers map[string]string, timeout time.Duration, client *http.Client) *WebhookProvider {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	wp := &WebhookProvider{
		name:    strings.TrimSpace(name),
		enabled: enabled,
		url:     endpoint,
		headers: maps.Clone(headers),
		client:  client,
	}
	if wp.name == "" {
		wp.name = "webhook"
	}
	return wp
}

func (w *WebhookProvider) Name() string    { return w.name }
func (w *WebhookProvider) IsEnabled() bool { return w.enabled }

// ValidateConfig checks the endpoint URL.
func (w *WebhookProvider) ValidateConfig() error {
	if !w.enabled {
		return nil
	}
	u, err := url.Parse(w.url)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Newf("webhook URL must be an absolute http(s) URL").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("provider", w.name).
			Build()
	}
	return nil
}

// Send posts the notification. Any non-2xx response is an error.
func (w *WebhookProvider) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(buildWebhookPayload(n))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Newf("webhook request failed: %s", errors.Scrub(err.Error())).
			Component("notification").
			Category(errors.CategoryNetwork).
			Context("provider", w.name).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return errors.Newf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))).
			Component("notification").
			Category(errors.CategoryHTTP).
			Context("provider", w.name).
			Context("status", resp.StatusCode).
			Build()
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func buildWebhookPayload(n *Notification) WebhookPayload {
	return WebhookPayload{
		ID:        n.ID,
		Type:      string(n.Type),
		Priority:  string(n.Priority),
		Title:     n.Title,
		Message:   n.Message,
		Plate:     n.Plate,
		ImageRef:  n.ImageRef,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
		Metadata:  n.Metadata,
	}
}
