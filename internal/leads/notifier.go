package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatwire/chatwire/internal/models"
)

// DefaultWebhookTimeout bounds a single webhook delivery attempt.
const DefaultWebhookTimeout = 5 * time.Second

// NotifierOpts holds configuration options for the notifier.
type NotifierOpts struct {
	// Timeout bounds each delivery attempt. Zero means DefaultWebhookTimeout.
	Timeout time.Duration
	// HTTPClient overrides the HTTP client, mainly for tests.
	HTTPClient *http.Client
}

// NotifierOption defines a functional option for configuring a Notifier.
type NotifierOption func(*NotifierOpts)

// WithTimeout sets the delivery timeout.
func WithTimeout(d time.Duration) NotifierOption {
	return func(o *NotifierOpts) {
		o.Timeout = d
	}
}

// WithHTTPClient sets the HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) NotifierOption {
	return func(o *NotifierOpts) {
		o.HTTPClient = c
	}
}

// Notifier delivers lead notifications to tenant webhooks. Deliveries are
// fire-and-forget: failures are logged and swallowed so a broken tenant
// endpoint can never crash the capture pipeline.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
}

// NewNotifier creates a Notifier with the given options.
func NewNotifier(opts ...NotifierOption) *Notifier {
	var cfg NotifierOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Notifier{client: cfg.HTTPClient, timeout: cfg.Timeout}
}

// Notify POSTs the notification to webhookURL. An empty URL is a no-op.
func (n *Notifier) Notify(ctx context.Context, webhookURL string, payload models.LeadNotification) {
	if webhookURL == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Notifier failed to marshal payload", "error", err, "leadID", payload.LeadID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		slog.Warn("Notifier failed to build webhook request", "error", err, "leadID", payload.LeadID)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("Lead webhook delivery failed", "error", err, "leadID", payload.LeadID)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		slog.Warn("Lead webhook returned an error status", "status", resp.StatusCode, "leadID", payload.LeadID)
		return
	}
	slog.Debug("Lead webhook delivered", "leadID", payload.LeadID, "status", resp.StatusCode)
}
