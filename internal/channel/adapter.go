// Package channel normalizes webhook traffic from the supported messaging
// providers and delivers resolved replies back through them.
//
// Each provider gets one Adapter. Inbound parsing is tolerant: events the
// pipeline cannot process (edits, echoes, media without text) are skipped so
// the webhook can still be acknowledged. Outbound sends attach the tenant's
// quick replies in whatever shape the provider supports, degrading to a
// numbered text menu where it supports none.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chatwire/chatwire/internal/models"
)

// Adapter translates between one provider's wire format and the
// channel-neutral types the rest of the pipeline works with.
type Adapter interface {
	// Type identifies the provider this adapter serves.
	Type() models.ChannelType

	// ParseInbound extracts the processable messages from a raw webhook
	// body. Events without usable text or sender identity are skipped, not
	// errors; an error means the body itself was unreadable.
	ParseInbound(body []byte) ([]models.InboundMessage, error)

	// SendReply delivers a resolved reply to recipientID using the
	// integration's credentials.
	SendReply(ctx context.Context, integration *models.ChannelIntegration, recipientID string, reply *models.OutboundReply) error
}

// postJSON marshals payload and POSTs it to url. The label names the provider
// call in errors so URLs carrying credentials never leak into logs. A non-2xx
// status is reported as an error with a short body snippet.
func postJSON(ctx context.Context, client *http.Client, label, url, bearerToken string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", label, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", label, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", label, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
