package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/chatwire/chatwire/internal/models"
)

// InstagramAdapter handles Instagram messaging traffic. It shares the Graph
// webhook shape and send endpoint with Messenger, but the Instagram API
// rejects quick_replies, so the numbered menu fallback is always appended to
// the body instead.
type InstagramAdapter struct {
	graphBase string
	client    *http.Client
}

// NewInstagramAdapter creates an InstagramAdapter against the public Graph API.
func NewInstagramAdapter() *InstagramAdapter {
	return &InstagramAdapter{
		graphBase: graphAPIBase,
		client:    &http.Client{Timeout: metaSendTimeout},
	}
}

// Type implements Adapter.
func (a *InstagramAdapter) Type() models.ChannelType { return models.ChannelInstagram }

// ParseInbound implements Adapter.
func (a *InstagramAdapter) ParseInbound(body []byte) ([]models.InboundMessage, error) {
	return parseGraphMessaging(body)
}

// SendReply posts a plain RESPONSE message with the menu appended.
func (a *InstagramAdapter) SendReply(ctx context.Context, integration *models.ChannelIntegration, recipientID string, reply *models.OutboundReply) error {
	token := strings.TrimSpace(integration.AccessToken)
	if token == "" {
		return fmt.Errorf("instagram integration %d has no access token", integration.ID)
	}

	req := messengerSendRequest{
		MessagingType: "RESPONSE",
		Recipient:     messengerRecipient{ID: recipientID},
		Message: messengerMessage{
			Text: FormatMenuText(reply.Text, usableQuickReplies(reply.QuickReplies)),
		},
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", a.graphBase, url.QueryEscape(token))
	return postJSON(ctx, a.client, "instagram send", endpoint, "", req)
}
