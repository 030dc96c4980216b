package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chatwire/chatwire/internal/models"
)

const (
	maxMessengerQuickReplies = 10
	maxQuickReplyPayloadLen  = 512
)

// messengerWebhook is the Graph messaging envelope shared by Messenger pages
// and Instagram accounts. The entry id names the page or account and routes
// the event to an integration.
type messengerWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				IsEcho     bool   `json:"is_echo"`
				Text       string `json:"text"`
				QuickReply struct {
					Payload string `json:"payload"`
				} `json:"quick_reply"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// parseGraphMessaging normalizes a page or instagram webhook body. Echo
// events (the bot's own sends reflected back) and events without usable text
// are skipped. A tapped quick reply arrives as its payload.
func parseGraphMessaging(body []byte) ([]models.InboundMessage, error) {
	var payload messengerWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode graph messaging webhook: %w", err)
	}

	var messages []models.InboundMessage
	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			if event.Message.IsEcho {
				continue
			}
			text := event.Message.Text
			if text == "" {
				text = event.Message.QuickReply.Payload
			}
			if entry.ID == "" || event.Sender.ID == "" || text == "" {
				continue
			}
			messages = append(messages, models.InboundMessage{
				ExternalID: entry.ID,
				SenderID:   event.Sender.ID,
				Text:       text,
			})
		}
	}
	return messages, nil
}

type messengerSendRequest struct {
	MessagingType string             `json:"messaging_type"`
	Recipient     messengerRecipient `json:"recipient"`
	Message       messengerMessage   `json:"message"`
}

type messengerRecipient struct {
	ID string `json:"id"`
}

type messengerMessage struct {
	Text         string                `json:"text"`
	QuickReplies []messengerQuickReply `json:"quick_replies,omitempty"`
}

type messengerQuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// MessengerAdapter handles Facebook Messenger page traffic.
type MessengerAdapter struct {
	graphBase string
	client    *http.Client
}

// NewMessengerAdapter creates a MessengerAdapter against the public Graph API.
func NewMessengerAdapter() *MessengerAdapter {
	return &MessengerAdapter{
		graphBase: graphAPIBase,
		client:    &http.Client{Timeout: metaSendTimeout},
	}
}

// Type implements Adapter.
func (a *MessengerAdapter) Type() models.ChannelType { return models.ChannelMessenger }

// ParseInbound implements Adapter.
func (a *MessengerAdapter) ParseInbound(body []byte) ([]models.InboundMessage, error) {
	return parseGraphMessaging(body)
}

// SendReply posts a RESPONSE message with the quick replies attached
// natively. Tapping one sends its decimal id back as the message payload,
// which the Resolver maps to the quick reply's text.
func (a *MessengerAdapter) SendReply(ctx context.Context, integration *models.ChannelIntegration, recipientID string, reply *models.OutboundReply) error {
	token := strings.TrimSpace(integration.AccessToken)
	if token == "" {
		return fmt.Errorf("messenger integration %d has no page token", integration.ID)
	}

	req := messengerSendRequest{
		MessagingType: "RESPONSE",
		Recipient:     messengerRecipient{ID: recipientID},
		Message:       messengerMessage{Text: reply.Text},
	}
	for i, qr := range usableQuickReplies(reply.QuickReplies) {
		if i == maxMessengerQuickReplies {
			break
		}
		req.Message.QuickReplies = append(req.Message.QuickReplies, messengerQuickReply{
			ContentType: "text",
			Title:       truncateRunes(strings.TrimSpace(qr.Title), maxButtonTitleLen),
			Payload:     truncateRunes(strconv.FormatInt(qr.ID, 10), maxQuickReplyPayloadLen),
		})
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", a.graphBase, url.QueryEscape(token))
	return postJSON(ctx, a.client, "messenger send", endpoint, "", req)
}
