package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chatwire/chatwire/internal/models"
)

// Graph API constants shared by the WhatsApp, Messenger, and Instagram
// adapters.
const (
	graphAPIBase    = "https://graph.facebook.com/v21.0"
	metaSendTimeout = 20 * time.Second
)

const (
	maxWhatsAppButtons  = 3
	maxWhatsAppListRows = 10
	maxButtonTitleLen   = 20
	maxButtonIDLen      = 200
	maxListRowTitleLen  = 24

	listButtonLabel  = "Options"
	listSectionTitle = "Options"
)

// whatsappWebhook is the Cloud API change-notification envelope.
type whatsappWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []whatsappInboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsappInboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Button struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// text returns the processable body of an inbound message, discriminated by
// type. Interactive replies prefer the id over the title: the id carries the
// quick-reply id the Resolver maps back to its payload text.
func (m *whatsappInboundMessage) text() string {
	switch strings.ToLower(strings.TrimSpace(m.Type)) {
	case "text":
		return m.Text.Body
	case "button":
		return m.Button.Text
	case "interactive":
		switch strings.ToLower(strings.TrimSpace(m.Interactive.Type)) {
		case "button_reply":
			if m.Interactive.ButtonReply.ID != "" {
				return m.Interactive.ButtonReply.ID
			}
			return m.Interactive.ButtonReply.Title
		case "list_reply":
			if m.Interactive.ListReply.ID != "" {
				return m.Interactive.ListReply.ID
			}
			return m.Interactive.ListReply.Title
		}
	}
	return ""
}

// WhatsAppAdapter handles WhatsApp Cloud API traffic. One webhook serves many
// phone numbers, so every inbound message carries the phone number id as its
// routing key.
type WhatsAppAdapter struct {
	graphBase string
	client    *http.Client
}

// NewWhatsAppAdapter creates a WhatsAppAdapter against the public Graph API.
func NewWhatsAppAdapter() *WhatsAppAdapter {
	return &WhatsAppAdapter{
		graphBase: graphAPIBase,
		client:    &http.Client{Timeout: metaSendTimeout},
	}
}

// Type implements Adapter.
func (a *WhatsAppAdapter) Type() models.ChannelType { return models.ChannelWhatsApp }

// ParseInbound walks the entry/changes/value envelope and collects every
// message with a routing key, sender, and usable text.
func (a *WhatsAppAdapter) ParseInbound(body []byte) ([]models.InboundMessage, error) {
	var payload whatsappWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode whatsapp webhook: %w", err)
	}

	var messages []models.InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			phoneNumberID := change.Value.Metadata.PhoneNumberID
			for i := range change.Value.Messages {
				msg := &change.Value.Messages[i]
				text := msg.text()
				if phoneNumberID == "" || msg.From == "" || text == "" {
					continue
				}
				messages = append(messages, models.InboundMessage{
					ExternalID: phoneNumberID,
					SenderID:   msg.From,
					Text:       text,
				})
			}
		}
	}
	return messages, nil
}

type whatsappSendRequest struct {
	MessagingProduct string               `json:"messaging_product"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Text             *whatsappTextContent `json:"text,omitempty"`
	Interactive      *whatsappInteractive `json:"interactive,omitempty"`
}

type whatsappTextContent struct {
	Body string `json:"body"`
}

type whatsappInteractive struct {
	Type   string              `json:"type"`
	Body   whatsappTextContent `json:"body"`
	Action whatsappAction      `json:"action"`
}

type whatsappAction struct {
	Buttons  []whatsappButton  `json:"buttons,omitempty"`
	Button   string            `json:"button,omitempty"`
	Sections []whatsappSection `json:"sections,omitempty"`
}

type whatsappButton struct {
	Type  string             `json:"type"`
	Reply whatsappButtonItem `json:"reply"`
}

type whatsappButtonItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type whatsappSection struct {
	Title string               `json:"title"`
	Rows  []whatsappButtonItem `json:"rows"`
}

// SendReply tries an interactive payload when quick replies are attached and
// falls back to plain text with a numbered menu when the interactive send is
// rejected. Without quick replies it sends plain text directly.
func (a *WhatsAppAdapter) SendReply(ctx context.Context, integration *models.ChannelIntegration, recipientID string, reply *models.OutboundReply) error {
	token := strings.TrimSpace(integration.AccessToken)
	if token == "" {
		return fmt.Errorf("whatsapp integration %d has no access token", integration.ID)
	}
	endpoint := fmt.Sprintf("%s/%s/messages", a.graphBase, integration.ExternalID)

	items := usableQuickReplies(reply.QuickReplies)
	if len(items) > 0 {
		err := postJSON(ctx, a.client, "whatsapp interactive send", endpoint, token, whatsappInteractiveRequest(recipientID, reply.Text, items))
		if err == nil {
			return nil
		}
		slog.Warn("WhatsApp interactive send failed, falling back to text", "error", err, "integrationID", integration.ID)
	}
	return postJSON(ctx, a.client, "whatsapp text send", endpoint, token,
		whatsappTextRequest(recipientID, FormatMenuText(reply.Text, items)))
}

func whatsappTextRequest(to, text string) whatsappSendRequest {
	return whatsappSendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &whatsappTextContent{Body: text},
	}
}

// whatsappInteractiveRequest renders quick replies as reply buttons when
// three or fewer fit, and as a single-section list otherwise. Rows beyond the
// provider cap of ten are dropped.
func whatsappInteractiveRequest(to, text string, items []models.QuickReply) whatsappSendRequest {
	interactive := &whatsappInteractive{Body: whatsappTextContent{Body: text}}

	if len(items) <= maxWhatsAppButtons {
		interactive.Type = "button"
		buttons := make([]whatsappButton, 0, len(items))
		for _, qr := range items {
			buttons = append(buttons, whatsappButton{
				Type: "reply",
				Reply: whatsappButtonItem{
					ID:    truncateRunes(strconv.FormatInt(qr.ID, 10), maxButtonIDLen),
					Title: truncateRunes(strings.TrimSpace(qr.Title), maxButtonTitleLen),
				},
			})
		}
		interactive.Action = whatsappAction{Buttons: buttons}
	} else {
		interactive.Type = "list"
		rows := make([]whatsappButtonItem, 0, maxWhatsAppListRows)
		for _, qr := range items {
			rows = append(rows, whatsappButtonItem{
				ID:    truncateRunes(strconv.FormatInt(qr.ID, 10), maxButtonIDLen),
				Title: truncateRunes(strings.TrimSpace(qr.Title), maxListRowTitleLen),
			})
			if len(rows) == maxWhatsAppListRows {
				break
			}
		}
		interactive.Action = whatsappAction{
			Button:   listButtonLabel,
			Sections: []whatsappSection{{Title: listSectionTitle, Rows: rows}},
		}
	}

	return whatsappSendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive:      interactive,
	}
}
