package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chatwire/chatwire/internal/models"
)

const (
	telegramAPIBase     = "https://api.telegram.org"
	telegramSendTimeout = 15 * time.Second

	// maxKeyboardButtons caps the persistent reply keyboard.
	maxKeyboardButtons = 8
)

// TelegramAdapter handles Telegram Bot API traffic. Bot tokens are
// per-integration, so it keeps its own HTTP client and uses only the tgbotapi
// wire types: the library's BotAPI client binds a single token at
// construction and cannot serve multi-tenant sends.
type TelegramAdapter struct {
	apiBase string
	client  *http.Client
}

// NewTelegramAdapter creates a TelegramAdapter against the public Bot API.
func NewTelegramAdapter() *TelegramAdapter {
	return &TelegramAdapter{
		apiBase: telegramAPIBase,
		client:  &http.Client{Timeout: telegramSendTimeout},
	}
}

// Type implements Adapter.
func (a *TelegramAdapter) Type() models.ChannelType { return models.ChannelTelegram }

// ParseInbound decodes one Bot API update. Updates without message text or a
// chat are skipped: edits, channel posts, and media-only messages produce no
// work. The sender identity is the chat id; routing comes from the webhook
// path, so ExternalID stays empty.
func (a *TelegramAdapter) ParseInbound(body []byte) ([]models.InboundMessage, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("failed to decode telegram update: %w", err)
	}
	msg := update.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return nil, nil
	}
	return []models.InboundMessage{{
		SenderID: strconv.FormatInt(msg.Chat.ID, 10),
		Text:     msg.Text,
	}}, nil
}

type telegramSendRequest struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

// SendReply posts a sendMessage call carrying a persistent reply keyboard of
// the tenant's quick replies. Pressing a button sends its label back as a
// normal message, so no callback handling is needed.
func (a *TelegramAdapter) SendReply(ctx context.Context, integration *models.ChannelIntegration, recipientID string, reply *models.OutboundReply) error {
	token := strings.TrimSpace(integration.AccessToken)
	if token == "" {
		return fmt.Errorf("telegram integration %d has no bot token", integration.ID)
	}
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", recipientID, err)
	}

	req := telegramSendRequest{ChatID: chatID, Text: reply.Text}
	if markup, ok := replyKeyboard(reply.QuickReplies); ok {
		req.ReplyMarkup = markup
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", a.apiBase, token)
	return postJSON(ctx, a.client, "telegram sendMessage", endpoint, "", req)
}

// replyKeyboard builds a one-button-per-row keyboard from the quick replies,
// capped at maxKeyboardButtons. Reports false when no usable titles exist.
func replyKeyboard(quickReplies []models.QuickReply) (tgbotapi.ReplyKeyboardMarkup, bool) {
	rows := make([][]tgbotapi.KeyboardButton, 0, maxKeyboardButtons)
	for _, qr := range quickReplies {
		title := strings.TrimSpace(qr.Title)
		if title == "" {
			continue
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(title)))
		if len(rows) == maxKeyboardButtons {
			break
		}
	}
	if len(rows) == 0 {
		return tgbotapi.ReplyKeyboardMarkup{}, false
	}
	return tgbotapi.NewReplyKeyboard(rows...), true
}
