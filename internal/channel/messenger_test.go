package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatwire/chatwire/internal/models"
)

func messengerIntegration() *models.ChannelIntegration {
	return &models.ChannelIntegration{
		ID:          3,
		TenantID:    1,
		ChannelType: models.ChannelMessenger,
		ExternalID:  "page-77",
		AccessToken: "page-token",
		VerifyToken: "vt-messenger",
		IsActive:    true,
	}
}

func TestMessengerParseInbound(t *testing.T) {
	a := NewMessengerAdapter()

	body := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-77",
			"messaging": [
				{"sender": {"id": "psid-1"}, "message": {"text": "hello"}},
				{"sender": {"id": "psid-2"}, "message": {"quick_reply": {"payload": "42"}}},
				{"sender": {"id": "psid-3"}, "message": {"is_echo": true, "text": "bot echo"}},
				{"sender": {"id": ""}, "message": {"text": "orphan"}}
			]
		}]
	}`)

	msgs, err := a.ParseInbound(body)
	if err != nil {
		t.Fatalf("failed to parse webhook: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].SenderID != "psid-1" || msgs[0].Text != "hello" || msgs[0].ExternalID != "page-77" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].SenderID != "psid-2" || msgs[1].Text != "42" {
		t.Errorf("expected quick reply payload as text, got %+v", msgs[1])
	}
}

func TestMessengerSendReply(t *testing.T) {
	var gotToken string
	var got messengerSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotToken = r.URL.Query().Get("access_token")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := &MessengerAdapter{graphBase: srv.URL, client: srv.Client()}
	reply := &models.OutboundReply{
		Text: "How can I help?",
		QuickReplies: []models.QuickReply{
			{ID: 42, Title: "Pricing"},
			{ID: 43, Title: "A title that runs far past twenty"},
		},
	}
	if err := a.SendReply(context.Background(), messengerIntegration(), "psid-1", reply); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotToken != "page-token" {
		t.Errorf("expected access_token query param, got %q", gotToken)
	}
	if got.MessagingType != "RESPONSE" {
		t.Errorf("expected RESPONSE messaging type, got %q", got.MessagingType)
	}
	if got.Recipient.ID != "psid-1" {
		t.Errorf("unexpected recipient %q", got.Recipient.ID)
	}
	if got.Message.Text != "How can I help?" {
		t.Errorf("unexpected text %q", got.Message.Text)
	}
	if len(got.Message.QuickReplies) != 2 {
		t.Fatalf("expected 2 quick replies, got %d", len(got.Message.QuickReplies))
	}
	qr := got.Message.QuickReplies[0]
	if qr.ContentType != "text" || qr.Title != "Pricing" || qr.Payload != "42" {
		t.Errorf("unexpected quick reply: %+v", qr)
	}
	if long := got.Message.QuickReplies[1].Title; len([]rune(long)) > maxButtonTitleLen {
		t.Errorf("expected title truncated to %d runes, got %q", maxButtonTitleLen, long)
	}
}

func TestMessengerSendCapsQuickReplies(t *testing.T) {
	var got messengerSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := &MessengerAdapter{graphBase: srv.URL, client: srv.Client()}
	var quickReplies []models.QuickReply
	for i := 1; i <= 14; i++ {
		quickReplies = append(quickReplies, models.QuickReply{ID: int64(i), Title: fmt.Sprintf("Option %d", i)})
	}
	reply := &models.OutboundReply{Text: "Pick", QuickReplies: quickReplies}
	if err := a.SendReply(context.Background(), messengerIntegration(), "psid-1", reply); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(got.Message.QuickReplies) != maxMessengerQuickReplies {
		t.Errorf("expected %d quick replies, got %d", maxMessengerQuickReplies, len(got.Message.QuickReplies))
	}
}

func TestMessengerSendRequiresToken(t *testing.T) {
	a := NewMessengerAdapter()
	integ := messengerIntegration()
	integ.AccessToken = ""
	if err := a.SendReply(context.Background(), integ, "psid-1", &models.OutboundReply{Text: "x"}); err == nil {
		t.Error("expected error for missing page token")
	}
}
