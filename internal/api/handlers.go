package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/models"
	"github.com/chatwire/chatwire/internal/util"
)

// telegramWebhookPrefix is the Telegram route; the integration's verify token
// follows it as the final path segment.
const telegramWebhookPrefix = "/webhooks/telegram/"

// metaObjectChannels maps the Meta webhook envelope's object field to the
// channel it carries events for.
var metaObjectChannels = map[string]models.ChannelType{
	"whatsapp_business_account": models.ChannelWhatsApp,
	"page":                      models.ChannelMessenger,
	"instagram":                 models.ChannelInstagram,
}

// telegramWebhookHandler serves POST /webhooks/telegram/{verifyToken}. The
// token in the path authenticates the integration; everything after that is
// acknowledged with success so Telegram never retries.
func (s *Server) telegramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	requestID := util.GenerateRequestID()
	slog.Debug("Server.telegramWebhookHandler: processing webhook", "requestID", requestID, "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	verifyToken := strings.Trim(strings.TrimPrefix(r.URL.Path, telegramWebhookPrefix), "/")
	if verifyToken == "" || strings.Contains(verifyToken, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Integration not found"))
		return
	}

	integration, err := s.st.GetIntegrationByVerifyToken(verifyToken, models.ChannelTelegram)
	if err != nil {
		slog.Error("Server.telegramWebhookHandler: integration lookup failed", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Storage failure"))
		return
	}
	if integration == nil || !integration.IsActive {
		slog.Debug("Server.telegramWebhookHandler: unknown or inactive integration", "requestID", requestID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Integration not found"))
		return
	}

	adapter, ok := s.registry.Get(models.ChannelTelegram)
	if !ok {
		slog.Error("Server.telegramWebhookHandler: telegram adapter not registered", "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		slog.Warn("Server.telegramWebhookHandler: failed to read body", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	messages, err := adapter.ParseInbound(body)
	if err != nil {
		slog.Warn("Server.telegramWebhookHandler: unreadable update", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}
	if len(messages) == 0 {
		slog.Debug("Server.telegramWebhookHandler: update carried no processable message", "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	for _, msg := range messages {
		s.processMessage(r.Context(), adapter, integration, msg, requestID)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// metaWebhookHandler serves the shared Meta endpoint: GET is the subscription
// verification handshake, POST carries WhatsApp Cloud, Messenger, and
// Instagram events.
func (s *Server) metaWebhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.metaVerifyHandler(w, r)
	case http.MethodPost:
		s.metaEventHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// metaVerifyHandler answers Meta's webhook subscription challenge. The verify
// token must belong to an active whatsapp, messenger, or instagram
// integration; on success the challenge is echoed back as plain text.
func (s *Server) metaVerifyHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")
	if mode != "subscribe" || token == "" || challenge == "" {
		slog.Debug("Server.metaVerifyHandler: malformed verification request", "mode", mode)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid verification request"))
		return
	}

	integration, err := s.st.GetIntegrationByVerifyToken(token, models.ChannelWhatsApp, models.ChannelMessenger, models.ChannelInstagram)
	if err != nil {
		slog.Error("Server.metaVerifyHandler: integration lookup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Storage failure"))
		return
	}
	if integration == nil || !integration.IsActive {
		slog.Warn("Server.metaVerifyHandler: verification rejected, unknown or inactive token")
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid verify token"))
		return
	}

	slog.Info("Server.metaVerifyHandler: subscription verified", "channel", integration.ChannelType, "integrationID", integration.ID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(challenge)); err != nil {
		slog.Error("Server.metaVerifyHandler: failed to write challenge", "error", err)
	}
}

// metaEventHandler fans a Meta webhook delivery out to per-message
// processing. The envelope's object field picks the channel; each message is
// then routed to an integration by its external id (phone number id for
// WhatsApp, page or account id otherwise). Messages that cannot be routed are
// skipped, and the delivery is acknowledged regardless.
func (s *Server) metaEventHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	requestID := util.GenerateRequestID()
	slog.Debug("Server.metaEventHandler: processing webhook", "requestID", requestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		slog.Warn("Server.metaEventHandler: failed to read body", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	var envelope struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		slog.Warn("Server.metaEventHandler: unreadable payload", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	channelType, ok := metaObjectChannels[envelope.Object]
	if !ok {
		slog.Debug("Server.metaEventHandler: unknown object, acknowledging", "object", envelope.Object, "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	adapter, ok := s.registry.Get(channelType)
	if !ok {
		slog.Error("Server.metaEventHandler: adapter not registered", "channel", channelType, "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	messages, err := adapter.ParseInbound(body)
	if err != nil {
		slog.Warn("Server.metaEventHandler: unreadable payload", "error", err, "channel", channelType, "requestID", requestID)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	for _, msg := range messages {
		integration, err := s.st.GetIntegrationByExternalID(channelType, msg.ExternalID)
		if err != nil {
			slog.Error("Server.metaEventHandler: integration lookup failed", "error", err, "channel", channelType, "externalID", msg.ExternalID, "requestID", requestID)
			continue
		}
		if integration == nil || !integration.IsActive {
			slog.Debug("Server.metaEventHandler: no active integration for message", "channel", channelType, "externalID", msg.ExternalID, "requestID", requestID)
			continue
		}
		s.processMessage(r.Context(), adapter, integration, msg, requestID)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// processMessage runs one normalized message through rate limiting and the
// resolver, then queues delivery and lead capture as independent background
// tasks. Failures are logged, never surfaced to the provider.
func (s *Server) processMessage(ctx context.Context, adapter channel.Adapter, integration *models.ChannelIntegration, msg models.InboundMessage, requestID string) {
	if !s.limiter.Allow(integration.ID, msg.SenderID) {
		slog.Warn("Server: sender rate limited, message dropped", "requestID", requestID, "channel", adapter.Type(), "integrationID", integration.ID)
		return
	}

	reply, err := s.resolver.Resolve(ctx, integration.TenantID, msg.SenderID, msg.Text)
	if err != nil {
		slog.Error("Server: reply resolution failed", "error", err, "requestID", requestID, "channel", adapter.Type(), "tenantID", integration.TenantID)
		return
	}

	// Copy for the closures: they outlive this request.
	integ := *integration
	if !s.pool.Submit(func(ctx context.Context) {
		if err := adapter.SendReply(ctx, &integ, msg.SenderID, reply); err != nil {
			slog.Error("Server: reply delivery failed", "error", err, "requestID", requestID, "channel", adapter.Type(), "integrationID", integ.ID)
		}
	}) {
		slog.Warn("Server: delivery queue full, reply dropped", "requestID", requestID, "channel", adapter.Type())
	}
	if !s.pool.Submit(func(ctx context.Context) {
		s.extractor.Capture(ctx, integ.TenantID, msg.SenderID, msg.Text)
	}) {
		slog.Warn("Server: capture queue full, lead detection skipped", "requestID", requestID, "tenantID", integ.TenantID)
	}

	slog.Info("Server: reply queued", "requestID", requestID, "channel", adapter.Type(), "tenantID", integration.TenantID, "source", reply.Source)
}

// healthHandler reports liveness for monitoring and load balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
