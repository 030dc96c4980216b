// Package conversation turns inbound messages into replies.
//
// The Resolver runs a fixed-order pipeline: an active flow consumes the
// message first, then flow trigger keywords, then scripted rules, and finally
// the AI assistant, which always has an answer. Exactly one stage produces
// the reply. Work is serialized per (tenant, sender) so near-simultaneous
// messages from the same sender cannot race on flow state.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chatwire/chatwire/internal/flow"
	"github.com/chatwire/chatwire/internal/knowledge"
	"github.com/chatwire/chatwire/internal/models"
	"github.com/chatwire/chatwire/internal/rules"
	"github.com/chatwire/chatwire/internal/store"
)

// DefaultSystemPrompt is used when a tenant has not configured one.
const DefaultSystemPrompt = "You are a helpful assistant."

// Assistant produces the AI reply for messages no earlier stage answered. It
// never fails; errors surface as user-safe reply text.
type Assistant interface {
	Reply(ctx context.Context, systemPrompt, userMessage string) string
}

// Resolver orchestrates the reply pipeline for one inbound message at a time
// per sender. It owns lead upsert, quick-reply payload substitution, stage
// ordering, and persisting flow state after the pipeline ran.
type Resolver struct {
	store   store.Store
	engine  *flow.Engine
	matcher *rules.Matcher
	kb      *knowledge.Builder
	ai      Assistant
	locks   *keyedLocks
}

// NewResolver creates a resolver backed by the given store and assistant.
func NewResolver(st store.Store, ai Assistant) *Resolver {
	return &Resolver{
		store:   st,
		engine:  flow.NewEngine(st),
		matcher: rules.NewMatcher(),
		kb:      knowledge.NewBuilder(st),
		ai:      ai,
		locks:   newKeyedLocks(),
	}
}

// Resolve answers one inbound message for a tenant. senderKey is the
// channel-native conversational identity (chat id, phone number, PSID) and
// doubles as the lead's identity key. Storage errors are returned to the
// caller; the caller decides whether to acknowledge anyway.
func (r *Resolver) Resolve(ctx context.Context, tenantID int64, senderKey, text string) (*models.OutboundReply, error) {
	key := lockKey(tenantID, senderKey)
	r.locks.Lock(key)
	defer r.locks.Unlock(key)

	tenant, err := r.store.GetTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %d: %w", tenantID, models.ErrTenantNotFound)
	}

	message := r.substituteQuickReply(tenantID, text)

	lead, err := r.getOrCreateLead(tenantID, senderKey)
	if err != nil {
		return nil, err
	}

	replyText, source, err := r.runPipeline(ctx, tenant, lead, message)
	if err != nil {
		return nil, err
	}

	if err := r.store.UpdateLead(lead); err != nil {
		return nil, fmt.Errorf("failed to persist lead %d: %w", lead.ID, err)
	}

	// The reply is already decided; a failure listing quick replies only
	// costs the buttons, not the answer.
	quickReplies, err := r.store.ListActiveQuickReplies(tenantID)
	if err != nil {
		slog.Error("Resolver failed to list quick replies", "error", err, "tenantID", tenantID)
		quickReplies = nil
	}

	slog.Debug("Resolver answered", "tenantID", tenantID, "sender", senderKey, "source", source)
	return &models.OutboundReply{Text: replyText, Source: source, QuickReplies: quickReplies}, nil
}

// runPipeline walks the stages in order and returns the first definitive
// answer. Stage 4 is unconditional, so it always returns one.
func (r *Resolver) runPipeline(ctx context.Context, tenant *models.Tenant, lead *models.Lead, message string) (string, models.ReplySource, error) {
	// Stage 1: an active flow consumes the message.
	if lead.InFlow() {
		result, err := r.engine.ProcessFlow(lead, message)
		if err != nil {
			return "", "", err
		}
		if result.Text != "" {
			return result.Text, models.SourceFlow, nil
		}
	}

	// Stage 2: a trigger keyword starts a new flow.
	started, err := r.tryStartFlow(tenant.ID, lead, message)
	if err != nil {
		return "", "", err
	}
	if started != "" {
		return started, models.SourceFlow, nil
	}

	// Stage 3: scripted rules, in listing order.
	ruleList, err := r.store.ListActiveRules(tenant.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list rules: %w", err)
	}
	if rule, ok := r.matcher.Match(ruleList, message); ok {
		return rule.ResponseText, models.SourceBot, nil
	}

	// Stage 4: the AI assistant always answers.
	return r.aiReply(ctx, tenant, message), models.SourceAI, nil
}

// substituteQuickReply maps a bare decimal quick-reply id to its payload
// text. Button and list taps arrive this way from every channel; text that
// does not resolve to one of the tenant's active quick replies passes through
// unchanged.
func (r *Resolver) substituteQuickReply(tenantID int64, text string) string {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return text
	}
	qr, err := r.store.GetQuickReply(id)
	if err != nil {
		slog.Error("Resolver failed to look up quick reply", "error", err, "quickReplyID", id)
		return text
	}
	if qr == nil || qr.TenantID != tenantID || !qr.IsActive {
		return text
	}
	slog.Debug("Resolver substituted quick reply payload", "tenantID", tenantID, "quickReplyID", id)
	return qr.PayloadText
}

// getOrCreateLead loads the lead keyed by (tenant, senderKey), creating an
// empty one on first contact.
func (r *Resolver) getOrCreateLead(tenantID int64, senderKey string) (*models.Lead, error) {
	lead, err := r.store.GetLeadByPhone(tenantID, senderKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead for sender %q: %w", senderKey, err)
	}
	if lead != nil {
		return lead, nil
	}

	lead = &models.Lead{
		TenantID:    tenantID,
		PhoneNumber: senderKey,
		FlowContext: map[string]string{},
	}
	if err := r.store.CreateLead(lead); err != nil {
		return nil, fmt.Errorf("failed to create lead for sender %q: %w", senderKey, err)
	}
	slog.Debug("Resolver created lead", "tenantID", tenantID, "leadID", lead.ID)
	return lead, nil
}

// tryStartFlow starts the first active flow whose trigger keyword appears in
// the message, case-insensitively. Flows without a trigger keyword are never
// started by matching. An empty result (for example a flow with no nodes)
// falls through to later stages.
func (r *Resolver) tryStartFlow(tenantID int64, lead *models.Lead, message string) (string, error) {
	flows, err := r.store.ListActiveFlows(tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to list flows: %w", err)
	}

	normalized := strings.ToLower(message)
	for i := range flows {
		keyword := strings.ToLower(strings.TrimSpace(flows[i].TriggerKeyword))
		if keyword == "" || !strings.Contains(normalized, keyword) {
			continue
		}
		result := r.engine.StartFlow(lead, &flows[i])
		return result.Text, nil
	}
	return "", nil
}

// aiReply builds the system prompt from the tenant's configuration plus its
// knowledge base and asks the assistant. Knowledge lookup failures degrade to
// a plain prompt rather than blocking the reply.
func (r *Resolver) aiReply(ctx context.Context, tenant *models.Tenant, message string) string {
	systemPrompt := strings.TrimSpace(tenant.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	kbContext, err := r.kb.Context(tenant.ID)
	if err != nil {
		slog.Error("Resolver failed to build knowledge context", "error", err, "tenantID", tenant.ID)
		kbContext = ""
	}
	if kbContext != "" {
		systemPrompt += "\n\n" + kbContext
	}

	return r.ai.Reply(ctx, systemPrompt, message)
}

func lockKey(tenantID int64, senderKey string) string {
	return strconv.FormatInt(tenantID, 10) + "|" + senderKey
}
