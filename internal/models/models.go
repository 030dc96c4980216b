// Package models defines the core data structures for ChatWire.
//
// It includes tenant, channel, flow, and lead types, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// ChannelType identifies the messaging provider behind an integration.
type ChannelType string

const (
	// ChannelTelegram is the Telegram Bot API channel.
	ChannelTelegram ChannelType = "telegram"
	// ChannelWhatsApp is the WhatsApp Cloud API channel.
	ChannelWhatsApp ChannelType = "whatsapp"
	// ChannelMessenger is the Facebook Messenger Send API channel.
	ChannelMessenger ChannelType = "messenger"
	// ChannelInstagram is the Instagram Messaging API channel.
	ChannelInstagram ChannelType = "instagram"
)

// NodeType defines how a flow node behaves during traversal.
type NodeType string

const (
	// NodeTypeMessage sends its content and advances to the next node.
	NodeTypeMessage NodeType = "message"
	// NodeTypeQuestion sends its content and pauses for the lead's answer.
	NodeTypeQuestion NodeType = "question"
)

// ReplySource identifies which resolution stage produced an outbound reply.
type ReplySource string

const (
	// SourceFlow marks replies produced by flow traversal.
	SourceFlow ReplySource = "flow"
	// SourceBot marks replies produced by a scripted rule.
	SourceBot ReplySource = "bot"
	// SourceAI marks replies produced by the AI assistant.
	SourceAI ReplySource = "ai"
)

// StartNodeID is the reserved node id flows begin at when present.
const StartNodeID = "start"

// Error variables for better error handling and testability
var (
	ErrInvalidChannelType   = errors.New("invalid channel type")
	ErrEmptyVerifyToken     = errors.New("verify token cannot be empty")
	ErrEmptyExternalID      = errors.New("external id cannot be empty")
	ErrEmptyFlowName        = errors.New("flow name cannot be empty")
	ErrEmptyNodeID          = errors.New("flow node id cannot be empty")
	ErrInvalidNodeType      = errors.New("invalid flow node type")
	ErrEmptyRuleTrigger     = errors.New("rule trigger cannot be empty")
	ErrEmptyRuleResponse    = errors.New("rule response text cannot be empty")
	ErrEmptyQuickReplyTitle = errors.New("quick reply title cannot be empty")
	ErrEmptyQuickReplyText  = errors.New("quick reply payload text cannot be empty")
	ErrEmptyTenantName      = errors.New("tenant name cannot be empty")
	ErrEmptyLeadPhone       = errors.New("lead phone number cannot be empty")
)

// Not-found sentinels let callers distinguish a missing record from an
// infrastructure failure without matching on error strings.
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrIntegrationNotFound = errors.New("integration not found")
)

// IsValidChannelType checks if the given channel type is supported.
func IsValidChannelType(ct ChannelType) bool {
	switch ct {
	case ChannelTelegram, ChannelWhatsApp, ChannelMessenger, ChannelInstagram:
		return true
	default:
		return false
	}
}

// IsValidNodeType checks if the given flow node type is supported.
func IsValidNodeType(nt NodeType) bool {
	switch nt {
	case NodeTypeMessage, NodeTypeQuestion:
		return true
	default:
		return false
	}
}

// Tenant represents one business account served by the platform.
type Tenant struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	WebhookURL   string    `json:"webhook_url,omitempty"` // lead notification endpoint
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate performs validation on a Tenant structure.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return ErrEmptyTenantName
	}
	return nil
}

// ChannelIntegration connects a tenant to one provider endpoint.
type ChannelIntegration struct {
	ID          int64       `json:"id"`
	TenantID    int64       `json:"tenant_id"`
	ChannelType ChannelType `json:"channel_type"`
	// ExternalID is the provider-side endpoint identity: a WhatsApp phone
	// number id, a Facebook page id, or an Instagram account id. Telegram
	// integrations are addressed by bot token alone and leave it empty.
	ExternalID  string    `json:"external_id,omitempty"`
	AccessToken string    `json:"access_token,omitempty"`
	VerifyToken string    `json:"verify_token"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate performs validation on a ChannelIntegration structure.
func (ci *ChannelIntegration) Validate() error {
	if !IsValidChannelType(ci.ChannelType) {
		return ErrInvalidChannelType
	}
	if ci.VerifyToken == "" {
		return ErrEmptyVerifyToken
	}
	if ci.ChannelType != ChannelTelegram && ci.ExternalID == "" {
		return ErrEmptyExternalID
	}
	return nil
}

// FlowNode is one step in a tenant-authored conversation graph.
type FlowNode struct {
	ID      string   `json:"id"`
	Type    NodeType `json:"type"`
	Content string   `json:"content,omitempty"`
	// Variable names the context key that captures the lead's answer when
	// this node is a question.
	Variable string `json:"variable,omitempty"`
	Next     string `json:"next,omitempty"`
}

// Validate performs validation on a FlowNode structure.
func (n *FlowNode) Validate() error {
	if n.ID == "" {
		return ErrEmptyNodeID
	}
	if !IsValidNodeType(n.Type) {
		return ErrInvalidNodeType
	}
	return nil
}

// Flow is a scripted conversation graph owned by a tenant.
type Flow struct {
	ID             int64      `json:"id"`
	TenantID       int64      `json:"tenant_id"`
	Name           string     `json:"name"`
	TriggerKeyword string     `json:"trigger_keyword,omitempty"`
	Nodes          []FlowNode `json:"nodes"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Validate performs validation on a Flow structure and its nodes.
func (f *Flow) Validate() error {
	if f.Name == "" {
		return ErrEmptyFlowName
	}
	for i := range f.Nodes {
		if err := f.Nodes[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NodeByID returns the node with the given id, or nil when absent.
func (f *Flow) NodeByID(id string) *FlowNode {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i]
		}
	}
	return nil
}

// StartNode returns the node traversal begins at: the node whose id is
// StartNodeID when present, otherwise the first node. Returns nil for an
// empty graph.
func (f *Flow) StartNode() *FlowNode {
	if node := f.NodeByID(StartNodeID); node != nil {
		return node
	}
	if len(f.Nodes) == 0 {
		return nil
	}
	return &f.Nodes[0]
}

// Rule is a scripted keyword response.
type Rule struct {
	ID       int64 `json:"id"`
	TenantID int64 `json:"tenant_id"`
	// Trigger is either a plain substring matched case-insensitively, or a
	// regular expression written with a "re:" prefix.
	Trigger      string    `json:"trigger"`
	ResponseText string    `json:"response_text"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate performs validation on a Rule structure.
func (r *Rule) Validate() error {
	if r.Trigger == "" {
		return ErrEmptyRuleTrigger
	}
	if r.ResponseText == "" {
		return ErrEmptyRuleResponse
	}
	return nil
}

// QuickReply is one numbered menu shortcut a tenant offers alongside replies.
type QuickReply struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	Title       string    `json:"title"`
	PayloadText string    `json:"payload_text"`
	SortOrder   int       `json:"sort_order"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate performs validation on a QuickReply structure.
func (q *QuickReply) Validate() error {
	if q.Title == "" {
		return ErrEmptyQuickReplyTitle
	}
	if q.PayloadText == "" {
		return ErrEmptyQuickReplyText
	}
	return nil
}

// KnowledgeItem is one entry of a tenant's grounding corpus for AI replies.
type KnowledgeItem struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lead is a conversation participant, keyed per tenant by sender identity.
//
// PhoneNumber doubles as the sender key: channels without a real phone
// number (Telegram chat ids, Messenger PSIDs) store that identity here.
type Lead struct {
	ID            int64             `json:"id"`
	TenantID      int64             `json:"tenant_id"`
	CustomerName  string            `json:"customer_name,omitempty"`
	PhoneNumber   string            `json:"phone_number"`
	Summary       string            `json:"summary,omitempty"`
	CurrentFlowID *int64            `json:"current_flow_id,omitempty"`
	CurrentStepID *string           `json:"current_step_id,omitempty"`
	FlowContext   map[string]string `json:"flow_context,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Validate performs validation on a Lead structure.
func (l *Lead) Validate() error {
	if l.PhoneNumber == "" {
		return ErrEmptyLeadPhone
	}
	return nil
}

// InFlow reports whether the lead is parked inside a flow awaiting an answer.
func (l *Lead) InFlow() bool {
	return l.CurrentFlowID != nil && l.CurrentStepID != nil
}

// ClearFlowState resets all flow progress on the lead.
func (l *Lead) ClearFlowState() {
	l.CurrentFlowID = nil
	l.CurrentStepID = nil
	l.FlowContext = nil
}

// InboundMessage is a channel-normalized incoming message.
type InboundMessage struct {
	// ExternalID routes the message to an integration for providers that
	// multiplex many endpoints over one webhook. Empty for Telegram, where
	// the webhook path already names the integration.
	ExternalID string `json:"external_id,omitempty"`
	SenderID   string `json:"sender_id"`
	Text       string `json:"text"`
}

// OutboundReply is a resolved answer ready for channel delivery.
type OutboundReply struct {
	Text         string       `json:"text"`
	Source       ReplySource  `json:"source"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}

// LeadNotification is the payload POSTed to a tenant's webhook URL when a
// lead is captured or updated.
type LeadNotification struct {
	LeadID        int64  `json:"lead_id"`
	TenantID      int64  `json:"tenant_id"`
	CustomerName  string `json:"customer_name"`
	PhoneNumber   string `json:"phone_number"`
	Summary       string `json:"summary"`
	SourceMessage string `json:"source_message"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusIgnored indicates a webhook payload was acknowledged without processing.
	APIStatusIgnored APIStatus = "ignored"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Ignored creates an API response acknowledging a payload without processing it.
func Ignored() APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusIgnored).
		Build()
}
