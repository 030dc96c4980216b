package store

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/chatwire/chatwire/internal/models"
)

// stampNew fills zero-valued timestamps on newly created records.
func stampNew(createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalNodes serializes a flow node graph for storage, or nil when empty.
func marshalNodes(nodes []models.FlowNode) (interface{}, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// marshalContext serializes a lead's flow context for storage, or nil when empty.
func marshalContext(ctx map[string]string) (interface{}, error) {
	if len(ctx) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// rowScanner abstracts *sql.Row and *sql.Rows so scan helpers can serve both.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTenant scans a tenant row in column order
// (id, name, system_prompt, webhook_url, created_at, updated_at).
func scanTenant(row rowScanner) (*models.Tenant, error) {
	var t models.Tenant
	var systemPrompt, webhookURL sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &systemPrompt, &webhookURL, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.SystemPrompt = systemPrompt.String
	t.WebhookURL = webhookURL.String
	return &t, nil
}

// scanIntegration scans a channel integration row in column order
// (id, tenant_id, channel_type, external_id, access_token, verify_token, is_active, created_at, updated_at).
func scanIntegration(row rowScanner) (*models.ChannelIntegration, error) {
	var ci models.ChannelIntegration
	var channelType string
	var externalID, accessToken sql.NullString
	if err := row.Scan(&ci.ID, &ci.TenantID, &channelType, &externalID, &accessToken,
		&ci.VerifyToken, &ci.IsActive, &ci.CreatedAt, &ci.UpdatedAt); err != nil {
		return nil, err
	}
	ci.ChannelType = models.ChannelType(channelType)
	ci.ExternalID = externalID.String
	ci.AccessToken = accessToken.String
	return &ci, nil
}

// scanFlow scans a flow row in column order
// (id, tenant_id, name, trigger_keyword, nodes, is_active, created_at, updated_at).
// A corrupt node graph is logged and degraded to an empty graph rather than
// failing the lookup.
func scanFlow(row rowScanner) (*models.Flow, error) {
	var f models.Flow
	var trigger sql.NullString
	var nodesJSON []byte
	if err := row.Scan(&f.ID, &f.TenantID, &f.Name, &trigger, &nodesJSON,
		&f.IsActive, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.TriggerKeyword = trigger.String
	if len(nodesJSON) > 0 {
		if err := json.Unmarshal(nodesJSON, &f.Nodes); err != nil {
			slog.Error("scanFlow nodes unmarshal failed", "error", err, "flowID", f.ID)
			f.Nodes = nil
		}
	}
	return &f, nil
}

// scanRule scans a rule row in column order
// (id, tenant_id, trigger_text, response_text, is_active, created_at, updated_at).
func scanRule(row rowScanner) (*models.Rule, error) {
	var r models.Rule
	if err := row.Scan(&r.ID, &r.TenantID, &r.Trigger, &r.ResponseText,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// scanQuickReply scans a quick reply row in column order
// (id, tenant_id, title, payload_text, sort_order, is_active, created_at, updated_at).
func scanQuickReply(row rowScanner) (*models.QuickReply, error) {
	var q models.QuickReply
	if err := row.Scan(&q.ID, &q.TenantID, &q.Title, &q.PayloadText, &q.SortOrder,
		&q.IsActive, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}

// scanKnowledgeItem scans a knowledge item row in column order
// (id, tenant_id, title, content, is_active, created_at, updated_at).
func scanKnowledgeItem(row rowScanner) (*models.KnowledgeItem, error) {
	var k models.KnowledgeItem
	if err := row.Scan(&k.ID, &k.TenantID, &k.Title, &k.Content,
		&k.IsActive, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// scanLead scans a lead row in column order
// (id, tenant_id, customer_name, phone_number, summary, current_flow_id,
// current_step_id, flow_context, created_at, updated_at).
// A corrupt flow context is logged and degraded to an empty map rather than
// failing the lookup.
func scanLead(row rowScanner) (*models.Lead, error) {
	var l models.Lead
	var customerName, summary, stepID sql.NullString
	var flowID sql.NullInt64
	var contextJSON []byte
	if err := row.Scan(&l.ID, &l.TenantID, &customerName, &l.PhoneNumber, &summary,
		&flowID, &stepID, &contextJSON, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.CustomerName = customerName.String
	l.Summary = summary.String
	if flowID.Valid {
		l.CurrentFlowID = &flowID.Int64
	}
	if stepID.Valid {
		l.CurrentStepID = &stepID.String
	}
	if len(contextJSON) > 0 {
		l.FlowContext = make(map[string]string)
		if err := json.Unmarshal(contextJSON, &l.FlowContext); err != nil {
			slog.Error("scanLead flow context unmarshal failed", "error", err, "leadID", l.ID)
			l.FlowContext = make(map[string]string)
		}
	}
	return &l, nil
}
