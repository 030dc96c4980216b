// Package store provides storage backends for ChatWire.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/chatwire/chatwire/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	slog.Debug("SQLite database opened")

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// CreateTenant stores a new tenant and fills its ID and timestamps.
func (s *SQLiteStore) CreateTenant(t *models.Tenant) error {
	if err := t.Validate(); err != nil {
		return err
	}
	stampNew(&t.CreatedAt, &t.UpdatedAt)
	res, err := s.db.Exec(
		`INSERT INTO tenants (name, system_prompt, webhook_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.Name, nilIfEmpty(t.SystemPrompt), nilIfEmpty(t.WebhookURL), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateTenant failed", "error", err, "name", t.Name)
		return fmt.Errorf("failed to insert tenant %s: %w", t.Name, err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateTenant id lookup failed", "error", err, "name", t.Name)
		return fmt.Errorf("failed to read tenant id: %w", err)
	}
	slog.Debug("SQLiteStore CreateTenant succeeded", "id", t.ID, "name", t.Name)
	return nil
}

// GetTenant retrieves a tenant by ID.
func (s *SQLiteStore) GetTenant(id int64) (*models.Tenant, error) {
	row := s.db.QueryRow(
		`SELECT id, name, system_prompt, webhook_url, created_at, updated_at FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetTenant not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTenant failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get tenant %d: %w", id, err)
	}
	return t, nil
}

// CreateIntegration stores a new channel integration and fills its ID and timestamps.
func (s *SQLiteStore) CreateIntegration(ci *models.ChannelIntegration) error {
	if err := ci.Validate(); err != nil {
		return err
	}
	stampNew(&ci.CreatedAt, &ci.UpdatedAt)
	res, err := s.db.Exec(
		`INSERT INTO channel_integrations (tenant_id, channel_type, external_id, access_token, verify_token, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ci.TenantID, string(ci.ChannelType), nilIfEmpty(ci.ExternalID), nilIfEmpty(ci.AccessToken),
		ci.VerifyToken, ci.IsActive, ci.CreatedAt, ci.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateIntegration failed", "error", err, "channel", ci.ChannelType)
		return fmt.Errorf("failed to insert %s integration: %w", ci.ChannelType, err)
	}
	ci.ID, err = res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateIntegration id lookup failed", "error", err)
		return fmt.Errorf("failed to read integration id: %w", err)
	}
	slog.Debug("SQLiteStore CreateIntegration succeeded", "id", ci.ID, "channel", ci.ChannelType)
	return nil
}

// GetIntegrationByVerifyToken retrieves an integration by verify token,
// optionally restricted to the given channel types.
func (s *SQLiteStore) GetIntegrationByVerifyToken(verifyToken string, channelTypes ...models.ChannelType) (*models.ChannelIntegration, error) {
	query := `SELECT id, tenant_id, channel_type, external_id, access_token, verify_token, is_active, created_at, updated_at
			  FROM channel_integrations WHERE verify_token = ?`
	args := []interface{}{verifyToken}
	if len(channelTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(channelTypes)), ",")
		query += ` AND channel_type IN (` + placeholders + `)`
		for _, ct := range channelTypes {
			args = append(args, string(ct))
		}
	}
	query += ` LIMIT 1`

	ci, err := scanIntegration(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetIntegrationByVerifyToken not found")
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetIntegrationByVerifyToken failed", "error", err)
		return nil, fmt.Errorf("failed to get integration by verify token: %w", err)
	}
	return ci, nil
}

// GetIntegrationByExternalID retrieves an integration by channel type and external ID.
func (s *SQLiteStore) GetIntegrationByExternalID(channelType models.ChannelType, externalID string) (*models.ChannelIntegration, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, channel_type, external_id, access_token, verify_token, is_active, created_at, updated_at
		 FROM channel_integrations WHERE channel_type = ? AND external_id = ? LIMIT 1`,
		string(channelType), externalID)
	ci, err := scanIntegration(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetIntegrationByExternalID not found", "channel", channelType, "externalID", externalID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetIntegrationByExternalID failed", "error", err, "channel", channelType)
		return nil, fmt.Errorf("failed to get %s integration: %w", channelType, err)
	}
	return ci, nil
}

// CreateFlow stores a new flow and fills its ID and timestamps.
func (s *SQLiteStore) CreateFlow(f *models.Flow) error {
	if err := f.Validate(); err != nil {
		return err
	}
	nodesJSON, err := marshalNodes(f.Nodes)
	if err != nil {
		slog.Error("SQLiteStore CreateFlow nodes marshal failed", "error", err, "name", f.Name)
		return err
	}
	stampNew(&f.CreatedAt, &f.UpdatedAt)
	res, err := s.db.Exec(
		`INSERT INTO flows (tenant_id, name, trigger_keyword, nodes, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.TenantID, f.Name, nilIfEmpty(f.TriggerKeyword), nodesJSON, f.IsActive, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateFlow failed", "error", err, "name", f.Name)
		return fmt.Errorf("failed to insert flow %s: %w", f.Name, err)
	}
	f.ID, err = res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateFlow id lookup failed", "error", err)
		return fmt.Errorf("failed to read flow id: %w", err)
	}
	slog.Debug("SQLiteStore CreateFlow succeeded", "id", f.ID, "name", f.Name)
	return nil
}

// GetFlow retrieves a flow by ID.
func (s *SQLiteStore) GetFlow(id int64) (*models.Flow, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, name, trigger_keyword, nodes, is_active, created_at, updated_at
		 FROM flows WHERE id = ?`, id)
	f, err := scanFlow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetFlow not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlow failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get flow %d: %w", id, err)
	}
	return f, nil
}

// ListActiveFlows retrieves all active flows for a tenant ordered by ID.
func (s *SQLiteStore) ListActiveFlows(tenantID int64) ([]models.Flow, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, name, trigger_keyword, nodes, is_active, created_at, updated_at
		 FROM flows WHERE tenant_id = ? AND is_active ORDER BY id`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore ListActiveFlows query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	var flows []models.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActiveFlows scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}
		flows = append(flows, *f)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListActiveFlows rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate flow rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActiveFlows succeeded", "tenantID", tenantID, "count", len(flows))
	return flows, nil
}

// CreateRule stores a new rule and fills its ID and timestamps.
func (s *SQLiteStore) CreateRule(r *models.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	stampNew(&r.CreatedAt, &r.UpdatedAt)
	res, err := s.db.Exec(
		`INSERT INTO rules (tenant_id, trigger_text, response_text, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.TenantID, r.Trigger, r.ResponseText, r.IsActive, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateRule failed", "error", err, "trigger", r.Trigger)
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateRule id lookup failed", "error", err)
		return fmt.Errorf("failed to read rule id: %w", err)
	}
	slog.Debug("SQLiteStore CreateRule succeeded", "id", r.ID, "trigger", r.Trigger)
	return nil
}

// ListActiveRules retrieves all active rules for a tenant ordered by ID.
func (s *SQLiteStore) ListActiveRules(tenantID int64) ([]models.Rule, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, trigger_text, response_text, is_active, created_at, updated_at
		 FROM rules WHERE tenant_id = ? AND is_active ORDER BY id`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore ListActiveRules query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActiveRules scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, *r)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListActiveRules rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate rule rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActiveRules succeeded", "tenantID", tenantID, "count", len(rules))
	return rules, nil
}

// CreateQuickReply stores a new quick reply and fills its ID and timestamps.
func (s *SQLiteStore) CreateQuickReply(q *models.QuickReply) error {
	if err := q.Validate(); err != nil {
		return err
	}
	stampNew(&q.CreatedAt, &q.UpdatedAt)
	res, err := s.db.Exec(
		`INSERT INTO quick_replies (tenant_id, title, payload_text, sort_order, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.TenantID, q.Title, q.PayloadText, q.SortOrder, q.IsActive, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateQuickReply failed", "error", err, "title", q.Title)
		return fmt.Errorf("failed to insert quick reply %s: %w", q.Title, err)
	}
	q.ID, err = res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateQuickReply id lookup failed", "error", err)
		return fmt.Errorf("failed to read quick reply id: %w", err)
	}
	slog.Debug("SQLiteStore CreateQuickReply succeeded", "id", q.ID, "title", q.Title)
	return nil
}

// GetQuickReply retrieves a quick reply by ID.
func (s *SQLiteStore) GetQuickReply(id int64) (*models.QuickReply, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, title, payload_text, sort_order, is_active, created_at, updated_at
		 FROM quick_replies WHERE id = ?`, id)
	q, err := scanQuickReply(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetQuickReply not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetQuickReply failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get quick reply %d: %w", id, err)
	}
	return q, nil
}

// ListActiveQuickReplies retrieves all active quick replies for a tenant
// ordered by sort order, then ID.
func (s *SQLiteStore) ListActiveQuickReplies(tenantID int64) ([]models.QuickReply, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, title, payload_text, sort_order, is_active, created_at, updated_at
		 FROM quick_replies WHERE tenant_id = ? AND is_active ORDER BY sort_order, id`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore ListActiveQuickReplies query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query quick replies: %w", err)
	}
	defer rows.Close()

	var replies []models.QuickReply
	for rows.Next() {
		q, err := scanQuickReply(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActiveQuickReplies scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan quick reply row: %w", err)
		}
		replies = append(replies, *q)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListActiveQuickReplies rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate quick reply rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActiveQuickReplies succeeded", "tenantID", tenantID, "count", len(replies))
	return replies, nil
}

// CreateKnowledgeItem stores a new knowledge item and fills its ID and timestamps.
func (s *SQLiteStore) CreateKnowledgeItem(k *models.KnowledgeItem) error {
	stampNew(&k.CreatedAt, &k.UpdatedAt)
	res, err := s.db.Exec(
		`INSERT INTO knowledge_items (tenant_id, title, content, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		k.TenantID, k.Title, k.Content, k.IsActive, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateKnowledgeItem failed", "error", err, "title", k.Title)
		return fmt.Errorf("failed to insert knowledge item %s: %w", k.Title, err)
	}
	k.ID, err = res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateKnowledgeItem id lookup failed", "error", err)
		return fmt.Errorf("failed to read knowledge item id: %w", err)
	}
	slog.Debug("SQLiteStore CreateKnowledgeItem succeeded", "id", k.ID, "title", k.Title)
	return nil
}

// ListActiveKnowledgeItems retrieves all active knowledge items for a tenant ordered by ID.
func (s *SQLiteStore) ListActiveKnowledgeItems(tenantID int64) ([]models.KnowledgeItem, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, title, content, is_active, created_at, updated_at
		 FROM knowledge_items WHERE tenant_id = ? AND is_active ORDER BY id`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore ListActiveKnowledgeItems query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query knowledge items: %w", err)
	}
	defer rows.Close()

	var items []models.KnowledgeItem
	for rows.Next() {
		k, err := scanKnowledgeItem(rows)
		if err != nil {
			slog.Error("SQLiteStore ListActiveKnowledgeItems scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan knowledge item row: %w", err)
		}
		items = append(items, *k)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListActiveKnowledgeItems rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate knowledge item rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActiveKnowledgeItems succeeded", "tenantID", tenantID, "count", len(items))
	return items, nil
}

// CreateLead stores a new lead and fills its ID and timestamps.
func (s *SQLiteStore) CreateLead(l *models.Lead) error {
	if err := l.Validate(); err != nil {
		return err
	}
	contextJSON, err := marshalContext(l.FlowContext)
	if err != nil {
		slog.Error("SQLiteStore CreateLead context marshal failed", "error", err, "phone", l.PhoneNumber)
		return err
	}
	stampNew(&l.CreatedAt, &l.UpdatedAt)
	res, err := s.db.Exec(
		`INSERT INTO leads (tenant_id, customer_name, phone_number, summary, current_flow_id, current_step_id, flow_context, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.TenantID, nilIfEmpty(l.CustomerName), l.PhoneNumber, nilIfEmpty(l.Summary),
		l.CurrentFlowID, l.CurrentStepID, contextJSON, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateLead failed", "error", err, "phone", l.PhoneNumber)
		return fmt.Errorf("failed to insert lead for %s: %w", l.PhoneNumber, err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateLead id lookup failed", "error", err)
		return fmt.Errorf("failed to read lead id: %w", err)
	}
	slog.Debug("SQLiteStore CreateLead succeeded", "id", l.ID, "phone", l.PhoneNumber)
	return nil
}

// GetLeadByPhone retrieves a lead by tenant and phone number (sender key).
func (s *SQLiteStore) GetLeadByPhone(tenantID int64, phone string) (*models.Lead, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, customer_name, phone_number, summary, current_flow_id, current_step_id, flow_context, created_at, updated_at
		 FROM leads WHERE tenant_id = ? AND phone_number = ?`, tenantID, phone)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetLeadByPhone not found", "tenantID", tenantID, "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLeadByPhone failed", "error", err, "tenantID", tenantID, "phone", phone)
		return nil, fmt.Errorf("failed to get lead for %s: %w", phone, err)
	}
	return l, nil
}

// UpdateLead persists changes to an existing lead.
func (s *SQLiteStore) UpdateLead(l *models.Lead) error {
	contextJSON, err := marshalContext(l.FlowContext)
	if err != nil {
		slog.Error("SQLiteStore UpdateLead context marshal failed", "error", err, "id", l.ID)
		return err
	}
	l.UpdatedAt = time.Now().UTC()
	_, err = s.db.Exec(
		`UPDATE leads SET customer_name = ?, summary = ?, current_flow_id = ?, current_step_id = ?, flow_context = ?, updated_at = ?
		 WHERE id = ?`,
		nilIfEmpty(l.CustomerName), nilIfEmpty(l.Summary), l.CurrentFlowID, l.CurrentStepID, contextJSON, l.UpdatedAt, l.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateLead failed", "error", err, "id", l.ID)
		return fmt.Errorf("failed to update lead %d: %w", l.ID, err)
	}
	slog.Debug("SQLiteStore UpdateLead succeeded", "id", l.ID)
	return nil
}

// ListLeadsInFlow retrieves all leads currently parked inside a flow.
func (s *SQLiteStore) ListLeadsInFlow() ([]models.Lead, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, customer_name, phone_number, summary, current_flow_id, current_step_id, flow_context, created_at, updated_at
		 FROM leads WHERE current_flow_id IS NOT NULL AND current_step_id IS NOT NULL ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListLeadsInFlow query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads in flow: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			slog.Error("SQLiteStore ListLeadsInFlow scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListLeadsInFlow rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	slog.Debug("SQLiteStore ListLeadsInFlow succeeded", "count", len(leads))
	return leads, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
