// Package store provides storage backends for ChatWire.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/chatwire/chatwire/internal/models"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	slog.Debug("Postgres database opened")

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")
	// Run migrations to ensure all tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// CreateTenant stores a new tenant and fills its ID and timestamps.
func (s *PostgresStore) CreateTenant(t *models.Tenant) error {
	if err := t.Validate(); err != nil {
		return err
	}
	stampNew(&t.CreatedAt, &t.UpdatedAt)
	err := s.db.QueryRow(
		`INSERT INTO tenants (name, system_prompt, webhook_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		t.Name, nilIfEmpty(t.SystemPrompt), nilIfEmpty(t.WebhookURL), t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		slog.Error("PostgresStore CreateTenant failed", "error", err, "name", t.Name)
		return fmt.Errorf("failed to insert tenant %s: %w", t.Name, err)
	}
	slog.Debug("PostgresStore CreateTenant succeeded", "id", t.ID, "name", t.Name)
	return nil
}

// GetTenant retrieves a tenant by ID.
func (s *PostgresStore) GetTenant(id int64) (*models.Tenant, error) {
	row := s.db.QueryRow(
		`SELECT id, name, system_prompt, webhook_url, created_at, updated_at
		 FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetTenant not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTenant failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get tenant %d: %w", id, err)
	}
	return t, nil
}

// CreateIntegration stores a new channel integration and fills its ID and timestamps.
func (s *PostgresStore) CreateIntegration(ci *models.ChannelIntegration) error {
	if err := ci.Validate(); err != nil {
		return err
	}
	stampNew(&ci.CreatedAt, &ci.UpdatedAt)
	err := s.db.QueryRow(
		`INSERT INTO channel_integrations (tenant_id, channel_type, external_id, access_token, verify_token, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		ci.TenantID, string(ci.ChannelType), nilIfEmpty(ci.ExternalID), nilIfEmpty(ci.AccessToken),
		ci.VerifyToken, ci.IsActive, ci.CreatedAt, ci.UpdatedAt,
	).Scan(&ci.ID)
	if err != nil {
		slog.Error("PostgresStore CreateIntegration failed", "error", err, "channel", ci.ChannelType)
		return fmt.Errorf("failed to insert %s integration: %w", ci.ChannelType, err)
	}
	slog.Debug("PostgresStore CreateIntegration succeeded", "id", ci.ID, "channel", ci.ChannelType)
	return nil
}

// GetIntegrationByVerifyToken retrieves an integration by verify token,
// optionally restricted to the given channel types.
func (s *PostgresStore) GetIntegrationByVerifyToken(verifyToken string, channelTypes ...models.ChannelType) (*models.ChannelIntegration, error) {
	query := `SELECT id, tenant_id, channel_type, external_id, access_token, verify_token, is_active, created_at, updated_at
			  FROM channel_integrations WHERE verify_token = $1`
	args := []interface{}{verifyToken}
	if len(channelTypes) > 0 {
		types := make([]string, len(channelTypes))
		for i, ct := range channelTypes {
			types[i] = string(ct)
		}
		query += ` AND channel_type = ANY($2)`
		args = append(args, pq.Array(types))
	}
	query += ` LIMIT 1`

	ci, err := scanIntegration(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetIntegrationByVerifyToken not found")
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetIntegrationByVerifyToken failed", "error", err)
		return nil, fmt.Errorf("failed to get integration by verify token: %w", err)
	}
	return ci, nil
}

// GetIntegrationByExternalID retrieves an integration by channel type and external ID.
func (s *PostgresStore) GetIntegrationByExternalID(channelType models.ChannelType, externalID string) (*models.ChannelIntegration, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, channel_type, external_id, access_token, verify_token, is_active, created_at, updated_at
		 FROM channel_integrations WHERE channel_type = $1 AND external_id = $2 LIMIT 1`,
		string(channelType), externalID)
	ci, err := scanIntegration(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetIntegrationByExternalID not found", "channel", channelType, "externalID", externalID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetIntegrationByExternalID failed", "error", err, "channel", channelType)
		return nil, fmt.Errorf("failed to get %s integration: %w", channelType, err)
	}
	return ci, nil
}

// CreateFlow stores a new flow and fills its ID and timestamps.
func (s *PostgresStore) CreateFlow(f *models.Flow) error {
	if err := f.Validate(); err != nil {
		return err
	}
	nodesJSON, err := marshalNodes(f.Nodes)
	if err != nil {
		slog.Error("PostgresStore CreateFlow nodes marshal failed", "error", err, "name", f.Name)
		return err
	}
	stampNew(&f.CreatedAt, &f.UpdatedAt)
	err = s.db.QueryRow(
		`INSERT INTO flows (tenant_id, name, trigger_keyword, nodes, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		f.TenantID, f.Name, nilIfEmpty(f.TriggerKeyword), nodesJSON, f.IsActive, f.CreatedAt, f.UpdatedAt,
	).Scan(&f.ID)
	if err != nil {
		slog.Error("PostgresStore CreateFlow failed", "error", err, "name", f.Name)
		return fmt.Errorf("failed to insert flow %s: %w", f.Name, err)
	}
	slog.Debug("PostgresStore CreateFlow succeeded", "id", f.ID, "name", f.Name)
	return nil
}

// GetFlow retrieves a flow by ID.
func (s *PostgresStore) GetFlow(id int64) (*models.Flow, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, name, trigger_keyword, nodes, is_active, created_at, updated_at
		 FROM flows WHERE id = $1`, id)
	f, err := scanFlow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetFlow not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlow failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get flow %d: %w", id, err)
	}
	return f, nil
}

// ListActiveFlows retrieves all active flows for a tenant ordered by ID.
func (s *PostgresStore) ListActiveFlows(tenantID int64) ([]models.Flow, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, name, trigger_keyword, nodes, is_active, created_at, updated_at
		 FROM flows WHERE tenant_id = $1 AND is_active ORDER BY id`, tenantID)
	if err != nil {
		slog.Error("PostgresStore ListActiveFlows query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	var flows []models.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			slog.Error("PostgresStore ListActiveFlows scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}
		flows = append(flows, *f)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListActiveFlows rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate flow rows: %w", err)
	}
	slog.Debug("PostgresStore ListActiveFlows succeeded", "tenantID", tenantID, "count", len(flows))
	return flows, nil
}

// CreateRule stores a new rule and fills its ID and timestamps.
func (s *PostgresStore) CreateRule(r *models.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	stampNew(&r.CreatedAt, &r.UpdatedAt)
	err := s.db.QueryRow(
		`INSERT INTO rules (tenant_id, trigger_text, response_text, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		r.TenantID, r.Trigger, r.ResponseText, r.IsActive, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		slog.Error("PostgresStore CreateRule failed", "error", err, "trigger", r.Trigger)
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	slog.Debug("PostgresStore CreateRule succeeded", "id", r.ID, "trigger", r.Trigger)
	return nil
}

// ListActiveRules retrieves all active rules for a tenant ordered by ID.
func (s *PostgresStore) ListActiveRules(tenantID int64) ([]models.Rule, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, trigger_text, response_text, is_active, created_at, updated_at
		 FROM rules WHERE tenant_id = $1 AND is_active ORDER BY id`, tenantID)
	if err != nil {
		slog.Error("PostgresStore ListActiveRules query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			slog.Error("PostgresStore ListActiveRules scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, *r)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListActiveRules rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate rule rows: %w", err)
	}
	slog.Debug("PostgresStore ListActiveRules succeeded", "tenantID", tenantID, "count", len(rules))
	return rules, nil
}

// CreateQuickReply stores a new quick reply and fills its ID and timestamps.
func (s *PostgresStore) CreateQuickReply(q *models.QuickReply) error {
	if err := q.Validate(); err != nil {
		return err
	}
	stampNew(&q.CreatedAt, &q.UpdatedAt)
	err := s.db.QueryRow(
		`INSERT INTO quick_replies (tenant_id, title, payload_text, sort_order, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		q.TenantID, q.Title, q.PayloadText, q.SortOrder, q.IsActive, q.CreatedAt, q.UpdatedAt,
	).Scan(&q.ID)
	if err != nil {
		slog.Error("PostgresStore CreateQuickReply failed", "error", err, "title", q.Title)
		return fmt.Errorf("failed to insert quick reply %s: %w", q.Title, err)
	}
	slog.Debug("PostgresStore CreateQuickReply succeeded", "id", q.ID, "title", q.Title)
	return nil
}

// GetQuickReply retrieves a quick reply by ID.
func (s *PostgresStore) GetQuickReply(id int64) (*models.QuickReply, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, title, payload_text, sort_order, is_active, created_at, updated_at
		 FROM quick_replies WHERE id = $1`, id)
	q, err := scanQuickReply(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetQuickReply not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetQuickReply failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get quick reply %d: %w", id, err)
	}
	return q, nil
}

// ListActiveQuickReplies retrieves all active quick replies for a tenant
// ordered by sort order, then ID.
func (s *PostgresStore) ListActiveQuickReplies(tenantID int64) ([]models.QuickReply, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, title, payload_text, sort_order, is_active, created_at, updated_at
		 FROM quick_replies WHERE tenant_id = $1 AND is_active ORDER BY sort_order, id`, tenantID)
	if err != nil {
		slog.Error("PostgresStore ListActiveQuickReplies query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query quick replies: %w", err)
	}
	defer rows.Close()

	var replies []models.QuickReply
	for rows.Next() {
		q, err := scanQuickReply(rows)
		if err != nil {
			slog.Error("PostgresStore ListActiveQuickReplies scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan quick reply row: %w", err)
		}
		replies = append(replies, *q)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListActiveQuickReplies rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate quick reply rows: %w", err)
	}
	slog.Debug("PostgresStore ListActiveQuickReplies succeeded", "tenantID", tenantID, "count", len(replies))
	return replies, nil
}

// CreateKnowledgeItem stores a new knowledge item and fills its ID and timestamps.
func (s *PostgresStore) CreateKnowledgeItem(k *models.KnowledgeItem) error {
	stampNew(&k.CreatedAt, &k.UpdatedAt)
	err := s.db.QueryRow(
		`INSERT INTO knowledge_items (tenant_id, title, content, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		k.TenantID, k.Title, k.Content, k.IsActive, k.CreatedAt, k.UpdatedAt,
	).Scan(&k.ID)
	if err != nil {
		slog.Error("PostgresStore CreateKnowledgeItem failed", "error", err, "title", k.Title)
		return fmt.Errorf("failed to insert knowledge item %s: %w", k.Title, err)
	}
	slog.Debug("PostgresStore CreateKnowledgeItem succeeded", "id", k.ID, "title", k.Title)
	return nil
}

// ListActiveKnowledgeItems retrieves all active knowledge items for a tenant ordered by ID.
func (s *PostgresStore) ListActiveKnowledgeItems(tenantID int64) ([]models.KnowledgeItem, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, title, content, is_active, created_at, updated_at
		 FROM knowledge_items WHERE tenant_id = $1 AND is_active ORDER BY id`, tenantID)
	if err != nil {
		slog.Error("PostgresStore ListActiveKnowledgeItems query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query knowledge items: %w", err)
	}
	defer rows.Close()

	var items []models.KnowledgeItem
	for rows.Next() {
		k, err := scanKnowledgeItem(rows)
		if err != nil {
			slog.Error("PostgresStore ListActiveKnowledgeItems scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan knowledge item row: %w", err)
		}
		items = append(items, *k)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListActiveKnowledgeItems rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate knowledge item rows: %w", err)
	}
	slog.Debug("PostgresStore ListActiveKnowledgeItems succeeded", "tenantID", tenantID, "count", len(items))
	return items, nil
}

// CreateLead stores a new lead and fills its ID and timestamps.
func (s *PostgresStore) CreateLead(l *models.Lead) error {
	if err := l.Validate(); err != nil {
		return err
	}
	contextJSON, err := marshalContext(l.FlowContext)
	if err != nil {
		slog.Error("PostgresStore CreateLead context marshal failed", "error", err, "phone", l.PhoneNumber)
		return err
	}
	stampNew(&l.CreatedAt, &l.UpdatedAt)
	err = s.db.QueryRow(
		`INSERT INTO leads (tenant_id, customer_name, phone_number, summary, current_flow_id, current_step_id, flow_context, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		l.TenantID, nilIfEmpty(l.CustomerName), l.PhoneNumber, nilIfEmpty(l.Summary),
		l.CurrentFlowID, l.CurrentStepID, contextJSON, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
	if err != nil {
		slog.Error("PostgresStore CreateLead failed", "error", err, "phone", l.PhoneNumber)
		return fmt.Errorf("failed to insert lead for %s: %w", l.PhoneNumber, err)
	}
	slog.Debug("PostgresStore CreateLead succeeded", "id", l.ID, "phone", l.PhoneNumber)
	return nil
}

// GetLeadByPhone retrieves a lead by tenant and phone number (sender key).
func (s *PostgresStore) GetLeadByPhone(tenantID int64, phone string) (*models.Lead, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, customer_name, phone_number, summary, current_flow_id, current_step_id, flow_context, created_at, updated_at
		 FROM leads WHERE tenant_id = $1 AND phone_number = $2`, tenantID, phone)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetLeadByPhone not found", "tenantID", tenantID, "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLeadByPhone failed", "error", err, "tenantID", tenantID, "phone", phone)
		return nil, fmt.Errorf("failed to get lead for %s: %w", phone, err)
	}
	return l, nil
}

// UpdateLead persists changes to an existing lead.
func (s *PostgresStore) UpdateLead(l *models.Lead) error {
	contextJSON, err := marshalContext(l.FlowContext)
	if err != nil {
		slog.Error("PostgresStore UpdateLead context marshal failed", "error", err, "id", l.ID)
		return err
	}
	l.UpdatedAt = time.Now().UTC()
	_, err = s.db.Exec(
		`UPDATE leads SET customer_name = $1, summary = $2, current_flow_id = $3, current_step_id = $4, flow_context = $5, updated_at = $6
		 WHERE id = $7`,
		nilIfEmpty(l.CustomerName), nilIfEmpty(l.Summary), l.CurrentFlowID, l.CurrentStepID, contextJSON, l.UpdatedAt, l.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateLead failed", "error", err, "id", l.ID)
		return fmt.Errorf("failed to update lead %d: %w", l.ID, err)
	}
	slog.Debug("PostgresStore UpdateLead succeeded", "id", l.ID)
	return nil
}

// ListLeadsInFlow retrieves all leads currently parked inside a flow.
func (s *PostgresStore) ListLeadsInFlow() ([]models.Lead, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, customer_name, phone_number, summary, current_flow_id, current_step_id, flow_context, created_at, updated_at
		 FROM leads WHERE current_flow_id IS NOT NULL AND current_step_id IS NOT NULL ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListLeadsInFlow query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads in flow: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			slog.Error("PostgresStore ListLeadsInFlow scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListLeadsInFlow rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	slog.Debug("PostgresStore ListLeadsInFlow succeeded", "count", len(leads))
	return leads, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
