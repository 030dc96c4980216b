// Package store provides storage backends for ChatWire.
//
// It includes PostgreSQL, SQLite, and in-memory implementations behind a common
// Store interface covering tenants, integrations, flows, rules, and leads.
package store

import (
	"strings"

	"github.com/chatwire/chatwire/internal/models"
)

// Store defines the persistence contract shared by all backends.
//
// Lookup methods return (nil, nil) when no row matches, so callers can
// distinguish "not found" from infrastructure failures.
type Store interface {
	// Tenant management
	CreateTenant(t *models.Tenant) error
	GetTenant(id int64) (*models.Tenant, error)

	// Channel integration management
	CreateIntegration(ci *models.ChannelIntegration) error
	GetIntegrationByVerifyToken(verifyToken string, channelTypes ...models.ChannelType) (*models.ChannelIntegration, error)
	GetIntegrationByExternalID(channelType models.ChannelType, externalID string) (*models.ChannelIntegration, error)

	// Flow management
	CreateFlow(f *models.Flow) error
	GetFlow(id int64) (*models.Flow, error)
	ListActiveFlows(tenantID int64) ([]models.Flow, error)

	// Rule management
	CreateRule(r *models.Rule) error
	ListActiveRules(tenantID int64) ([]models.Rule, error)

	// Quick reply management
	CreateQuickReply(q *models.QuickReply) error
	GetQuickReply(id int64) (*models.QuickReply, error)
	ListActiveQuickReplies(tenantID int64) ([]models.QuickReply, error)

	// Knowledge base management
	CreateKnowledgeItem(k *models.KnowledgeItem) error
	ListActiveKnowledgeItems(tenantID int64) ([]models.KnowledgeItem, error)

	// Lead management
	CreateLead(l *models.Lead) error
	GetLeadByPhone(tenantID int64, phone string) (*models.Lead, error)
	UpdateLead(l *models.Lead) error
	ListLeadsInFlow() ([]models.Lead, error)

	Close() error
}

// Opts holds configuration options for store construction.
type Opts struct {
	// DSN is the database connection string. PostgreSQL URLs and key=value
	// connstrings select the Postgres backend; anything else is treated as
	// an SQLite file path.
	DSN string
}

// Option defines a functional option for configuring a store.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports which backend a DSN addresses: "postgres" for
// PostgreSQL URLs or key=value connstrings, "sqlite" for everything else.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore opens the storage backend the DSN addresses. An empty DSN yields
// the in-memory store, which keeps everything in process memory and is meant
// for tests and local experiments.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
