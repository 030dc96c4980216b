// Package testutil provides shared seeding helpers for ChatWire tests.
//
// The helpers write through the real store API and fail the calling test on
// any error, so test setup reads as data, not plumbing.
package testutil

import (
	"testing"

	"github.com/chatwire/chatwire/internal/models"
	"github.com/chatwire/chatwire/internal/store"
	"github.com/chatwire/chatwire/internal/util"
)

// VerifyTokenLength is the length of generated webhook verify tokens.
const VerifyTokenLength = 24

// RandomVerifyToken returns a fresh webhook verify token.
func RandomVerifyToken() string {
	return util.GenerateRandomAlphaNumeric(VerifyTokenLength)
}

// SeedTenant creates a tenant with the given name.
func SeedTenant(t *testing.T, st store.Store, name string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: name}
	if err := st.CreateTenant(tenant); err != nil {
		t.Fatalf("failed to seed tenant %q: %v", name, err)
	}
	return tenant
}

// SeedIntegration creates the given integration, generating a verify token
// when none is set.
func SeedIntegration(t *testing.T, st store.Store, ci *models.ChannelIntegration) *models.ChannelIntegration {
	t.Helper()
	if ci.VerifyToken == "" {
		ci.VerifyToken = RandomVerifyToken()
	}
	if err := st.CreateIntegration(ci); err != nil {
		t.Fatalf("failed to seed %s integration: %v", ci.ChannelType, err)
	}
	return ci
}

// SeedFlow creates the given flow.
func SeedFlow(t *testing.T, st store.Store, f *models.Flow) *models.Flow {
	t.Helper()
	if err := st.CreateFlow(f); err != nil {
		t.Fatalf("failed to seed flow %q: %v", f.Name, err)
	}
	return f
}

// SeedRule creates an active rule for the tenant.
func SeedRule(t *testing.T, st store.Store, tenantID int64, trigger, response string) *models.Rule {
	t.Helper()
	rule := &models.Rule{TenantID: tenantID, Trigger: trigger, ResponseText: response, IsActive: true}
	if err := st.CreateRule(rule); err != nil {
		t.Fatalf("failed to seed rule %q: %v", trigger, err)
	}
	return rule
}

// SeedQuickReply creates an active quick reply for the tenant.
func SeedQuickReply(t *testing.T, st store.Store, tenantID int64, title, payload string, sortOrder int) *models.QuickReply {
	t.Helper()
	qr := &models.QuickReply{TenantID: tenantID, Title: title, PayloadText: payload, SortOrder: sortOrder, IsActive: true}
	if err := st.CreateQuickReply(qr); err != nil {
		t.Fatalf("failed to seed quick reply %q: %v", title, err)
	}
	return qr
}

// SeedKnowledgeItem creates an active knowledge item for the tenant.
func SeedKnowledgeItem(t *testing.T, st store.Store, tenantID int64, title, content string) *models.KnowledgeItem {
	t.Helper()
	item := &models.KnowledgeItem{TenantID: tenantID, Title: title, Content: content, IsActive: true}
	if err := st.CreateKnowledgeItem(item); err != nil {
		t.Fatalf("failed to seed knowledge item %q: %v", title, err)
	}
	return item
}
