package testutil

import (
	"testing"

	"github.com/chatwire/chatwire/internal/models"
	"github.com/chatwire/chatwire/internal/store"
)

func TestSeedHelpersRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()

	tenant := SeedTenant(t, st, "Acme")
	if tenant.ID == 0 {
		t.Fatal("SeedTenant should assign an id")
	}

	integ := SeedIntegration(t, st, &models.ChannelIntegration{
		TenantID:    tenant.ID,
		ChannelType: models.ChannelTelegram,
		IsActive:    true,
	})
	if integ.VerifyToken == "" {
		t.Error("SeedIntegration should generate a verify token when none is set")
	}
	found, err := st.GetIntegrationByVerifyToken(integ.VerifyToken, models.ChannelTelegram)
	if err != nil || found == nil {
		t.Errorf("GetIntegrationByVerifyToken = (%v, %v), want the seeded integration", found, err)
	}

	SeedRule(t, st, tenant.ID, "hours", "Open 9-18.")
	rules, err := st.ListActiveRules(tenant.ID)
	if err != nil || len(rules) != 1 {
		t.Errorf("ListActiveRules = (%d rules, %v), want 1", len(rules), err)
	}

	SeedQuickReply(t, st, tenant.ID, "Pricing", "Tell me about pricing", 1)
	qrs, err := st.ListActiveQuickReplies(tenant.ID)
	if err != nil || len(qrs) != 1 {
		t.Errorf("ListActiveQuickReplies = (%d items, %v), want 1", len(qrs), err)
	}

	SeedKnowledgeItem(t, st, tenant.ID, "Hours", "Open 9-18 Mon-Fri")
	items, err := st.ListActiveKnowledgeItems(tenant.ID)
	if err != nil || len(items) != 1 {
		t.Errorf("ListActiveKnowledgeItems = (%d items, %v), want 1", len(items), err)
	}

	SeedFlow(t, st, &models.Flow{
		TenantID: tenant.ID,
		Name:     "Onboarding",
		IsActive: true,
		Nodes:    []models.FlowNode{{ID: "start", Type: models.NodeTypeMessage, Content: "Hi"}},
	})
	flows, err := st.ListActiveFlows(tenant.ID)
	if err != nil || len(flows) != 1 {
		t.Errorf("ListActiveFlows = (%d flows, %v), want 1", len(flows), err)
	}
}

func TestRandomVerifyTokenUnique(t *testing.T) {
	a, b := RandomVerifyToken(), RandomVerifyToken()
	if len(a) != VerifyTokenLength || len(b) != VerifyTokenLength {
		t.Errorf("token lengths = (%d, %d), want %d", len(a), len(b), VerifyTokenLength)
	}
	if a == b {
		t.Error("consecutive tokens should differ")
	}
}
