// Package store provides storage backends for ChatWire.
//
// This file implements an in-memory store used for tests and DSN-less runs.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chatwire/chatwire/internal/models"
)

// MemoryStore is an in-memory Store implementation. All data is lost on
// process exit, which makes it suitable for tests and local experiments only.
type MemoryStore struct {
	mu sync.RWMutex

	nextTenantID      int64
	nextIntegrationID int64
	nextFlowID        int64
	nextRuleID        int64
	nextQuickReplyID  int64
	nextKnowledgeID   int64
	nextLeadID        int64

	tenants      map[int64]models.Tenant
	integrations map[int64]models.ChannelIntegration
	flows        map[int64]models.Flow
	rules        map[int64]models.Rule
	quickReplies map[int64]models.QuickReply
	knowledge    map[int64]models.KnowledgeItem
	leads        map[int64]models.Lead
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:      make(map[int64]models.Tenant),
		integrations: make(map[int64]models.ChannelIntegration),
		flows:        make(map[int64]models.Flow),
		rules:        make(map[int64]models.Rule),
		quickReplies: make(map[int64]models.QuickReply),
		knowledge:    make(map[int64]models.KnowledgeItem),
		leads:        make(map[int64]models.Lead),
	}
}

// CreateTenant stores a new tenant and fills its ID and timestamps.
func (s *MemoryStore) CreateTenant(t *models.Tenant) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTenantID++
	t.ID = s.nextTenantID
	stampNew(&t.CreatedAt, &t.UpdatedAt)
	s.tenants[t.ID] = *t
	return nil
}

// GetTenant retrieves a tenant by ID.
func (s *MemoryStore) GetTenant(id int64) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// CreateIntegration stores a new channel integration and fills its ID and timestamps.
func (s *MemoryStore) CreateIntegration(ci *models.ChannelIntegration) error {
	if err := ci.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.integrations {
		if existing.ChannelType == ci.ChannelType && existing.ExternalID != "" && existing.ExternalID == ci.ExternalID {
			return fmt.Errorf("integration already exists for %s/%s", ci.ChannelType, ci.ExternalID)
		}
	}
	s.nextIntegrationID++
	ci.ID = s.nextIntegrationID
	stampNew(&ci.CreatedAt, &ci.UpdatedAt)
	s.integrations[ci.ID] = *ci
	return nil
}

// GetIntegrationByVerifyToken retrieves an integration by verify token,
// optionally restricted to the given channel types.
func (s *MemoryStore) GetIntegrationByVerifyToken(verifyToken string, channelTypes ...models.ChannelType) (*models.ChannelIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := sortedKeys(s.integrations)
	for _, id := range ids {
		ci := s.integrations[id]
		if ci.VerifyToken != verifyToken {
			continue
		}
		if len(channelTypes) > 0 && !containsChannelType(channelTypes, ci.ChannelType) {
			continue
		}
		return &ci, nil
	}
	return nil, nil
}

// GetIntegrationByExternalID retrieves an integration by channel type and external ID.
func (s *MemoryStore) GetIntegrationByExternalID(channelType models.ChannelType, externalID string) (*models.ChannelIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := sortedKeys(s.integrations)
	for _, id := range ids {
		ci := s.integrations[id]
		if ci.ChannelType == channelType && ci.ExternalID == externalID {
			return &ci, nil
		}
	}
	return nil, nil
}

// CreateFlow stores a new flow and fills its ID and timestamps.
func (s *MemoryStore) CreateFlow(f *models.Flow) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFlowID++
	f.ID = s.nextFlowID
	stampNew(&f.CreatedAt, &f.UpdatedAt)
	s.flows[f.ID] = copyFlow(*f)
	return nil
}

// GetFlow retrieves a flow by ID.
func (s *MemoryStore) GetFlow(id int64) (*models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[id]
	if !ok {
		return nil, nil
	}
	flow := copyFlow(f)
	return &flow, nil
}

// ListActiveFlows retrieves all active flows for a tenant ordered by ID.
func (s *MemoryStore) ListActiveFlows(tenantID int64) ([]models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var flows []models.Flow
	for _, id := range sortedKeys(s.flows) {
		f := s.flows[id]
		if f.TenantID == tenantID && f.IsActive {
			flows = append(flows, copyFlow(f))
		}
	}
	return flows, nil
}

// CreateRule stores a new rule and fills its ID and timestamps.
func (s *MemoryStore) CreateRule(r *models.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRuleID++
	r.ID = s.nextRuleID
	stampNew(&r.CreatedAt, &r.UpdatedAt)
	s.rules[r.ID] = *r
	return nil
}

// ListActiveRules retrieves all active rules for a tenant ordered by ID.
func (s *MemoryStore) ListActiveRules(tenantID int64) ([]models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rules []models.Rule
	for _, id := range sortedKeys(s.rules) {
		r := s.rules[id]
		if r.TenantID == tenantID && r.IsActive {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// CreateQuickReply stores a new quick reply and fills its ID and timestamps.
func (s *MemoryStore) CreateQuickReply(q *models.QuickReply) error {
	if err := q.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextQuickReplyID++
	q.ID = s.nextQuickReplyID
	stampNew(&q.CreatedAt, &q.UpdatedAt)
	s.quickReplies[q.ID] = *q
	return nil
}

// GetQuickReply retrieves a quick reply by ID.
func (s *MemoryStore) GetQuickReply(id int64) (*models.QuickReply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quickReplies[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

// ListActiveQuickReplies retrieves all active quick replies for a tenant
// ordered by sort order, then ID.
func (s *MemoryStore) ListActiveQuickReplies(tenantID int64) ([]models.QuickReply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var replies []models.QuickReply
	for _, id := range sortedKeys(s.quickReplies) {
		q := s.quickReplies[id]
		if q.TenantID == tenantID && q.IsActive {
			replies = append(replies, q)
		}
	}
	sort.SliceStable(replies, func(i, j int) bool {
		if replies[i].SortOrder != replies[j].SortOrder {
			return replies[i].SortOrder < replies[j].SortOrder
		}
		return replies[i].ID < replies[j].ID
	})
	return replies, nil
}

// CreateKnowledgeItem stores a new knowledge item and fills its ID and timestamps.
func (s *MemoryStore) CreateKnowledgeItem(k *models.KnowledgeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextKnowledgeID++
	k.ID = s.nextKnowledgeID
	stampNew(&k.CreatedAt, &k.UpdatedAt)
	s.knowledge[k.ID] = *k
	return nil
}

// ListActiveKnowledgeItems retrieves all active knowledge items for a tenant ordered by ID.
func (s *MemoryStore) ListActiveKnowledgeItems(tenantID int64) ([]models.KnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []models.KnowledgeItem
	for _, id := range sortedKeys(s.knowledge) {
		k := s.knowledge[id]
		if k.TenantID == tenantID && k.IsActive {
			items = append(items, k)
		}
	}
	return items, nil
}

// CreateLead stores a new lead and fills its ID and timestamps.
func (s *MemoryStore) CreateLead(l *models.Lead) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.leads {
		if existing.TenantID == l.TenantID && existing.PhoneNumber == l.PhoneNumber {
			return fmt.Errorf("lead already exists for tenant %d phone %s", l.TenantID, l.PhoneNumber)
		}
	}
	s.nextLeadID++
	l.ID = s.nextLeadID
	stampNew(&l.CreatedAt, &l.UpdatedAt)
	s.leads[l.ID] = copyLead(*l)
	return nil
}

// GetLeadByPhone retrieves a lead by tenant and phone number (sender key).
func (s *MemoryStore) GetLeadByPhone(tenantID int64, phone string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range sortedKeys(s.leads) {
		l := s.leads[id]
		if l.TenantID == tenantID && l.PhoneNumber == phone {
			lead := copyLead(l)
			return &lead, nil
		}
	}
	return nil, nil
}

// UpdateLead persists changes to an existing lead.
func (s *MemoryStore) UpdateLead(l *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[l.ID]; !ok {
		return fmt.Errorf("lead %d not found", l.ID)
	}
	l.UpdatedAt = time.Now().UTC()
	s.leads[l.ID] = copyLead(*l)
	return nil
}

// ListLeadsInFlow retrieves all leads currently parked inside a flow.
func (s *MemoryStore) ListLeadsInFlow() ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var leads []models.Lead
	for _, id := range sortedKeys(s.leads) {
		l := s.leads[id]
		if l.CurrentFlowID != nil && l.CurrentStepID != nil {
			leads = append(leads, copyLead(l))
		}
	}
	return leads, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// sortedKeys returns map keys in ascending order for deterministic iteration.
func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func containsChannelType(types []models.ChannelType, ct models.ChannelType) bool {
	for _, t := range types {
		if t == ct {
			return true
		}
	}
	return false
}

// copyFlow returns a flow with its node slice detached from the original.
func copyFlow(f models.Flow) models.Flow {
	if f.Nodes != nil {
		nodes := make([]models.FlowNode, len(f.Nodes))
		copy(nodes, f.Nodes)
		f.Nodes = nodes
	}
	return f
}

// copyLead returns a lead with its pointer fields and context map detached
// from the original, so callers can mutate the result freely.
func copyLead(l models.Lead) models.Lead {
	if l.CurrentFlowID != nil {
		flowID := *l.CurrentFlowID
		l.CurrentFlowID = &flowID
	}
	if l.CurrentStepID != nil {
		stepID := *l.CurrentStepID
		l.CurrentStepID = &stepID
	}
	if l.FlowContext != nil {
		ctx := make(map[string]string, len(l.FlowContext))
		for k, v := range l.FlowContext {
			ctx[k] = v
		}
		l.FlowContext = ctx
	}
	return l
}
