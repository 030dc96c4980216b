// Package knowledge assembles tenant knowledge base entries into prompt
// context for AI replies.
package knowledge

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatwire/chatwire/internal/models"
)

// contextHeader introduces knowledge base entries inside the system prompt.
const contextHeader = "Use the following knowledge base entries when relevant:"

// KnowledgeStore is the storage surface the builder needs.
type KnowledgeStore interface {
	ListActiveKnowledgeItems(tenantID int64) ([]models.KnowledgeItem, error)
}

// Builder formats a tenant's active knowledge base entries for inclusion in
// an AI system prompt. Retrieval is deliberately simple: all active entries
// are concatenated, which assumes tenants keep their knowledge bases small.
type Builder struct {
	store KnowledgeStore
}

// NewBuilder creates a knowledge context builder backed by the given store.
func NewBuilder(store KnowledgeStore) *Builder {
	return &Builder{store: store}
}

// Context returns the formatted knowledge context for a tenant, or an empty
// string when the tenant has no active entries.
func (b *Builder) Context(tenantID int64) (string, error) {
	items, err := b.store.ListActiveKnowledgeItems(tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to list knowledge items: %w", err)
	}
	if len(items) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(items)+1)
	lines = append(lines, contextHeader)
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("- %s: %s", item.Title, item.Content))
	}
	slog.Debug("Knowledge context built", "tenantID", tenantID, "entries", len(items))
	return strings.Join(lines, "\n"), nil
}
