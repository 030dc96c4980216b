// Package recovery reconciles persisted lead state with the current flow
// definitions at startup.
//
// Leads parked inside a flow survive restarts, but the flow they reference
// may have been deleted or deactivated while the process was down. The sweep
// clears flow state that can no longer resume, so those leads drop back to
// rule and AI handling instead of being stuck waiting on a dead flow.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatwire/chatwire/internal/models"
)

// SweepStore is the storage surface the sweeper needs.
type SweepStore interface {
	ListLeadsInFlow() ([]models.Lead, error)
	GetFlow(id int64) (*models.Flow, error)
	UpdateLead(l *models.Lead) error
}

// Sweeper clears dangling flow references from persisted leads.
type Sweeper struct {
	store SweepStore
}

// NewSweeper creates a Sweeper over the given store.
func NewSweeper(store SweepStore) *Sweeper {
	return &Sweeper{store: store}
}

// Run examines every lead parked in a flow and clears the ones whose flow is
// missing, inactive, or no longer contains their current step. It returns the
// number of leads cleared. Per-lead persistence failures are logged and
// counted, not fatal: a lead left dirty here is cleared again by the flow
// engine on its next message.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	leads, err := s.store.ListLeadsInFlow()
	if err != nil {
		return 0, fmt.Errorf("failed to list leads in flow: %w", err)
	}
	slog.Info("Starting lead flow-state sweep", "leads", len(leads))

	cleared := 0
	errorCount := 0
	for i := range leads {
		if ctx.Err() != nil {
			return cleared, ctx.Err()
		}
		lead := &leads[i]

		reason, stale, err := s.staleness(lead)
		if err != nil {
			slog.Error("Sweep could not inspect lead", "error", err, "leadID", lead.ID)
			errorCount++
			continue
		}
		if !stale {
			continue
		}

		lead.ClearFlowState()
		if err := s.store.UpdateLead(lead); err != nil {
			slog.Error("Sweep failed to clear lead flow state", "error", err, "leadID", lead.ID)
			errorCount++
			continue
		}
		slog.Info("Cleared dangling lead flow state", "leadID", lead.ID, "tenantID", lead.TenantID, "reason", reason)
		cleared++
	}

	slog.Info("Lead flow-state sweep completed", "cleared", cleared, "errors", errorCount)
	if errorCount > 0 {
		return cleared, fmt.Errorf("sweep completed with %d errors", errorCount)
	}
	return cleared, nil
}

// staleness reports whether the lead's flow state can no longer resume and
// why. Leads without full flow state are treated as stale: a flow id without
// a step id cannot be continued.
func (s *Sweeper) staleness(lead *models.Lead) (string, bool, error) {
	if !lead.InFlow() {
		return "incomplete flow state", true, nil
	}

	f, err := s.store.GetFlow(*lead.CurrentFlowID)
	if err != nil {
		return "", false, fmt.Errorf("failed to load flow %d: %w", *lead.CurrentFlowID, err)
	}
	if f == nil {
		return "flow deleted", true, nil
	}
	if !f.IsActive {
		return "flow inactive", true, nil
	}
	if f.NodeByID(*lead.CurrentStepID) == nil {
		return "step removed", true, nil
	}
	return "", false, nil
}
