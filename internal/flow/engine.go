// Package flow executes tenant-authored conversational flows as per-lead
// state machines.
//
// A flow is a directed graph of nodes. Message nodes emit text and continue;
// question nodes emit text, park the lead at that node, and wait for the next
// inbound message. The engine mutates the lead's flow state in place and
// leaves persistence to the caller. Broken references (missing flows, missing
// nodes, dangling next pointers) are never fatal: they terminate the flow and
// clear the lead's state.
package flow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatwire/chatwire/internal/models"
)

// Outcome states how a flow step concluded.
type Outcome string

const (
	// OutcomeAwaitReply means the flow stopped at a question node and waits
	// for the lead's next message.
	OutcomeAwaitReply Outcome = "await_reply"
	// OutcomeEndOfFlow means traversal walked off the graph; the lead's flow
	// state has been cleared.
	OutcomeEndOfFlow Outcome = "end_of_flow"
	// OutcomeNoReply means the flow produced nothing: the lead is not in a
	// flow, or the flow/node it referenced is gone.
	OutcomeNoReply Outcome = "no_reply"
)

// Result is the outcome of one flow step. Text holds the accumulated node
// contents joined by blank lines; it may be empty even at end of flow.
type Result struct {
	Text    string
	Outcome Outcome
}

// FlowLoader is the storage surface the engine needs to resume flows.
type FlowLoader interface {
	GetFlow(id int64) (*models.Flow, error)
}

// Engine runs flow graphs against leads.
type Engine struct {
	flows FlowLoader
}

// NewEngine creates a flow engine backed by the given flow loader.
func NewEngine(flows FlowLoader) *Engine {
	return &Engine{flows: flows}
}

// StartFlow begins a flow for a lead: flow context is reset, the start node
// (id "start", else the first node) is located, and traversal runs from
// there. A flow with no nodes aborts the start and clears the lead's state.
func (e *Engine) StartFlow(lead *models.Lead, f *models.Flow) Result {
	flowID := f.ID
	lead.CurrentFlowID = &flowID
	lead.CurrentStepID = nil
	lead.FlowContext = map[string]string{}

	start := f.StartNode()
	if start == nil {
		slog.Debug("Flow has no nodes, aborting start", "flowID", f.ID, "leadID", lead.ID)
		lead.ClearFlowState()
		return Result{Outcome: OutcomeNoReply}
	}
	slog.Debug("Flow started", "flowID", f.ID, "leadID", lead.ID, "startNode", start.ID)
	return e.runTraversal(lead, f, start.ID)
}

// ProcessFlow continues a lead's active flow with their latest message. The
// lead must be parked at a question node; the message is captured under that
// node's variable (when declared) and traversal resumes from the node's
// successor. A missing or inactive flow, or a missing current node, clears
// the lead's flow state and yields no reply so later resolver stages can run.
func (e *Engine) ProcessFlow(lead *models.Lead, userMessage string) (Result, error) {
	if !lead.InFlow() {
		return Result{Outcome: OutcomeNoReply}, nil
	}

	f, err := e.flows.GetFlow(*lead.CurrentFlowID)
	if err != nil {
		return Result{Outcome: OutcomeNoReply}, fmt.Errorf("failed to load flow %d: %w", *lead.CurrentFlowID, err)
	}
	if f == nil || !f.IsActive {
		slog.Debug("Flow missing or inactive, clearing lead flow state", "leadID", lead.ID)
		lead.ClearFlowState()
		return Result{Outcome: OutcomeNoReply}, nil
	}

	node := f.NodeByID(*lead.CurrentStepID)
	if node == nil {
		slog.Debug("Current flow node missing, clearing lead flow state", "leadID", lead.ID, "stepID", *lead.CurrentStepID)
		lead.ClearFlowState()
		return Result{Outcome: OutcomeNoReply}, nil
	}

	if node.Variable != "" {
		captured := make(map[string]string, len(lead.FlowContext)+1)
		for k, v := range lead.FlowContext {
			captured[k] = v
		}
		captured[node.Variable] = userMessage
		lead.FlowContext = captured
		slog.Debug("Flow captured variable", "leadID", lead.ID, "variable", node.Variable)
	}

	return e.runTraversal(lead, f, node.Next), nil
}

// runTraversal walks next pointers from startNodeID, rendering each visited
// node's content against the lead's flow context. It stops to wait at the
// first question node; reaching a node id with no entry in the graph
// (including an empty id) ends the flow and clears the lead's state.
func (e *Engine) runTraversal(lead *models.Lead, f *models.Flow, startNodeID string) Result {
	var responses []string
	currentID := startNodeID
	for currentID != "" {
		node := f.NodeByID(currentID)
		if node == nil {
			slog.Debug("Flow node reference dangling, ending flow", "flowID", f.ID, "nodeID", currentID)
			break
		}

		responses = append(responses, RenderTemplate(node.Content, lead.FlowContext))

		if node.Type == models.NodeTypeQuestion {
			stepID := node.ID
			lead.CurrentStepID = &stepID
			slog.Debug("Flow waiting at question node", "flowID", f.ID, "leadID", lead.ID, "nodeID", node.ID)
			return Result{Text: strings.Join(responses, "\n\n"), Outcome: OutcomeAwaitReply}
		}
		currentID = node.Next
	}

	slog.Debug("Flow completed", "flowID", f.ID, "leadID", lead.ID)
	lead.ClearFlowState()
	return Result{Text: strings.Join(responses, "\n\n"), Outcome: OutcomeEndOfFlow}
}
