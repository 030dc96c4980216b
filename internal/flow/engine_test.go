package flow

import (
	"errors"
	"testing"

	"github.com/chatwire/chatwire/internal/models"
)

type stubFlowLoader struct {
	flows map[int64]*models.Flow
	err   error
}

func (s *stubFlowLoader) GetFlow(id int64) (*models.Flow, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.flows[id], nil
}

func newTestLead() *models.Lead {
	return &models.Lead{ID: 1, TenantID: 1, PhoneNumber: "555-0100", FlowContext: map[string]string{}}
}

func onboardingFlow() *models.Flow {
	return &models.Flow{
		ID:       7,
		TenantID: 1,
		Name:     "Onboarding",
		IsActive: true,
		Nodes: []models.FlowNode{
			{ID: "start", Type: models.NodeTypeMessage, Content: "Welcome!", Next: "ask_name"},
			{ID: "ask_name", Type: models.NodeTypeQuestion, Content: "What is your name?", Variable: "name", Next: "greet"},
			{ID: "greet", Type: models.NodeTypeMessage, Content: "Hi {name}"},
		},
	}
}

func TestStartFlowStopsAtFirstQuestion(t *testing.T) {
	engine := NewEngine(&stubFlowLoader{})
	lead := newTestLead()
	f := onboardingFlow()

	res := engine.StartFlow(lead, f)
	if res.Outcome != OutcomeAwaitReply {
		t.Fatalf("expected await_reply, got %s", res.Outcome)
	}
	if res.Text != "Welcome!\n\nWhat is your name?" {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if lead.CurrentFlowID == nil || *lead.CurrentFlowID != f.ID {
		t.Error("expected lead to be in the flow")
	}
	if lead.CurrentStepID == nil || *lead.CurrentStepID != "ask_name" {
		t.Errorf("expected lead parked at ask_name, got %v", lead.CurrentStepID)
	}
	if len(lead.FlowContext) != 0 {
		t.Errorf("expected empty flow context, got %v", lead.FlowContext)
	}
}

func TestProcessFlowCapturesReplyAndFinishes(t *testing.T) {
	f := onboardingFlow()
	engine := NewEngine(&stubFlowLoader{flows: map[int64]*models.Flow{f.ID: f}})
	lead := newTestLead()

	engine.StartFlow(lead, f)
	res, err := engine.ProcessFlow(lead, "Sam")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeEndOfFlow {
		t.Fatalf("expected end_of_flow, got %s", res.Outcome)
	}
	if res.Text != "Hi Sam" {
		t.Errorf("expected personalized greeting, got %q", res.Text)
	}
	if lead.InFlow() {
		t.Error("expected flow state cleared after the flow finished")
	}
	if len(lead.FlowContext) != 0 {
		t.Errorf("expected flow context cleared, got %v", lead.FlowContext)
	}
}

func TestStartFlowPrefersStartNodeID(t *testing.T) {
	f := &models.Flow{
		ID: 2, TenantID: 1, Name: "Ordered", IsActive: true,
		Nodes: []models.FlowNode{
			{ID: "intro", Type: models.NodeTypeMessage, Content: "intro text"},
			{ID: "start", Type: models.NodeTypeMessage, Content: "actual start"},
		},
	}
	engine := NewEngine(&stubFlowLoader{})
	lead := newTestLead()

	res := engine.StartFlow(lead, f)
	if res.Text != "actual start" {
		t.Errorf("expected traversal to begin at the start node, got %q", res.Text)
	}
}

func TestStartFlowFallsBackToFirstNode(t *testing.T) {
	f := &models.Flow{
		ID: 3, TenantID: 1, Name: "No start id", IsActive: true,
		Nodes: []models.FlowNode{
			{ID: "greeting", Type: models.NodeTypeMessage, Content: "first node"},
		},
	}
	engine := NewEngine(&stubFlowLoader{})
	lead := newTestLead()

	res := engine.StartFlow(lead, f)
	if res.Text != "first node" {
		t.Errorf("expected traversal to begin at the first node, got %q", res.Text)
	}
	if res.Outcome != OutcomeEndOfFlow {
		t.Errorf("expected end_of_flow, got %s", res.Outcome)
	}
}

func TestStartFlowEmptyGraph(t *testing.T) {
	f := &models.Flow{ID: 4, TenantID: 1, Name: "Empty", IsActive: true}
	engine := NewEngine(&stubFlowLoader{})
	lead := newTestLead()

	res := engine.StartFlow(lead, f)
	if res.Outcome != OutcomeNoReply || res.Text != "" {
		t.Errorf("expected silent no_reply for empty graph, got %+v", res)
	}
	if lead.InFlow() {
		t.Error("expected flow state cleared for empty graph")
	}
}

func TestProcessFlowNotInFlow(t *testing.T) {
	engine := NewEngine(&stubFlowLoader{})
	lead := newTestLead()

	res, err := engine.ProcessFlow(lead, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeNoReply {
		t.Errorf("expected no_reply for idle lead, got %s", res.Outcome)
	}
}

func TestProcessFlowMissingFlowClearsState(t *testing.T) {
	engine := NewEngine(&stubFlowLoader{flows: map[int64]*models.Flow{}})
	lead := newTestLead()
	flowID := int64(99)
	stepID := "ask_name"
	lead.CurrentFlowID = &flowID
	lead.CurrentStepID = &stepID

	res, err := engine.ProcessFlow(lead, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeNoReply {
		t.Errorf("expected no_reply, got %s", res.Outcome)
	}
	if lead.InFlow() {
		t.Error("expected flow state cleared when flow is gone")
	}
}

func TestProcessFlowInactiveFlowClearsState(t *testing.T) {
	f := onboardingFlow()
	f.IsActive = false
	engine := NewEngine(&stubFlowLoader{flows: map[int64]*models.Flow{f.ID: f}})
	lead := newTestLead()
	stepID := "ask_name"
	lead.CurrentFlowID = &f.ID
	lead.CurrentStepID = &stepID

	res, _ := engine.ProcessFlow(lead, "hello")
	if res.Outcome != OutcomeNoReply {
		t.Errorf("expected no_reply, got %s", res.Outcome)
	}
	if lead.InFlow() {
		t.Error("expected flow state cleared when flow is inactive")
	}
}

func TestProcessFlowMissingNodeClearsState(t *testing.T) {
	f := onboardingFlow()
	engine := NewEngine(&stubFlowLoader{flows: map[int64]*models.Flow{f.ID: f}})
	lead := newTestLead()
	stepID := "deleted_node"
	lead.CurrentFlowID = &f.ID
	lead.CurrentStepID = &stepID

	res, _ := engine.ProcessFlow(lead, "hello")
	if res.Outcome != OutcomeNoReply {
		t.Errorf("expected no_reply, got %s", res.Outcome)
	}
	if lead.InFlow() {
		t.Error("expected flow state cleared when node is gone")
	}
}

func TestProcessFlowLoaderError(t *testing.T) {
	engine := NewEngine(&stubFlowLoader{err: errors.New("db down")})
	lead := newTestLead()
	flowID := int64(7)
	stepID := "ask_name"
	lead.CurrentFlowID = &flowID
	lead.CurrentStepID = &stepID

	res, err := engine.ProcessFlow(lead, "hello")
	if err == nil {
		t.Fatal("expected loader error to propagate")
	}
	if res.Outcome != OutcomeNoReply {
		t.Errorf("expected no_reply on loader error, got %s", res.Outcome)
	}
}

func TestTraversalDanglingNextEndsFlow(t *testing.T) {
	f := &models.Flow{
		ID: 5, TenantID: 1, Name: "Dangling", IsActive: true,
		Nodes: []models.FlowNode{
			{ID: "start", Type: models.NodeTypeMessage, Content: "one", Next: "two"},
			{ID: "two", Type: models.NodeTypeMessage, Content: "two", Next: "ghost"},
		},
	}
	engine := NewEngine(&stubFlowLoader{})
	lead := newTestLead()

	res := engine.StartFlow(lead, f)
	if res.Outcome != OutcomeEndOfFlow {
		t.Fatalf("expected end_of_flow for dangling reference, got %s", res.Outcome)
	}
	if res.Text != "one\n\ntwo" {
		t.Errorf("expected buffer accumulated before the dangling edge, got %q", res.Text)
	}
	if lead.InFlow() {
		t.Error("expected flow state cleared after dangling reference")
	}
}

func TestProcessFlowWithoutVariableSkipsCapture(t *testing.T) {
	f := &models.Flow{
		ID: 6, TenantID: 1, Name: "No capture", IsActive: true,
		Nodes: []models.FlowNode{
			{ID: "start", Type: models.NodeTypeQuestion, Content: "Ready?", Next: "done"},
			{ID: "done", Type: models.NodeTypeMessage, Content: "Great."},
		},
	}
	engine := NewEngine(&stubFlowLoader{flows: map[int64]*models.Flow{f.ID: f}})
	lead := newTestLead()

	engine.StartFlow(lead, f)
	res, err := engine.ProcessFlow(lead, "yes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Great." {
		t.Errorf("unexpected text: %q", res.Text)
	}
	// The question node declared no variable, so nothing was captured before
	// the flow finished and cleared its context.
	if len(lead.FlowContext) != 0 {
		t.Errorf("expected no captured variables, got %v", lead.FlowContext)
	}
}

func TestFlowRestartResetsContext(t *testing.T) {
	f := onboardingFlow()
	engine := NewEngine(&stubFlowLoader{flows: map[int64]*models.Flow{f.ID: f}})
	lead := newTestLead()
	lead.FlowContext = map[string]string{"stale": "value"}

	engine.StartFlow(lead, f)
	if len(lead.FlowContext) != 0 {
		t.Errorf("expected StartFlow to reset context, got %v", lead.FlowContext)
	}

	res, _ := engine.ProcessFlow(lead, "Ada")
	if res.Text != "Hi Ada" {
		t.Errorf("expected fresh context capture, got %q", res.Text)
	}
}
