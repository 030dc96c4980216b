package models

import (
	"encoding/json"
	"testing"
)

func TestIsValidChannelType(t *testing.T) {
	for _, ct := range []ChannelType{ChannelTelegram, ChannelWhatsApp, ChannelMessenger, ChannelInstagram} {
		if !IsValidChannelType(ct) {
			t.Errorf("expected %q to be valid", ct)
		}
	}
	if IsValidChannelType("sms") {
		t.Error("expected unknown channel type to be invalid")
	}
}

func TestIsValidNodeType(t *testing.T) {
	for _, nt := range []NodeType{NodeTypeMessage, NodeTypeQuestion} {
		if !IsValidNodeType(nt) {
			t.Errorf("expected %q to be valid", nt)
		}
	}
	if IsValidNodeType("prompt") {
		t.Error("expected unknown node type to be invalid")
	}
}

func TestChannelIntegrationValidate(t *testing.T) {
	ci := ChannelIntegration{ChannelType: ChannelTelegram, VerifyToken: "tok"}
	if err := ci.Validate(); err != nil {
		t.Errorf("expected telegram integration without external id to validate, got %v", err)
	}

	ci = ChannelIntegration{ChannelType: "sms", VerifyToken: "tok"}
	if err := ci.Validate(); err != ErrInvalidChannelType {
		t.Errorf("expected ErrInvalidChannelType, got %v", err)
	}

	ci = ChannelIntegration{ChannelType: ChannelWhatsApp, ExternalID: "123"}
	if err := ci.Validate(); err != ErrEmptyVerifyToken {
		t.Errorf("expected ErrEmptyVerifyToken, got %v", err)
	}

	ci = ChannelIntegration{ChannelType: ChannelWhatsApp, VerifyToken: "tok"}
	if err := ci.Validate(); err != ErrEmptyExternalID {
		t.Errorf("expected ErrEmptyExternalID, got %v", err)
	}
}

func TestFlowValidate(t *testing.T) {
	f := Flow{Name: "welcome", Nodes: []FlowNode{{ID: "start", Type: NodeTypeMessage, Content: "Hello"}}}
	if err := f.Validate(); err != nil {
		t.Errorf("expected valid flow, got %v", err)
	}

	f = Flow{Nodes: nil}
	if err := f.Validate(); err != ErrEmptyFlowName {
		t.Errorf("expected ErrEmptyFlowName, got %v", err)
	}

	f = Flow{Name: "broken", Nodes: []FlowNode{{ID: "", Type: NodeTypeMessage}}}
	if err := f.Validate(); err != ErrEmptyNodeID {
		t.Errorf("expected ErrEmptyNodeID, got %v", err)
	}

	f = Flow{Name: "broken", Nodes: []FlowNode{{ID: "a", Type: "loop"}}}
	if err := f.Validate(); err != ErrInvalidNodeType {
		t.Errorf("expected ErrInvalidNodeType, got %v", err)
	}
}

func TestFlowStartNode(t *testing.T) {
	f := Flow{Nodes: []FlowNode{
		{ID: "greet", Type: NodeTypeMessage},
		{ID: "start", Type: NodeTypeQuestion},
	}}
	if node := f.StartNode(); node == nil || node.ID != "start" {
		t.Errorf("expected start node to win, got %+v", node)
	}

	f = Flow{Nodes: []FlowNode{{ID: "greet", Type: NodeTypeMessage}}}
	if node := f.StartNode(); node == nil || node.ID != "greet" {
		t.Errorf("expected first node fallback, got %+v", node)
	}

	f = Flow{}
	if node := f.StartNode(); node != nil {
		t.Errorf("expected nil start node for empty graph, got %+v", node)
	}
}

func TestFlowNodeByID(t *testing.T) {
	f := Flow{Nodes: []FlowNode{{ID: "a"}, {ID: "b"}}}
	if node := f.NodeByID("b"); node == nil || node.ID != "b" {
		t.Errorf("expected node b, got %+v", node)
	}
	if node := f.NodeByID("missing"); node != nil {
		t.Errorf("expected nil for missing node, got %+v", node)
	}
}

func TestRuleValidate(t *testing.T) {
	r := Rule{Trigger: "hours", ResponseText: "We are open 9-5."}
	if err := r.Validate(); err != nil {
		t.Errorf("expected valid rule, got %v", err)
	}
	r = Rule{ResponseText: "x"}
	if err := r.Validate(); err != ErrEmptyRuleTrigger {
		t.Errorf("expected ErrEmptyRuleTrigger, got %v", err)
	}
	r = Rule{Trigger: "hours"}
	if err := r.Validate(); err != ErrEmptyRuleResponse {
		t.Errorf("expected ErrEmptyRuleResponse, got %v", err)
	}
}

func TestQuickReplyValidate(t *testing.T) {
	q := QuickReply{Title: "Pricing", PayloadText: "Tell me about pricing"}
	if err := q.Validate(); err != nil {
		t.Errorf("expected valid quick reply, got %v", err)
	}
	q = QuickReply{PayloadText: "x"}
	if err := q.Validate(); err != ErrEmptyQuickReplyTitle {
		t.Errorf("expected ErrEmptyQuickReplyTitle, got %v", err)
	}
	q = QuickReply{Title: "Pricing"}
	if err := q.Validate(); err != ErrEmptyQuickReplyText {
		t.Errorf("expected ErrEmptyQuickReplyText, got %v", err)
	}
}

func TestLeadFlowState(t *testing.T) {
	lead := Lead{}
	if lead.InFlow() {
		t.Error("expected fresh lead to not be in a flow")
	}

	flowID := int64(7)
	stepID := "ask_name"
	lead.CurrentFlowID = &flowID
	lead.CurrentStepID = &stepID
	lead.FlowContext = map[string]string{"name": "Sam"}
	if !lead.InFlow() {
		t.Error("expected lead with flow id and step id to be in a flow")
	}

	lead.ClearFlowState()
	if lead.InFlow() {
		t.Error("expected cleared lead to not be in a flow")
	}
	if lead.CurrentFlowID != nil || lead.CurrentStepID != nil || lead.FlowContext != nil {
		t.Error("expected all flow fields to be reset")
	}
}

func TestLeadNotificationJSON(t *testing.T) {
	note := LeadNotification{
		LeadID:        3,
		TenantID:      1,
		CustomerName:  "John Smith",
		PhoneNumber:   "555-123-4567",
		Summary:       "Captured lead: name=John Smith, phone=555-123-4567",
		SourceMessage: "My name is John Smith, call me at 555-123-4567",
	}
	data, err := json.Marshal(note)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, key := range []string{"lead_id", "tenant_id", "customer_name", "phone_number", "summary", "source_message"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in notification payload", key)
		}
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := Success(map[string]int{"count": 1})
	if resp.Status != string(APIStatusOK) {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if resp.Result == nil {
		t.Error("expected result to be set")
	}

	resp = Error("integration not found")
	if resp.Status != string(APIStatusError) || resp.Message != "integration not found" {
		t.Errorf("unexpected error response: %+v", resp)
	}

	resp = Ignored()
	if resp.Status != string(APIStatusIgnored) {
		t.Errorf("expected status ignored, got %s", resp.Status)
	}

	resp = NewAPIResponseBuilder().WithStatus(APIStatusOK).WithMessage("done").WithResult(42).Build()
	if resp.Status != "ok" || resp.Message != "done" || resp.Result != 42 {
		t.Errorf("unexpected built response: %+v", resp)
	}
}
