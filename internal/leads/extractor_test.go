package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatwire/chatwire/internal/models"
	"github.com/chatwire/chatwire/internal/store"
)

type recordingStore struct {
	*store.MemoryStore
	created int
	updated int
}

func (r *recordingStore) CreateLead(l *models.Lead) error {
	r.created++
	return r.MemoryStore.CreateLead(l)
}

func (r *recordingStore) UpdateLead(l *models.Lead) error {
	r.updated++
	return r.MemoryStore.UpdateLead(l)
}

type stubCompleter struct {
	configured bool
	resp       string
	err        error
	calls      int
}

func (s *stubCompleter) Configured() bool { return s.configured }

func (s *stubCompleter) Complete(ctx context.Context, systemPrompt, userMessage string, temperature float64) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.resp, nil
}

func newCaptureFixture(t *testing.T, webhookURL string) (*recordingStore, *models.Tenant) {
	t.Helper()
	st := &recordingStore{MemoryStore: store.NewMemoryStore()}
	tenant := &models.Tenant{Name: "Acme", WebhookURL: webhookURL}
	if err := st.CreateTenant(tenant); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	return st, tenant
}

func TestExtractContact(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    *Contact
	}{
		{
			name:    "name and dashed phone",
			message: "Hi, my name is john smith. My number is 555-123-4567.",
			want:    &Contact{CustomerName: "John Smith", PhoneNumber: "555-123-4567"},
		},
		{
			name:    "bare digits without name",
			message: "you can reach me on 5551234567",
			want:    &Contact{CustomerName: "", PhoneNumber: "5551234567"},
		},
		{
			name:    "i am pattern",
			message: "I am bob. Call 555-123-4567.",
			want:    &Contact{CustomerName: "Bob", PhoneNumber: "555-123-4567"},
		},
		{
			name:    "hyphenated name keeps both capitals",
			message: "I'm maria-clara. Phone: 555-123-4567.",
			want:    &Contact{CustomerName: "Maria-Clara", PhoneNumber: "555-123-4567"},
		},
		{
			name:    "name without phone yields nothing",
			message: "my name is sam.",
			want:    nil,
		},
		{
			name:    "no contact details",
			message: "do you ship to Lisbon?",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractContact(tt.message)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil contact, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a contact, got nil")
			}
			if got.CustomerName != tt.want.CustomerName || got.PhoneNumber != tt.want.PhoneNumber {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCaptureCreatesLeadAndNotifies(t *testing.T) {
	var received models.LeadNotification
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode webhook payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st, tenant := newCaptureFixture(t, srv.URL)
	ex := NewExtractor(st, nil, nil)

	message := "Hi, my name is jane roe. Call 555-123-4567 or jane@roe.dev."
	ex.Capture(context.Background(), tenant.ID, "tg:1", message)

	lead, err := st.GetLeadByPhone(tenant.ID, "555-123-4567")
	if err != nil {
		t.Fatalf("failed to load lead: %v", err)
	}
	if lead == nil {
		t.Fatal("expected a lead to be created")
	}
	if lead.CustomerName != "Jane Roe" {
		t.Errorf("expected customer name Jane Roe, got %q", lead.CustomerName)
	}
	wantSummary := "Captured lead: name=Jane Roe, phone=555-123-4567, email=jane@roe.dev"
	if lead.Summary != wantSummary {
		t.Errorf("got summary %q, want %q", lead.Summary, wantSummary)
	}

	if hits != 1 {
		t.Fatalf("expected 1 webhook delivery, got %d", hits)
	}
	if received.LeadID != lead.ID || received.TenantID != tenant.ID {
		t.Errorf("webhook ids mismatch: %+v", received)
	}
	if received.PhoneNumber != "555-123-4567" || received.CustomerName != "Jane Roe" {
		t.Errorf("webhook contact mismatch: %+v", received)
	}
	if received.SourceMessage != message {
		t.Errorf("webhook source message mismatch: %q", received.SourceMessage)
	}
}

func TestCaptureFallsBackToSenderID(t *testing.T) {
	st, tenant := newCaptureFixture(t, "")
	ex := NewExtractor(st, &stubCompleter{configured: false}, nil)

	ex.Capture(context.Background(), tenant.ID, "wa:5511999", "hello, I need help")

	lead, err := st.GetLeadByPhone(tenant.ID, "wa:5511999")
	if err != nil {
		t.Fatalf("failed to load lead: %v", err)
	}
	if lead == nil {
		t.Fatal("expected a lead keyed by sender id")
	}
	if lead.Summary != "Captured lead: phone=wa:5511999" {
		t.Errorf("unexpected summary %q", lead.Summary)
	}
}

func TestCaptureNoIdentityRecordsNothing(t *testing.T) {
	st, tenant := newCaptureFixture(t, "")
	ex := NewExtractor(st, nil, nil)

	ex.Capture(context.Background(), tenant.ID, "", "just browsing")

	if st.created != 0 || st.updated != 0 {
		t.Errorf("expected no writes, got created=%d updated=%d", st.created, st.updated)
	}
}

func TestCaptureBackfillsName(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st, tenant := newCaptureFixture(t, srv.URL)
	if err := st.CreateLead(&models.Lead{TenantID: tenant.ID, PhoneNumber: "555-123-4567"}); err != nil {
		t.Fatalf("failed to seed lead: %v", err)
	}
	st.created = 0
	ex := NewExtractor(st, nil, nil)

	ex.Capture(context.Background(), tenant.ID, "", "my name is ada lovelace, number 555-123-4567")

	lead, err := st.GetLeadByPhone(tenant.ID, "555-123-4567")
	if err != nil {
		t.Fatalf("failed to load lead: %v", err)
	}
	if lead.CustomerName != "Ada Lovelace" {
		t.Errorf("expected backfilled name, got %q", lead.CustomerName)
	}
	if st.created != 0 || st.updated != 1 {
		t.Errorf("expected a single update, got created=%d updated=%d", st.created, st.updated)
	}
	if hits != 1 {
		t.Errorf("expected 1 webhook delivery for the backfill, got %d", hits)
	}

	// A repeat capture with a different name must not overwrite or re-notify.
	ex.Capture(context.Background(), tenant.ID, "", "my name is eve, number 555-123-4567")
	lead, _ = st.GetLeadByPhone(tenant.ID, "555-123-4567")
	if lead.CustomerName != "Ada Lovelace" {
		t.Errorf("expected existing name kept, got %q", lead.CustomerName)
	}
	if hits != 1 {
		t.Errorf("expected no second webhook delivery, got %d", hits)
	}
}

func TestCaptureLLMFallback(t *testing.T) {
	st, tenant := newCaptureFixture(t, "")
	ai := &stubCompleter{
		configured: true,
		resp:       "```json\n{\"customer_name\": \"Ada\", \"phone_number\": \"+55 11 4002-8922\"}\n```",
	}
	ex := NewExtractor(st, ai, nil)

	ex.Capture(context.Background(), tenant.ID, "ig:99", "me liga mais tarde")

	if ai.calls != 1 {
		t.Fatalf("expected 1 completion call, got %d", ai.calls)
	}
	lead, err := st.GetLeadByPhone(tenant.ID, "+55 11 4002-8922")
	if err != nil {
		t.Fatalf("failed to load lead: %v", err)
	}
	if lead == nil {
		t.Fatal("expected a lead from the LLM extraction")
	}
	if lead.CustomerName != "Ada" {
		t.Errorf("expected name Ada, got %q", lead.CustomerName)
	}
}

func TestCaptureLLMBadJSONFallsBackToSenderID(t *testing.T) {
	st, tenant := newCaptureFixture(t, "")
	ai := &stubCompleter{configured: true, resp: "I could not find any details."}
	ex := NewExtractor(st, ai, nil)

	ex.Capture(context.Background(), tenant.ID, "tg:42", "hello")

	if ai.calls != 1 {
		t.Fatalf("expected 1 completion call, got %d", ai.calls)
	}
	lead, err := st.GetLeadByPhone(tenant.ID, "tg:42")
	if err != nil {
		t.Fatalf("failed to load lead: %v", err)
	}
	if lead == nil {
		t.Fatal("expected a sender-id lead after unparseable LLM output")
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json\n{\"a\":1}\n```  ", "{\"a\":1}"},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
