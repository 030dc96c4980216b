// Package leads captures contact details from inbound chat messages.
//
// Extraction is regex-first with an optional LLM fallback. Captured contacts
// are upserted by (tenant, phone number), and new captures are reported to
// the tenant's webhook when one is configured. Capture runs on the worker
// pool and never propagates errors back to the webhook handler.
package leads

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/chatwire/chatwire/internal/models"
)

// DefaultExtractionTimeout bounds the optional LLM extraction call.
const DefaultExtractionTimeout = 10 * time.Second

const extractionPrompt = "You are an information extractor. " +
	"Extract contact details from a chat message. " +
	"Return ONLY valid JSON with keys: customer_name, phone_number. " +
	"If unknown, use empty string."

var (
	phoneRe = regexp.MustCompile(`\b(?:\+?\d{1,3}[\s.-]?)?(?:\(?\d{2,4}\)?[\s.-]?)?\d{3,4}[\s.-]?\d{4}\b`)
	emailRe = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)

	// Ordered: the first pattern that yields a non-empty capture wins.
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy\s+name\s+is\s+([a-z][a-z\s\-']{1,60})\b`),
		regexp.MustCompile(`(?i)\bi\s+am\s+([a-z][a-z\s\-']{1,60})\b`),
		regexp.MustCompile(`(?i)\bi'm\s+([a-z][a-z\s\-']{1,60})\b`),
		regexp.MustCompile(`(?i)\bthis\s+is\s+([a-z][a-z\s\-']{1,60})\b`),
	}
)

// Contact holds the details pulled out of a single message.
type Contact struct {
	CustomerName string
	PhoneNumber  string
}

// LeadStore is the subset of the storage interface the extractor needs.
type LeadStore interface {
	GetTenant(id int64) (*models.Tenant, error)
	GetLeadByPhone(tenantID int64, phone string) (*models.Lead, error)
	CreateLead(l *models.Lead) error
	UpdateLead(l *models.Lead) error
}

// Completer is the completion client seam used for LLM-based extraction.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, systemPrompt, userMessage string, temperature float64) (string, error)
}

// Extractor detects contact details in inbound messages and persists them as
// leads.
type Extractor struct {
	store    LeadStore
	ai       Completer
	notifier *Notifier
}

// NewExtractor creates an Extractor. A nil notifier gets the default one.
func NewExtractor(store LeadStore, ai Completer, notifier *Notifier) *Extractor {
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Extractor{store: store, ai: ai, notifier: notifier}
}

// ExtractContact pulls a phone number and an optional name out of free-form
// message text. It returns nil when no phone-shaped substring is present;
// callers fall back to LLM extraction or the channel sender id.
func ExtractContact(message string) *Contact {
	phone := phoneRe.FindString(message)
	if phone == "" {
		return nil
	}
	return &Contact{
		CustomerName: extractName(message),
		PhoneNumber:  strings.TrimSpace(phone),
	}
}

func extractName(message string) string {
	for _, pattern := range namePatterns {
		m := pattern.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		candidate := strings.Join(strings.Fields(m[1]), " ")
		if candidate != "" {
			return titleCase(candidate)
		}
	}
	return ""
}

// titleCase uppercases the first letter of every run of letters, so hyphenated
// and apostrophized names come out as "Maria-Clara" and "O'Brien".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

// Capture extracts contact details from message and upserts a lead for the
// tenant. senderID is the channel identity used when the text itself carries
// no phone number. Every failure is logged and swallowed; Capture is meant to
// run as a background task after the reply has already been sent.
func (e *Extractor) Capture(ctx context.Context, tenantID int64, senderID, message string) {
	contact := ExtractContact(message)
	if contact == nil {
		contact = e.llmExtract(ctx, message)
	}

	var name, phone string
	if contact != nil {
		name = contact.CustomerName
		phone = contact.PhoneNumber
	}
	if phone == "" {
		phone = strings.TrimSpace(senderID)
	}
	if phone == "" {
		slog.Debug("Extractor found no lead identity", "tenantID", tenantID)
		return
	}

	summary := buildSummary(name, phone, message)
	lead, changed, err := e.upsertLead(tenantID, name, phone, summary)
	if err != nil {
		slog.Error("Extractor failed to persist lead", "error", err, "tenantID", tenantID)
		return
	}
	if !changed {
		return
	}

	slog.Info("Captured lead", "tenantID", tenantID, "leadID", lead.ID, "summary", summary)
	e.notify(ctx, lead, summary, message)
}

// llmExtract asks the completion backend for contact details. It is only
// attempted when a key is configured and tolerates fenced or invalid JSON by
// returning nil.
func (e *Extractor) llmExtract(ctx context.Context, message string) *Contact {
	if e.ai == nil || !e.ai.Configured() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultExtractionTimeout)
	defer cancel()

	content, err := e.ai.Complete(ctx, extractionPrompt, "Message: "+message, 0)
	if err != nil {
		slog.Debug("Extractor LLM extraction failed", "error", err)
		return nil
	}

	var parsed struct {
		CustomerName string `json:"customer_name"`
		PhoneNumber  string `json:"phone_number"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &parsed); err != nil {
		slog.Debug("Extractor LLM returned unparseable JSON", "error", err)
		return nil
	}

	phone := strings.TrimSpace(parsed.PhoneNumber)
	if phone == "" {
		return nil
	}
	return &Contact{
		CustomerName: strings.TrimSpace(parsed.CustomerName),
		PhoneNumber:  phone,
	}
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, so fenced model output still parses as JSON.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func buildSummary(name, phone, message string) string {
	parts := make([]string, 0, 3)
	if name != "" {
		parts = append(parts, "name="+name)
	}
	parts = append(parts, "phone="+phone)
	if email := emailRe.FindString(message); email != "" {
		parts = append(parts, "email="+email)
	}
	return "Captured lead: " + strings.Join(parts, ", ")
}

// upsertLead creates a lead or backfills the name on an existing one. The
// second return value reports whether anything was created or changed.
func (e *Extractor) upsertLead(tenantID int64, name, phone, summary string) (*models.Lead, bool, error) {
	existing, err := e.store.GetLeadByPhone(tenantID, phone)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if name == "" || existing.CustomerName != "" {
			return existing, false, nil
		}
		existing.CustomerName = name
		if err := e.store.UpdateLead(existing); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	lead := &models.Lead{
		TenantID:     tenantID,
		CustomerName: name,
		PhoneNumber:  phone,
		Summary:      summary,
		FlowContext:  map[string]string{},
	}
	if err := e.store.CreateLead(lead); err != nil {
		return nil, false, err
	}
	return lead, true, nil
}

func (e *Extractor) notify(ctx context.Context, lead *models.Lead, summary, message string) {
	tenant, err := e.store.GetTenant(lead.TenantID)
	if err != nil {
		slog.Error("Extractor failed to load tenant for webhook", "error", err, "tenantID", lead.TenantID)
		return
	}
	if tenant == nil || tenant.WebhookURL == "" {
		return
	}
	e.notifier.Notify(ctx, tenant.WebhookURL, models.LeadNotification{
		LeadID:        lead.ID,
		TenantID:      lead.TenantID,
		CustomerName:  lead.CustomerName,
		PhoneNumber:   lead.PhoneNumber,
		Summary:       summary,
		SourceMessage: message,
	})
}
