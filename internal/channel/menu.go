package channel

import (
	"fmt"
	"strings"

	"github.com/chatwire/chatwire/internal/models"
)

// MaxMenuItems caps the numbered menu appended to plain-text fallbacks.
const MaxMenuItems = 8

const menuHeader = "Choose an option:"

// FormatMenuText appends a numbered quick-reply menu to text. It is the
// cross-provider fallback for channels (or situations) where native
// quick-reply payloads are unavailable: each line reads "1) Title". Blank
// titles are skipped; text comes back unchanged when nothing usable remains.
func FormatMenuText(text string, quickReplies []models.QuickReply) string {
	titles := make([]string, 0, len(quickReplies))
	for _, qr := range quickReplies {
		title := strings.TrimSpace(qr.Title)
		if title == "" {
			continue
		}
		titles = append(titles, title)
		if len(titles) == MaxMenuItems {
			break
		}
	}
	if len(titles) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	b.WriteString(menuHeader)
	for i, title := range titles {
		fmt.Fprintf(&b, "\n%d) %s", i+1, title)
	}
	return b.String()
}

// truncateRunes shortens s to at most max runes, so provider length limits
// never split a multi-byte character.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// usableQuickReplies drops entries without a persisted id or a visible title,
// which the provider APIs reject.
func usableQuickReplies(quickReplies []models.QuickReply) []models.QuickReply {
	items := make([]models.QuickReply, 0, len(quickReplies))
	for _, qr := range quickReplies {
		if qr.ID == 0 || strings.TrimSpace(qr.Title) == "" {
			continue
		}
		items = append(items, qr)
	}
	return items
}
