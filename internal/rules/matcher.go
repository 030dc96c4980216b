// Package rules matches inbound messages against tenant scripted-response rules.
package rules

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/chatwire/chatwire/internal/models"
)

// regexTriggerPrefix marks a trigger as a regular expression instead of a
// plain substring.
const regexTriggerPrefix = "re:"

// Matcher evaluates rules against inbound messages. Compiled regex triggers
// are cached so each pattern is compiled at most once per process.
type Matcher struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewMatcher creates a matcher with an empty pattern cache.
func NewMatcher() *Matcher {
	return &Matcher{cache: make(map[string]*regexp.Regexp)}
}

// Match returns the first rule whose trigger matches the message, in the
// order given. Plain triggers match as case-insensitive substrings; triggers
// prefixed with "re:" match as case-insensitive regular expressions against
// the raw message. Rules with empty or invalid triggers never match.
func (m *Matcher) Match(ruleList []models.Rule, message string) (*models.Rule, bool) {
	normalized := strings.ToLower(message)
	for i := range ruleList {
		rule := &ruleList[i]
		trigger := strings.TrimSpace(rule.Trigger)
		if trigger == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(trigger), regexTriggerPrefix) {
			pattern := strings.TrimSpace(trigger[len(regexTriggerPrefix):])
			if pattern == "" {
				continue
			}
			re := m.compile(pattern)
			if re != nil && re.MatchString(message) {
				return rule, true
			}
			continue
		}
		if strings.Contains(normalized, strings.ToLower(trigger)) {
			return rule, true
		}
	}
	return nil, false
}

// compile returns the cached regex for pattern, compiling it on first use.
// Invalid patterns are cached as nil so the compile error is logged once.
func (m *Matcher) compile(pattern string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return re
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.cache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		slog.Warn("Matcher invalid regex trigger, rule will never match", "pattern", pattern, "error", err)
		re = nil
	}
	m.cache[pattern] = re
	return re
}
