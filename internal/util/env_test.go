package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"unset uses default", "", true, true},
		{"true", "true", false, true},
		{"numeric true", "1", false, true},
		{"yes", "yes", false, true},
		{"on with case", "ON", false, true},
		{"false", "false", true, false},
		{"numeric false", "0", true, false},
		{"off", "off", true, false},
		{"garbage uses default", "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "CHATWIRE_TEST_BOOL"
			if tt.value != "" {
				t.Setenv(key, tt.value)
			}
			if got := ParseBoolEnv(key, tt.def); got != tt.expected {
				t.Errorf("ParseBoolEnv(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	key := "CHATWIRE_TEST_INT"

	if got := ParseIntEnv(key, 4); got != 4 {
		t.Errorf("expected default 4 for unset key, got %d", got)
	}

	t.Setenv(key, "16")
	if got := ParseIntEnv(key, 4); got != 16 {
		t.Errorf("expected 16, got %d", got)
	}

	t.Setenv(key, " 8 ")
	if got := ParseIntEnv(key, 4); got != 8 {
		t.Errorf("expected whitespace to be trimmed, got %d", got)
	}

	t.Setenv(key, "many")
	if got := ParseIntEnv(key, 4); got != 4 {
		t.Errorf("expected default 4 for invalid value, got %d", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	key := "CHATWIRE_TEST_FLOAT"

	if got := ParseFloatEnv(key, 1.5); got != 1.5 {
		t.Errorf("expected default 1.5 for unset key, got %v", got)
	}

	t.Setenv(key, "0.25")
	if got := ParseFloatEnv(key, 1.5); got != 0.25 {
		t.Errorf("expected 0.25, got %v", got)
	}

	t.Setenv(key, "fast")
	if got := ParseFloatEnv(key, 1.5); got != 1.5 {
		t.Errorf("expected default 1.5 for invalid value, got %v", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	key := "CHATWIRE_TEST_DURATION"

	if got := ParseDurationEnv(key, 5*time.Second); got != 5*time.Second {
		t.Errorf("expected default 5s for unset key, got %v", got)
	}

	t.Setenv(key, "2m")
	if got := ParseDurationEnv(key, 5*time.Second); got != 2*time.Minute {
		t.Errorf("expected 2m, got %v", got)
	}

	t.Setenv(key, "10")
	if got := ParseDurationEnv(key, 5*time.Second); got != 10*time.Second {
		t.Errorf("expected bare number to mean seconds, got %v", got)
	}

	t.Setenv(key, "1.5")
	if got := ParseDurationEnv(key, 5*time.Second); got != 1500*time.Millisecond {
		t.Errorf("expected fractional seconds, got %v", got)
	}

	t.Setenv(key, "soon")
	if got := ParseDurationEnv(key, 5*time.Second); got != 5*time.Second {
		t.Errorf("expected default 5s for invalid value, got %v", got)
	}
}
