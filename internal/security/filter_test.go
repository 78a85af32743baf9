package security

import (
	"strings"
	"testing"
)

func TestCommandFilter_Blocklist(t *testing.T) {
	tests := []struct {
		name        string
		blocklist   []string
		command     string
		wantAllowed bool
	}{
		{
			name:        "allow status",
			blocklist:   []string{`^(username|password)\s`},
			command:     "status",
			wantAllowed: true,
		},
		{
			name:        "block injected password",
			blocklist:   []string{`^(username|password)\s`},
			command:     "password Auth hunter2",
			wantAllowed: false,
		},
		{
			name:        "block quit",
			blocklist:   []string{`^quit$`},
			command:     "quit",
			wantAllowed: false,
		},
		{
			name:        "empty blocklist allows all",
			blocklist:   []string{},
			command:     "signal SIGTERM",
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cf, err := NewCommandFilter(tt.blocklist, nil)
			if err != nil {
				t.Fatalf("NewCommandFilter() error = %v", err)
			}

			allowed, _ := cf.IsAllowed(tt.command)
			if allowed != tt.wantAllowed {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.command, allowed, tt.wantAllowed)
			}
		})
	}
}

func TestCommandFilter_Allowlist(t *testing.T) {
	cf, err := NewCommandFilter([]string{`^state all$`}, []string{`^state`, `^status`})
	if err != nil {
		t.Fatalf("NewCommandFilter() error = %v", err)
	}

	if ok, _ := cf.IsAllowed("status 3"); !ok {
		t.Error("status should be allowed")
	}
	if ok, reason := cf.IsAllowed("signal SIGTERM"); ok || reason != "command not in allowlist" {
		t.Errorf("IsAllowed(signal) = %v, %q", ok, reason)
	}
	if ok, reason := cf.IsAllowed("state all"); ok || !strings.Contains(reason, "blocked by pattern") {
		t.Errorf("blocklist must win over allowlist: %v, %q", ok, reason)
	}
}

func TestCommandFilter_InvalidRegex(t *testing.T) {
	if _, err := NewCommandFilter([]string{"[invalid"}, nil); err == nil {
		t.Error("expected error for invalid blocklist pattern")
	}
	if _, err := NewCommandFilter(nil, []string{"(unclosed"}); err == nil {
		t.Error("expected error for invalid allowlist pattern")
	}
}

func TestCommandFilter_Active(t *testing.T) {
	empty, _ := NewCommandFilter(nil, nil)
	if empty.Active() {
		t.Error("filter without patterns reports active")
	}
	if ok, _ := empty.IsAllowed("anything"); !ok {
		t.Error("filter without patterns must allow everything")
	}

	cf, _ := NewCommandFilter(nil, []string{"^status"})
	if !cf.Active() {
		t.Error("filter with an allowlist reports inactive")
	}
}
