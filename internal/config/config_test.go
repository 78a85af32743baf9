package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acolita/ovpn-authbridge/internal/testing/fakes/fakefs"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Auth.MaxFailures != 2 {
		t.Errorf("Auth.MaxFailures = %d, want 2", cfg.Auth.MaxFailures)
	}
	if cfg.Auth.SuccessTimeout != 60*time.Second {
		t.Errorf("Auth.SuccessTimeout = %v, want 60s", cfg.Auth.SuccessTimeout)
	}
	if cfg.Reconnect.InitialDelay != time.Second || cfg.Reconnect.MaxDelay != 30*time.Second || cfg.Reconnect.Factor != 2 {
		t.Errorf("Reconnect = %+v", cfg.Reconnect)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if !cfg.Logging.Sanitize {
		t.Error("Logging.Sanitize = false, want true")
	}
	if cfg.Security.UseKeyring {
		t.Error("Security.UseKeyring should default to false")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Auth.MaxFailures != 2 {
		t.Errorf("Auth.MaxFailures = %d, want default 2", cfg.Auth.MaxFailures)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml", fakefs.New())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load(nonexistent) error = %v, want ErrNotExist", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddFile("/cfg/bad.yaml", []byte(":::invalid:::yaml{{{"), 0644)

	_, err := Load("/cfg/bad.yaml", fsys)
	if err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("Load(invalid) error = %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddFile("/cfg/config.yaml", []byte(`
socket: /run/ovpn-work.s
username: alice
totp: true
control_socket: /run/user/1000/ovpn-ctl.s
auth:
  max_failures: 3
  success_timeout: 90s
reconnect:
  initial_delay: 500ms
  max_delay: 1m
  factor: 1.5
security:
  use_keyring: true
  command_blocklist:
    - '^(username|password)\s'
  command_allowlist: ['^status', '^state']
transcript:
  path: /var/log/ovpn-authbridge/transcript.jsonl
logging:
  level: debug
  sanitize: false
`), 0644)

	cfg, err := Load("/cfg/config.yaml", fsys)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Socket != "/run/ovpn-work.s" || cfg.Username != "alice" || !cfg.TOTP {
		t.Errorf("top-level fields = %+v", cfg)
	}
	if cfg.ControlSocket != "/run/user/1000/ovpn-ctl.s" {
		t.Errorf("ControlSocket = %q", cfg.ControlSocket)
	}
	if cfg.Auth.MaxFailures != 3 || cfg.Auth.SuccessTimeout != 90*time.Second {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Reconnect.InitialDelay != 500*time.Millisecond || cfg.Reconnect.MaxDelay != time.Minute || cfg.Reconnect.Factor != 1.5 {
		t.Errorf("Reconnect = %+v", cfg.Reconnect)
	}
	if !cfg.Security.UseKeyring {
		t.Error("Security.UseKeyring = false")
	}
	if len(cfg.Security.CommandBlocklist) != 1 || cfg.Security.CommandBlocklist[0] != `^(username|password)\s` {
		t.Errorf("CommandBlocklist = %q", cfg.Security.CommandBlocklist)
	}
	if len(cfg.Security.CommandAllowlist) != 2 {
		t.Errorf("CommandAllowlist = %q", cfg.Security.CommandAllowlist)
	}
	if cfg.Transcript.Path != "/var/log/ovpn-authbridge/transcript.jsonl" {
		t.Errorf("Transcript.Path = %q", cfg.Transcript.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Sanitize {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddFile("/cfg/config.yaml", []byte("username: bob\n"), 0644)

	cfg, err := Load("/cfg/config.yaml", fsys)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Username != "bob" {
		t.Errorf("Username = %q", cfg.Username)
	}
	if cfg.Auth.SuccessTimeout != 60*time.Second {
		t.Errorf("SuccessTimeout = %v, want default", cfg.Auth.SuccessTimeout)
	}
	if !cfg.Logging.Sanitize {
		t.Error("Sanitize default lost")
	}
}

func TestValidateFillsZeroValues(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{MaxFailures: -1}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Auth.MaxFailures != 2 || cfg.Auth.SuccessTimeout != 60*time.Second {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Reconnect.Factor != 2 || cfg.Reconnect.InitialDelay != time.Second {
		t.Errorf("Reconnect = %+v", cfg.Reconnect)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"factor below one", func(c *Config) { c.Reconnect.Factor = 0.5 }},
		{"max below initial", func(c *Config) { c.Reconnect.InitialDelay = time.Minute; c.Reconnect.MaxDelay = time.Second }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestAccount(t *testing.T) {
	cfg := &Config{Username: "alice", Socket: "/run/ovpn.s"}
	if got := cfg.Account(); got != "alice@/run/ovpn.s" {
		t.Errorf("Account() = %q", got)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	tests := []struct {
		name string
		xdg  string
		home string
		want string
	}{
		{"xdg wins", "/tmp/xdg", "/home/alice", "/tmp/xdg/ovpn-authbridge/config.yaml"},
		{"home fallback", "", "/home/alice", "/home/alice/.config/ovpn-authbridge/config.yaml"},
		{"nothing known", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fakefs.New()
			fsys.SetEnv("XDG_CONFIG_HOME", tt.xdg)
			fsys.SetHomeDir(tt.home)
			if got := DefaultConfigPath(fsys); got != tt.want {
				t.Errorf("DefaultConfigPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewWatcher(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "username: alice\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	if cfg := w.Config(); cfg.Username != "alice" {
		t.Errorf("Config().Username = %q, want alice", cfg.Username)
	}
}

func TestNewWatcherMissingFile(t *testing.T) {
	if _, err := NewWatcher("/nonexistent/config.yaml", nil); err == nil {
		t.Fatal("NewWatcher(missing) expected error, got nil")
	}
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "logging:\n  level: info\n")

	var mu sync.Mutex
	var changed *Config

	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		changed = cfg
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, "logging:\n  level: debug\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		c := changed
		mu.Unlock()
		if c != nil && c.Logging.Level == "debug" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if cfg := w.Config(); cfg.Logging.Level != "debug" {
		t.Errorf("Config().Logging.Level = %q after reload, want debug", cfg.Logging.Level)
	}

	mu.Lock()
	if changed == nil {
		t.Error("onChange callback was never called")
	}
	mu.Unlock()
}

func TestWatcherReloadInvalidConfig(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "logging:\n  level: info\n")

	callCount := 0
	var mu sync.Mutex

	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	// Valid YAML, invalid level: rejected by Validate
	writeConfigFile(t, path, "logging:\n  level: chatty\n")

	time.Sleep(500 * time.Millisecond)

	if cfg := w.Config(); cfg.Logging.Level != "info" {
		t.Errorf("Config().Logging.Level = %q, want info (preserved after bad reload)", cfg.Logging.Level)
	}

	mu.Lock()
	if callCount > 0 {
		t.Errorf("onChange was called %d times, want 0", callCount)
	}
	mu.Unlock()
}

func TestWatcherClose(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "username: alice\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}
