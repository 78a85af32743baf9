// Package config handles configuration parsing for ovpn-authbridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acolita/ovpn-authbridge/internal/ports"
)

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/ovpn-authbridge/config.yaml or ~/.config/ovpn-authbridge/config.yaml.
// It returns "" when neither can be determined.
func DefaultConfigPath(fsys ports.FileSystem) string {
	dir := fsys.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := fsys.UserHomeDir()
		if err != nil || home == "" {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ovpn-authbridge", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Socket        string           `yaml:"socket"`         // OpenVPN management socket path
	Username      string           `yaml:"username"`       // skip the username prompt
	TOTP          bool             `yaml:"totp"`           // prompt for a TOTP secret
	ControlSocket string           `yaml:"control_socket"` // optional unix socket for operator commands
	Auth          AuthConfig       `yaml:"auth"`
	Reconnect     ReconnectConfig  `yaml:"reconnect"`
	Security      SecurityConfig   `yaml:"security"`
	Transcript    TranscriptConfig `yaml:"transcript"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// AuthConfig tunes the authentication state machine.
type AuthConfig struct {
	MaxFailures    int           `yaml:"max_failures"`    // rejections tolerated before giving up
	SuccessTimeout time.Duration `yaml:"success_timeout"` // silence after which a submission counts as accepted
}

// ReconnectConfig defines the management socket retry backoff.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
}

// SecurityConfig defines credential storage settings.
type SecurityConfig struct {
	UseKeyring       bool     `yaml:"use_keyring"`       // Use OS keyring for credential storage
	CommandBlocklist []string `yaml:"command_blocklist"` // Regex patterns for operator commands never relayed
	CommandAllowlist []string `yaml:"command_allowlist"` // If set, only these operator commands are relayed
}

// TranscriptConfig defines protocol transcript settings.
type TranscriptConfig struct {
	Path string `yaml:"path"` // JSON-lines file; empty disables the transcript
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			MaxFailures:    2,
			SuccessTimeout: 60 * time.Second,
		},
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Factor:       2,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load loads configuration from a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Validate fills zero values with defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.Auth.MaxFailures <= 0 {
		c.Auth.MaxFailures = def.Auth.MaxFailures
	}
	if c.Auth.SuccessTimeout <= 0 {
		c.Auth.SuccessTimeout = def.Auth.SuccessTimeout
	}
	if c.Reconnect.InitialDelay <= 0 {
		c.Reconnect.InitialDelay = def.Reconnect.InitialDelay
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = def.Reconnect.MaxDelay
	}
	if c.Reconnect.Factor == 0 {
		c.Reconnect.Factor = def.Reconnect.Factor
	}

	if c.Reconnect.Factor < 1 {
		return fmt.Errorf("reconnect.factor must be >= 1, got %v", c.Reconnect.Factor)
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay (%v) is shorter than reconnect.initial_delay (%v)",
			c.Reconnect.MaxDelay, c.Reconnect.InitialDelay)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}

	return nil
}

// Account is the keyring account name for the configured user and socket.
func (c *Config) Account() string {
	return c.Username + "@" + c.Socket
}
