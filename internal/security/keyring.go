// Package security provides secure credential handling for ovpn-authbridge.
package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name used for keyring entries.
	KeyringService = "ovpn-authbridge"
)

// KeyringStore keeps the VPN password and TOTP secret in the OS keyring
// (macOS Keychain, Linux Secret Service, Windows Credential Manager).
// Entries are keyed by an account string, normally "user@socket".
type KeyringStore struct {
	enabled bool
	mu      sync.RWMutex
}

// NewKeyringStore creates a new keyring store.
// If the system keyring is not available, the store will be disabled.
func NewKeyringStore() *KeyringStore {
	ks := &KeyringStore{
		enabled: true,
	}

	testKey := "__ovpn_authbridge_test__"
	if err := keyring.Set(KeyringService, testKey, "test"); err != nil {
		slog.Debug("keyring not available, credentials stay in memory only",
			slog.String("error", err.Error()),
		)
		ks.enabled = false
		return ks
	}
	_ = keyring.Delete(KeyringService, testKey)

	slog.Debug("keyring storage enabled")
	return ks
}

// IsEnabled returns true if the keyring is available and enabled.
func (ks *KeyringStore) IsEnabled() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.enabled
}

// SetEnabled allows enabling/disabling keyring usage.
func (ks *KeyringStore) SetEnabled(enabled bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.enabled = enabled
}

// StorePassword stores the VPN password for account.
func (ks *KeyringStore) StorePassword(account string, password []byte) error {
	return ks.store(fmt.Sprintf(keyPasswordFmt, account), password, "password")
}

// GetPassword returns the stored password, or nil if none is stored.
func (ks *KeyringStore) GetPassword(account string) ([]byte, error) {
	return ks.get(fmt.Sprintf(keyPasswordFmt, account), "password")
}

// DeletePassword removes the stored password.
func (ks *KeyringStore) DeletePassword(account string) error {
	return ks.delete(fmt.Sprintf(keyPasswordFmt, account), "password")
}

// StoreOTPSecret stores the base32 TOTP secret for account.
func (ks *KeyringStore) StoreOTPSecret(account string, secret []byte) error {
	return ks.store(fmt.Sprintf(keyOTPSecretFmt, account), secret, "TOTP secret")
}

// GetOTPSecret returns the stored TOTP secret, or nil if none is stored.
func (ks *KeyringStore) GetOTPSecret(account string) ([]byte, error) {
	return ks.get(fmt.Sprintf(keyOTPSecretFmt, account), "TOTP secret")
}

// DeleteOTPSecret removes the stored TOTP secret.
func (ks *KeyringStore) DeleteOTPSecret(account string) error {
	return ks.delete(fmt.Sprintf(keyOTPSecretFmt, account), "TOTP secret")
}

// Forget removes every entry stored for account.
func (ks *KeyringStore) Forget(account string) error {
	return errors.Join(ks.DeletePassword(account), ks.DeleteOTPSecret(account))
}

func (ks *KeyringStore) store(key string, value []byte, what string) error {
	if !ks.IsEnabled() {
		return errors.New(errKeyringNotAvailable)
	}

	// Base64 encode to safely store binary data
	encoded := base64.StdEncoding.EncodeToString(value)
	if err := keyring.Set(KeyringService, key, encoded); err != nil {
		return fmt.Errorf("failed to store %s: %w", what, err)
	}

	slog.Debug("stored credential in keyring", slog.String("entry", what))
	return nil
}

func (ks *KeyringStore) get(key, what string) ([]byte, error) {
	if !ks.IsEnabled() {
		return nil, errors.New(errKeyringNotAvailable)
	}

	encoded, err := keyring.Get(KeyringService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil // Not found is not an error
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}

	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return value, nil
}

func (ks *KeyringStore) delete(key, what string) error {
	if !ks.IsEnabled() {
		return errors.New(errKeyringNotAvailable)
	}

	if err := keyring.Delete(KeyringService, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	return nil
}
