// Package credentials gathers the username, password and optional TOTP
// secret before the bridge starts, from the OS keyring or by prompting.
package credentials

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/acolita/ovpn-authbridge/internal/adapters/realotp"
	"github.com/acolita/ovpn-authbridge/internal/bridge"
	"github.com/acolita/ovpn-authbridge/internal/ports"
	"github.com/acolita/ovpn-authbridge/internal/security"
)

// ErrInvalidOTPData is returned for a password of the embedded form
// "TOTP-2FA:<base64 password>:<base64 secret>" that does not decode.
var ErrInvalidOTPData = errors.New("invalid 2FA data")

// EmbeddedPrefix marks a password that carries its TOTP secret.
const EmbeddedPrefix = "TOTP-2FA:"

// ReauthWarning is shown once two-factor answers are automated.
const ReauthWarning = "WARNING: Automated re-authentication is obvious in logs. " +
	"Circumvention of corporate security policies may result in disciplinary action " +
	"up to and including termination."

const defaultMaxAttempts = 3

// SecretStore persists credentials between runs. Getters return nil, nil
// when nothing is stored.
type SecretStore interface {
	GetPassword(account string) ([]byte, error)
	StorePassword(account string, password []byte) error
	GetOTPSecret(account string) ([]byte, error)
	StoreOTPSecret(account string, secret []byte) error
}

// Resolver collects credentials.
type Resolver struct {
	Prompter ports.CredentialPrompter
	// Store, when set, is read before prompting and written after.
	Store SecretStore
	// NewOTP builds a generator from a base32 secret. Defaults to realotp.
	NewOTP func(secret string) (ports.OTPGenerator, error)
	// MaxAttempts bounds each prompt loop. Defaults to 3.
	MaxAttempts int
}

// Username returns preset when it is not empty, otherwise prompts.
func (r *Resolver) Username(preset string) (string, error) {
	if preset != "" {
		return preset, nil
	}
	for i := 0; i < r.maxAttempts(); i++ {
		user, err := r.Prompter.PromptUsername()
		if err != nil {
			return "", err
		}
		if user = strings.TrimSpace(user); user != "" {
			return user, nil
		}
	}
	return "", fmt.Errorf("no username entered after %d attempts", r.maxAttempts())
}

// Resolve returns the credentials for username. account keys the secret
// store. A stored TOTP secret is always picked up; with wantOTP set, one
// is prompted for when none is stored.
func (r *Resolver) Resolve(username, account string, wantOTP bool) (bridge.Credentials, error) {
	creds := bridge.Credentials{Username: username}

	password, otp, secret, prompted, err := r.password(account)
	if err != nil {
		return bridge.Credentials{}, err
	}
	creds.Password = password
	creds.OTP = otp

	if prompted {
		r.save(account, entryPassword, password.Data())
	}
	if secret != "" {
		r.save(account, entryOTPSecret, []byte(secret))
	}

	if creds.OTP == nil {
		otp, secret, prompted, err := r.otpSecret(account, wantOTP)
		if err != nil {
			creds.Password.Wipe()
			return bridge.Credentials{}, err
		}
		creds.OTP = otp
		if prompted {
			r.save(account, entryOTPSecret, []byte(secret))
		}
	}

	if creds.OTP != nil {
		r.Prompter.Warn(ReauthWarning)
	}
	return creds, nil
}

// password returns the password and, for the embedded form, the TOTP
// generator and its secret. prompted reports that it did not come from
// the store.
func (r *Resolver) password(account string) (*security.SecureBytes, ports.OTPGenerator, string, bool, error) {
	if stored := r.load(account, entryPassword); stored != nil {
		defer security.WipeBytes(stored)
		return security.NewSecureBytes(stored), nil, "", false, nil
	}

	for i := 0; i < r.maxAttempts(); i++ {
		raw, err := r.Prompter.PromptPassword()
		if err != nil {
			return nil, nil, "", false, err
		}
		if raw == "" {
			continue
		}
		if !strings.HasPrefix(raw, EmbeddedPrefix) {
			return security.NewSecureString(raw), nil, "", true, nil
		}

		password, secret, otp, err := r.parseEmbedded(raw)
		if err != nil {
			slog.Warn("rejected embedded 2FA password", slog.String("error", err.Error()))
			r.Prompter.Warn("Invalid 2FA data")
			continue
		}
		return security.NewSecureString(password), otp, secret, true, nil
	}
	return nil, nil, "", false, fmt.Errorf("no password entered after %d attempts", r.maxAttempts())
}

// ParseEmbedded splits "TOTP-2FA:<base64 password>:<base64 secret>".
func ParseEmbedded(raw string) (password, secret string, err error) {
	rest, ok := strings.CutPrefix(raw, EmbeddedPrefix)
	if !ok {
		return "", "", ErrInvalidOTPData
	}
	encPassword, encSecret, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", ErrInvalidOTPData
	}
	p, err := base64.StdEncoding.DecodeString(encPassword)
	if err != nil || len(p) == 0 {
		return "", "", ErrInvalidOTPData
	}
	s, err := base64.StdEncoding.DecodeString(encSecret)
	if err != nil || len(s) == 0 {
		return "", "", ErrInvalidOTPData
	}
	return string(p), string(s), nil
}

func (r *Resolver) parseEmbedded(raw string) (string, string, ports.OTPGenerator, error) {
	password, secret, err := ParseEmbedded(raw)
	if err != nil {
		return "", "", nil, err
	}
	otp, err := r.newOTP(secret)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrInvalidOTPData, err)
	}
	return password, secret, otp, nil
}

func (r *Resolver) otpSecret(account string, prompt bool) (ports.OTPGenerator, string, bool, error) {
	if stored := r.load(account, entryOTPSecret); stored != nil {
		otp, err := r.newOTP(string(stored))
		security.WipeBytes(stored)
		if err == nil {
			return otp, "", false, nil
		}
		slog.Warn("ignoring stored TOTP secret", slog.String("error", err.Error()))
	}
	if !prompt {
		return nil, "", false, nil
	}

	for i := 0; i < r.maxAttempts(); i++ {
		secret, err := r.Prompter.PromptOTPSecret()
		if err != nil {
			return nil, "", false, err
		}
		otp, err := r.newOTP(secret)
		if err != nil {
			r.Prompter.Warn("Invalid TOTP secret")
			continue
		}
		return otp, secret, true, nil
	}
	return nil, "", false, fmt.Errorf("no valid TOTP secret entered after %d attempts", r.maxAttempts())
}

type entry int

const (
	entryPassword entry = iota
	entryOTPSecret
)

func (e entry) String() string {
	if e == entryOTPSecret {
		return "TOTP secret"
	}
	return "password"
}

// load returns the stored value, or nil when there is none or the store
// cannot be read.
func (r *Resolver) load(account string, e entry) []byte {
	if r.Store == nil {
		return nil
	}

	var v []byte
	var err error
	switch e {
	case entryPassword:
		v, err = r.Store.GetPassword(account)
	case entryOTPSecret:
		v, err = r.Store.GetOTPSecret(account)
	}
	if err != nil {
		slog.Warn("keyring lookup failed", slog.String("entry", e.String()), slog.String("error", err.Error()))
		return nil
	}
	if len(v) == 0 {
		return nil
	}
	slog.Debug("using stored credential", slog.String("entry", e.String()))
	return v
}

func (r *Resolver) save(account string, e entry, v []byte) {
	if r.Store == nil {
		return
	}

	var err error
	switch e {
	case entryPassword:
		err = r.Store.StorePassword(account, v)
	case entryOTPSecret:
		err = r.Store.StoreOTPSecret(account, v)
	}
	if err != nil {
		slog.Warn("failed to save credential to keyring", slog.String("entry", e.String()), slog.String("error", err.Error()))
	}
}

func (r *Resolver) newOTP(secret string) (ports.OTPGenerator, error) {
	if r.NewOTP != nil {
		return r.NewOTP(secret)
	}
	g, err := realotp.New(secret)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Resolver) maxAttempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return defaultMaxAttempts
}
