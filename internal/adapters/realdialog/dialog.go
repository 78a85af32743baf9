// Package realdialog provides a TUI-based CredentialPrompter using charmbracelet/huh.
//
// Prompts run before the operator-control stream takes over stdin, so they
// own the terminal exclusively. When stdin is not a terminal the provider
// refuses to prompt instead of consuming control lines as credentials.
package realdialog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/acolita/ovpn-authbridge/internal/ports"
)

// ErrNoTerminal is returned when a prompt is needed but stdin is not a terminal.
var ErrNoTerminal = errors.New("stdin is not a terminal; cannot prompt for credentials")

var warningStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("1")).
	Bold(true)

// Provider implements ports.CredentialPrompter with huh forms on the controlling terminal.
type Provider struct {
	in         *os.File
	out        io.Writer
	accessible bool
	isTerminal func(fd int) bool
}

// New returns a provider prompting on stdin and rendering to stderr.
// Accessible mode (plain line prompts) is used when TERM is "dumb".
func New() *Provider {
	return &Provider{
		in:         os.Stdin,
		out:        os.Stderr,
		accessible: os.Getenv("TERM") == "dumb",
		isTerminal: term.IsTerminal,
	}
}

// PromptUsername asks for the VPN username.
func (p *Provider) PromptUsername() (string, error) {
	return p.ask("Username", "VPN account name", false)
}

// PromptPassword asks for the VPN password.
func (p *Provider) PromptPassword() (string, error) {
	return p.ask("Password", "Or TOTP-2FA:<base64 password>:<base64 secret>", true)
}

// PromptOTPSecret asks for the base32 TOTP secret.
func (p *Provider) PromptOTPSecret() (string, error) {
	return p.ask("TOTP", "Base32 secret from your authenticator enrollment", true)
}

// Warn prints message in bold red.
func (p *Provider) Warn(message string) {
	fmt.Fprintln(p.out, warningStyle.Render(message))
}

func (p *Provider) ask(title, description string, secret bool) (string, error) {
	if !p.isTerminal(int(p.in.Fd())) {
		return "", ErrNoTerminal
	}

	value, err := runInput(p.in, p.out, p.accessible, title, description, secret)
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", title, err)
	}
	return value, nil
}

// Ensure Provider implements ports.CredentialPrompter.
var _ ports.CredentialPrompter = (*Provider)(nil)
