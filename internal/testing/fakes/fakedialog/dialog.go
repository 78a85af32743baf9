// Package fakedialog provides a test fake for ports.CredentialPrompter.
package fakedialog

import (
	"fmt"

	"github.com/acolita/ovpn-authbridge/internal/ports"
)

// Provider answers prompts from scripted queues.
// An exhausted queue returns an error so a retry loop cannot spin forever.
type Provider struct {
	Usernames  []string
	Passwords  []string
	OTPSecrets []string

	// Err, when set, is returned by every prompt.
	Err error

	// Asked counts prompts per kind: "username", "password", "otp".
	Asked map[string]int
	// Warnings captures messages passed to Warn.
	Warnings []string
}

// New returns a new fake provider.
func New() *Provider {
	return &Provider{Asked: make(map[string]int)}
}

// PromptUsername pops the next scripted username.
func (p *Provider) PromptUsername() (string, error) {
	return p.next("username", &p.Usernames)
}

// PromptPassword pops the next scripted password.
func (p *Provider) PromptPassword() (string, error) {
	return p.next("password", &p.Passwords)
}

// PromptOTPSecret pops the next scripted TOTP secret.
func (p *Provider) PromptOTPSecret() (string, error) {
	return p.next("otp", &p.OTPSecrets)
}

// Warn records the message.
func (p *Provider) Warn(message string) {
	p.Warnings = append(p.Warnings, message)
}

func (p *Provider) next(kind string, queue *[]string) (string, error) {
	if p.Asked == nil {
		p.Asked = make(map[string]int)
	}
	p.Asked[kind]++
	if p.Err != nil {
		return "", p.Err
	}
	if len(*queue) == 0 {
		return "", fmt.Errorf("fakedialog: no scripted %s left", kind)
	}
	v := (*queue)[0]
	*queue = (*queue)[1:]
	return v, nil
}

// Ensure Provider implements ports.CredentialPrompter.
var _ ports.CredentialPrompter = (*Provider)(nil)
