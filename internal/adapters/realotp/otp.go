// Package realotp provides a TOTP implementation of the OTPGenerator port
// backed by github.com/pquerna/otp.
package realotp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/acolita/ovpn-authbridge/internal/ports"
)

// Generator produces RFC 6238 codes (30s period, 6 digits, SHA1) for a
// base32 secret.
type Generator struct {
	secret string
}

// New validates the base32 secret and returns a Generator for it.
// Whitespace and lower case are accepted, as authenticator apps display them.
func New(secret string) (*Generator, error) {
	secret = strings.ToUpper(strings.Join(strings.Fields(secret), ""))
	if secret == "" {
		return nil, fmt.Errorf("empty TOTP secret")
	}
	if _, err := totp.GenerateCode(secret, time.Now()); err != nil {
		return nil, fmt.Errorf("invalid TOTP secret: %w", err)
	}
	return &Generator{secret: secret}, nil
}

// Code returns the code valid at time t.
func (g *Generator) Code(t time.Time) (string, error) {
	return totp.GenerateCode(g.secret, t)
}

// Ensure Generator implements ports.OTPGenerator.
var _ ports.OTPGenerator = (*Generator)(nil)
