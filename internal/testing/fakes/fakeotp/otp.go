// Package fakeotp provides a deterministic OTPGenerator for testing.
package fakeotp

import (
	"sync"
	"time"

	"github.com/acolita/ovpn-authbridge/internal/ports"
)

// Generator returns a fixed code and records the times it was asked for.
type Generator struct {
	mu    sync.Mutex
	code  string
	err   error
	calls []time.Time
}

// New returns a Generator that always yields code.
func New(code string) *Generator {
	return &Generator{code: code}
}

// SetError makes subsequent Code calls fail with err.
func (g *Generator) SetError(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

// Code returns the configured code.
func (g *Generator) Code(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, t)
	if g.err != nil {
		return "", g.err
	}
	return g.code, nil
}

// Calls returns the times passed to Code.
func (g *Generator) Calls() []time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]time.Time, len(g.calls))
	copy(out, g.calls)
	return out
}

// Ensure Generator implements ports.OTPGenerator.
var _ ports.OTPGenerator = (*Generator)(nil)
