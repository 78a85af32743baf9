// Package realnet provides real implementations of the NetworkDialer and NetworkListener ports.
package realnet

import (
	"context"
	"net"
	"time"

	"github.com/acolita/ovpn-authbridge/internal/ports"
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 10 * time.Second

// Dialer implements ports.NetworkDialer using a net.Dialer.
type Dialer struct {
	dialer net.Dialer
}

// NewDialer creates a new Dialer.
func NewDialer() *Dialer {
	return &Dialer{dialer: net.Dialer{Timeout: DefaultDialTimeout}}
}

// Dial establishes a network connection, giving up after
// DefaultDialTimeout or when ctx ends.
func (d *Dialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, network, address)
}

// Listener implements ports.NetworkListener using the real net.Listen function.
type Listener struct{}

// NewListener creates a new Listener.
func NewListener() *Listener {
	return &Listener{}
}

// Listen creates a network listener.
func (l *Listener) Listen(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

var (
	_ ports.NetworkDialer   = (*Dialer)(nil)
	_ ports.NetworkListener = (*Listener)(nil)
)
