// Package ports defines interfaces for external dependencies (Ports and Adapters pattern).
package ports

import (
	"context"
	"net"
)

// NetworkDialer opens client connections, normally to the OpenVPN
// management socket.
type NetworkDialer interface {
	// Dial connects to address. Cancelling ctx abandons an attempt in progress.
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}

// NetworkListener opens the operator control socket.
type NetworkListener interface {
	// Listen creates a network listener.
	Listen(network, address string) (net.Listener, error)
}
