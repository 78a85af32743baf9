// Package fakenet provides fake network dialer and listener for testing.
package fakenet

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Dialer is a fake network dialer that can be configured to return errors or specific connections.
// It is safe for use from the goroutine under test and the test goroutine at once.
type Dialer struct {
	mu       sync.Mutex
	dialFunc func(network, address string) (net.Conn, error)
	calls    []DialCall
}

// DialCall records a call to Dial.
type DialCall struct {
	Network string
	Address string
}

// NewDialer creates a new fake Dialer that returns an error by default.
func NewDialer() *Dialer {
	return &Dialer{
		dialFunc: func(network, address string) (net.Conn, error) {
			return nil, fmt.Errorf("fakenet: not configured")
		},
	}
}

// Dial records the call and delegates to the configured function.
// A cancelled ctx fails the dial after it is recorded.
func (d *Dialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.calls = append(d.calls, DialCall{Network: network, Address: address})
	fn := d.dialFunc
	d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(network, address)
}

// Calls returns all recorded Dial calls.
func (d *Dialer) Calls() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DialCall, len(d.calls))
	copy(out, d.calls)
	return out
}

// SetDialFunc replaces the function Dial delegates to.
func (d *Dialer) SetDialFunc(fn func(network, address string) (net.Conn, error)) {
	d.mu.Lock()
	d.dialFunc = fn
	d.mu.Unlock()
}

// SetError configures the dialer to always return the given error.
func (d *Dialer) SetError(err error) {
	d.SetDialFunc(func(network, address string) (net.Conn, error) {
		return nil, err
	})
}

// Listener is a fake network listener that can be configured.
type Listener struct {
	mu         sync.Mutex
	listenFunc func(network, address string) (net.Listener, error)
	calls      []ListenCall
}

// ListenCall records a call to Listen.
type ListenCall struct {
	Network string
	Address string
}

// NewListener creates a new fake Listener that returns an error by default.
func NewListener() *Listener {
	return &Listener{
		listenFunc: func(network, address string) (net.Listener, error) {
			return nil, fmt.Errorf("fakenet: not configured")
		},
	}
}

// Listen records the call and delegates to the configured function.
func (l *Listener) Listen(network, address string) (net.Listener, error) {
	l.mu.Lock()
	l.calls = append(l.calls, ListenCall{Network: network, Address: address})
	fn := l.listenFunc
	l.mu.Unlock()
	return fn(network, address)
}

// Calls returns all recorded Listen calls.
func (l *Listener) Calls() []ListenCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ListenCall, len(l.calls))
	copy(out, l.calls)
	return out
}

// SetListenFunc replaces the function Listen delegates to.
func (l *Listener) SetListenFunc(fn func(network, address string) (net.Listener, error)) {
	l.mu.Lock()
	l.listenFunc = fn
	l.mu.Unlock()
}

// SetError configures the listener to always return the given error.
func (l *Listener) SetError(err error) {
	l.SetListenFunc(func(network, address string) (net.Listener, error) {
		return nil, err
	})
}

// PipeListener is an in-memory net.Listener; Connect hands the server side
// of a net.Pipe to Accept and returns the client side.
type PipeListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

// NewPipeListener creates a PipeListener.
func NewPipeListener() *PipeListener {
	return &PipeListener{
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
}

// Connect blocks until Accept takes the connection, returning the client end.
func (p *PipeListener) Connect() (net.Conn, error) {
	server, client := net.Pipe()
	select {
	case p.conns <- server:
		return client, nil
	case <-p.closed:
		server.Close()
		client.Close()
		return nil, net.ErrClosed
	}
}

// Accept waits for the next Connect.
func (p *PipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-p.conns:
		return c, nil
	case <-p.closed:
		return nil, net.ErrClosed
	}
}

// Close stops Accept and Connect.
func (p *PipeListener) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Addr returns a placeholder pipe address.
func (p *PipeListener) Addr() net.Addr {
	return pipeAddr{}
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
