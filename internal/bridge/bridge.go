// Package bridge answers OpenVPN management interface authentication
// requests on the user's behalf and relays operator commands.
//
// A Bridge owns the session State and hands out two kinds of channel: a
// ManagementChannel per connection to the management socket and a
// ControlChannel per operator stream. Every inbound line is processed to
// completion under the state lock, so the channels observe a single
// consistent order of events.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acolita/ovpn-authbridge/internal/adapters/realclock"
	"github.com/acolita/ovpn-authbridge/internal/ports"
	"github.com/acolita/ovpn-authbridge/internal/transcript"
)

const (
	// DefaultMaxFailures is the number of rejected attempts after which
	// the bridge stops answering credential requests.
	DefaultMaxFailures = 2
	// DefaultSuccessTimeout is how long a submission must go unrejected
	// before it is treated as accepted.
	DefaultSuccessTimeout = 60 * time.Second

	maxLineLength = 64 * 1024
)

var (
	// ErrTooManyFailures is the fatal error raised when another credential
	// request arrives after the failure threshold has been reached.
	ErrTooManyFailures = errors.New("authentication failed too many times")
	// ErrOTPUnavailable is the fatal error raised when the server asks for
	// a static-challenge response and no TOTP secret is configured.
	ErrOTPUnavailable = errors.New("server requires a one-time code but no TOTP secret is configured")
)

// Recorder receives every protocol line the bridge reads or writes.
type Recorder interface {
	Record(kind transcript.Kind, line string) error
}

// CommandFilter decides whether an operator command may be passed through
// to the management interface.
type CommandFilter interface {
	IsAllowed(command string) (bool, string)
}

// Options configures a Bridge. Zero values select the defaults.
type Options struct {
	MaxFailures    int
	SuccessTimeout time.Duration
	Clock          ports.Clock
	// Transcript, when set, records the protocol exchange.
	Transcript Recorder
	// Connect is called once, the first time a control channel opens.
	// It starts whatever establishes the management connection.
	Connect func()
	// Filter, when set, gates operator commands other than the up and
	// down verbs.
	Filter CommandFilter
}

// Bridge ties the session state to its channels and carries the
// process-level outcome: it stops, with an error, on the first fatal
// condition.
type Bridge struct {
	state *State
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc

	// Guarded by the state lock.
	filter CommandFilter

	connectOnce sync.Once
	failed      atomic.Bool
	errMu       sync.Mutex
	err         error
}

// New creates a Bridge. Cancelling ctx stops it without error.
func New(ctx context.Context, state *State, opts Options) *Bridge {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.SuccessTimeout <= 0 {
		opts.SuccessTimeout = DefaultSuccessTimeout
	}
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Bridge{
		state:  state,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		filter: opts.Filter,
	}
}

// SetFilter replaces the operator command filter. A nil filter relays
// every command.
func (b *Bridge) SetFilter(f CommandFilter) {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	b.filter = f
}

// State returns the shared session state.
func (b *Bridge) State() *State {
	return b.state
}

// Context is cancelled when the bridge stops.
func (b *Bridge) Context() context.Context {
	return b.ctx
}

// Done is closed when the bridge stops.
func (b *Bridge) Done() <-chan struct{} {
	return b.ctx.Done()
}

// Err returns the fatal error that stopped the bridge, or nil.
func (b *Bridge) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}

// Fail stops the bridge with a fatal error. Only the first call has any
// effect. Channels ignore all input once the bridge has failed.
func (b *Bridge) Fail(err error) {
	if !b.failed.CompareAndSwap(false, true) {
		return
	}
	b.errMu.Lock()
	b.err = err
	b.errMu.Unlock()

	slog.Error("bridge stopped", slog.String("error", err.Error()))
	b.cancel()
}

// Stop stops the bridge without error.
func (b *Bridge) Stop() {
	b.cancel()
}

func (b *Bridge) stopped() bool {
	return b.failed.Load() || b.ctx.Err() != nil
}

func (b *Bridge) connect() {
	b.connectOnce.Do(func() {
		if b.opts.Connect != nil {
			b.opts.Connect()
		}
	})
}

func (b *Bridge) record(kind transcript.Kind, line string) {
	if b.opts.Transcript == nil {
		return
	}
	if err := b.opts.Transcript.Record(kind, line); err != nil {
		slog.Warn("failed to record transcript event", slog.String("error", err.Error()))
	}
}

// ServeManagement runs a ManagementChannel over conn until the peer
// closes it, reading fails, or the bridge stops.
func (b *Bridge) ServeManagement(ctx context.Context, conn io.ReadWriter) error {
	m := b.NewManagementChannel(conn)
	m.Open()
	defer m.Close()
	return b.serveLines(ctx, conn, m.HandleLine)
}

// ServeControl runs a ControlChannel reading operator lines from r and
// writing management output to w.
func (b *Bridge) ServeControl(ctx context.Context, r io.Reader, w io.Writer) error {
	c := b.NewControlChannel(w)
	c.Open()
	defer c.Close()
	return b.serveLines(ctx, r, c.HandleLine)
}

// ServeControlListener accepts operator connections on ln and serves each
// as a control channel. The most recent connection is the live one.
func (b *Bridge) ServeControlListener(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}

		slog.Info("control client connected", slog.String("remote", conn.RemoteAddr().String()))
		go func() {
			defer conn.Close()
			if err := b.ServeControl(ctx, conn, conn); err != nil {
				slog.Debug("control client closed", slog.String("error", err.Error()))
			}
		}()
	}
}

func (b *Bridge) serveLines(ctx context.Context, r io.Reader, handle func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.stopped() {
			return b.ctx.Err()
		}
		handle(scanner.Text())
	}
	return scanner.Err()
}

// writeLine writes line and its terminator in a single Write.
func writeLine(w io.Writer, line string) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}
