// Package supervisor keeps a connection to the OpenVPN management socket
// open, redialing with exponential backoff whenever it fails or closes.
package supervisor

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acolita/ovpn-authbridge/internal/ports"
)

// Handler serves one established connection. It should return when conn
// is closed or ctx is cancelled.
type Handler func(ctx context.Context, conn net.Conn) error

// Config describes where to connect and how to pace retries.
type Config struct {
	Network      string
	Address      string
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	// Hint, when set, explains a dial error to the operator.
	Hint func(err error) string
}

// Supervisor redials the management socket until its context ends.
type Supervisor struct {
	cfg    Config
	dialer ports.NetworkDialer
	clock  ports.Clock
}

// New creates a Supervisor.
func New(cfg Config, dialer ports.NetworkDialer, clock ports.Clock) *Supervisor {
	if cfg.Network == "" {
		cfg.Network = "unix"
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Factor < 1 {
		cfg.Factor = 1
	}
	return &Supervisor{cfg: cfg, dialer: dialer, clock: clock}
}

// Run dials, hands each connection to handle, and redials after it ends.
// The delay grows after every failed dial and starts over once a dial
// succeeds. Run returns nil when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, handle Handler) error {
	bo := s.newBackOff()

	for ctx.Err() == nil {
		conn, err := s.dialer.Dial(ctx, s.cfg.Network, s.cfg.Address)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			delay := bo.NextBackOff()
			attrs := []any{
				slog.String("address", s.cfg.Address),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			}
			if s.cfg.Hint != nil {
				if hint := s.cfg.Hint(err); hint != "" {
					attrs = append(attrs, slog.String("hint", hint))
				}
			}
			slog.Warn("failed to connect to management socket", attrs...)
			if !s.wait(ctx, delay) {
				break
			}
			continue
		}

		bo.Reset()
		slog.Info("connected to management socket", slog.String("address", s.cfg.Address))
		s.serve(ctx, conn, handle)

		if ctx.Err() != nil {
			break
		}
		delay := bo.NextBackOff()
		slog.Info("management socket closed, reconnecting", slog.Duration("retry_in", delay))
		if !s.wait(ctx, delay) {
			break
		}
	}
	return nil
}

func (s *Supervisor) serve(ctx context.Context, conn net.Conn, handle Handler) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	if err := handle(ctx, conn); err != nil && ctx.Err() == nil {
		slog.Warn("management connection lost", slog.String("error", err.Error()))
	}
}

func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          s.cfg.Factor,
		MaxInterval:         s.cfg.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               s.clock,
	}
	bo.Reset()
	return bo
}
