package bridge

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/acolita/ovpn-authbridge/internal/ports"
	"github.com/acolita/ovpn-authbridge/internal/transcript"
)

// ManagementChannel is one connection to the OpenVPN management socket.
// A channel that has been replaced or closed ignores further input.
type ManagementChannel struct {
	bridge *Bridge
	out    io.Writer

	// Guarded by the state lock.
	closed     bool
	pending    ports.Timer
	generation uint64
}

// NewManagementChannel creates a channel writing commands to out. It is
// not registered until Open.
func (b *Bridge) NewManagementChannel(out io.Writer) *ManagementChannel {
	return &ManagementChannel{bridge: b, out: out}
}

// Open registers the channel as the live management connection and asks
// OpenVPN to stream its log.
func (m *ManagementChannel) Open() {
	s := m.bridge.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.management; prev != nil && prev != m {
		prev.cancelSuccessCheck()
	}
	s.management = m

	slog.Info("management interface connected")
	m.send(CmdLogOn)
}

// Close unregisters the channel and drops any pending success check.
func (m *ManagementChannel) Close() {
	s := m.bridge.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.cancelSuccessCheck()
	if s.management == m {
		s.management = nil
	}

	slog.Info("management interface disconnected")
}

// HandleLine processes one line read from the management socket.
func (m *ManagementChannel) HandleLine(line string) {
	line = strings.TrimRight(line, "\r")

	s := m.bridge.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if !m.active() {
		return
	}

	m.bridge.record(transcript.FromManagement, line)
	if s.control != nil {
		s.control.send(line)
	}

	d, ok := ParseDirective(line)
	if !ok {
		return
	}

	switch d.Type {
	case directiveHold:
		if s.holdRequested {
			slog.Info("staying on hold at operator request")
			return
		}
		m.send(CmdHoldRelease)

	case directivePassword:
		ev, twoFactor := classifyPassword(d.Data)
		switch ev {
		case passwordNeeded:
			m.submitCredentials(twoFactor)
		case passwordRejected:
			s.authFailures++
			slog.Warn("credentials rejected", slog.Int("failures", s.authFailures))
		case passwordAccepted:
			m.confirmSuccess(nil)
		}
	}
}

// active reports whether the channel may still act. Callers hold the
// state lock.
func (m *ManagementChannel) active() bool {
	return !m.closed && m.bridge.state.management == m && !m.bridge.stopped()
}

func (m *ManagementChannel) submitCredentials(twoFactor bool) {
	s := m.bridge.state

	response := s.creds.Password.String()
	if twoFactor {
		if s.creds.OTP == nil {
			m.bridge.Fail(ErrOTPUnavailable)
			return
		}
		code, err := s.creds.OTP.Code(m.bridge.opts.Clock.Now())
		if err != nil {
			m.bridge.Fail(fmt.Errorf("generate one-time code: %w", err))
			return
		}
		response = StaticChallengeResponse(response, code)
	}

	if s.authFailures >= m.bridge.opts.MaxFailures {
		m.bridge.Fail(fmt.Errorf("%w: %d rejected attempts", ErrTooManyFailures, s.authFailures))
		return
	}

	m.send(UsernameCommand(s.creds.Username))
	m.send(PasswordCommand(response))
	slog.Info("credentials submitted",
		slog.String("user", s.creds.Username),
		slog.Bool("two_factor", twoFactor),
		slog.Int("failures", s.authFailures))

	m.armSuccessCheck(s.authFailures)
}

// armSuccessCheck schedules confirmSuccess with the failure count as it
// stands now. Only the latest submission keeps a pending check.
func (m *ManagementChannel) armSuccessCheck(expected int) {
	m.cancelSuccessCheck()
	gen := m.generation
	m.pending = m.bridge.opts.Clock.AfterFunc(m.bridge.opts.SuccessTimeout, func() {
		m.successCheckDue(gen, expected)
	})
}

func (m *ManagementChannel) cancelSuccessCheck() {
	m.generation++
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}

func (m *ManagementChannel) successCheckDue(gen uint64, expected int) {
	s := m.bridge.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != m.generation || !m.active() {
		return
	}
	m.pending = nil
	m.confirmSuccess(&expected)
}

// confirmSuccess resets the failure count and tells OpenVPN to drop its
// cached credentials. With expected set, it does nothing unless the
// failure count still matches it.
func (m *ManagementChannel) confirmSuccess(expected *int) {
	s := m.bridge.state
	if expected != nil && *expected != s.authFailures {
		slog.Debug("success check superseded by rejection",
			slog.Int("expected", *expected),
			slog.Int("failures", s.authFailures))
		return
	}

	s.authFailures = 0
	m.send(CmdForgetPasswords)
	slog.Info("authentication succeeded", slog.Bool("assumed", expected != nil))
}

// send writes a command to the socket. Callers hold the state lock.
func (m *ManagementChannel) send(line string) {
	m.bridge.record(transcript.ToManagement, line)
	slog.Debug("management command", slog.String("line", transcript.Mask(line)))
	if err := writeLine(m.out, line); err != nil {
		slog.Warn("failed to write to management interface", slog.String("error", err.Error()))
	}
}
