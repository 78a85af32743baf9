package bridge

import (
	"sync"

	"github.com/acolita/ovpn-authbridge/internal/ports"
	"github.com/acolita/ovpn-authbridge/internal/security"
)

// Credentials are resolved once before any channel connects and never
// change afterwards.
type Credentials struct {
	Username string
	Password *security.SecureBytes
	// OTP is nil when two-factor authentication is not configured.
	OTP ports.OTPGenerator
}

// State is the session record shared by the management and control
// channels. Every field below mu is guarded by it; channel handlers hold
// mu for the whole of a line so each line is processed to completion.
type State struct {
	creds Credentials

	mu sync.Mutex
	// authFailures counts explicit rejections since the last success.
	authFailures int
	// holdRequested suppresses the automatic "hold release".
	holdRequested bool
	// management and control are the live channels, if any. They are
	// observed here, not owned: whoever created a channel closes it.
	management *ManagementChannel
	control    *ControlChannel
}

// NewState creates the session record.
func NewState(creds Credentials) *State {
	return &State{creds: creds}
}

// Username returns the configured username.
func (s *State) Username() string {
	return s.creds.Username
}

// TwoFactor reports whether a TOTP generator is configured.
func (s *State) TwoFactor() bool {
	return s.creds.OTP != nil
}

// AuthFailures returns the current failure count.
func (s *State) AuthFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authFailures
}

// HoldRequested reports whether the operator asked to stay on hold.
func (s *State) HoldRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdRequested
}

// Management returns the registered management channel, or nil.
func (s *State) Management() *ManagementChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.management
}

// Control returns the registered control channel, or nil.
func (s *State) Control() *ControlChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control
}

// Wipe erases the password from memory. Call it only at shutdown.
func (s *State) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.Password.Wipe()
}
