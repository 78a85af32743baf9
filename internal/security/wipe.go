package security

import (
	"crypto/rand"
)

// WipeBytes overwrites a byte slice with random data and then zeros.
func WipeBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	rand.Read(data)
	for i := range data {
		data[i] = 0
	}
}

// SecureBytes holds a secret that is wiped when the holder is done with it.
// The VPN password lives in one of these for the lifetime of the process.
type SecureBytes struct {
	data []byte
}

// NewSecureBytes creates a new SecureBytes with a copy of the data.
func NewSecureBytes(data []byte) *SecureBytes {
	d := make([]byte, len(data))
	copy(d, data)
	return &SecureBytes{data: d}
}

// NewSecureString copies s into a SecureBytes.
func NewSecureString(s string) *SecureBytes {
	return &SecureBytes{data: []byte(s)}
}

// Data returns the underlying byte slice.
func (sb *SecureBytes) Data() []byte {
	if sb == nil {
		return nil
	}
	return sb.data
}

// String returns the data as a string. The copy it makes cannot be wiped.
func (sb *SecureBytes) String() string {
	if sb == nil {
		return ""
	}
	return string(sb.data)
}

// Wipe securely wipes the data.
func (sb *SecureBytes) Wipe() {
	if sb == nil {
		return
	}
	WipeBytes(sb.data)
	sb.data = nil
}

// Len returns the length of the data.
func (sb *SecureBytes) Len() int {
	if sb == nil {
		return 0
	}
	return len(sb.data)
}
