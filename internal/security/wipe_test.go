package security

import (
	"testing"
)

func TestWipeBytes_NonEmpty(t *testing.T) {
	data := []byte("sensitive-data-1234")

	WipeBytes(data)

	for i, b := range data {
		if b != 0 {
			t.Errorf("WipeBytes did not zero byte at index %d: got %d, want 0", i, b)
		}
	}
}

func TestWipeBytes_EmptyAndNil(t *testing.T) {
	WipeBytes([]byte{})
	WipeBytes(nil)
}

func TestSecureBytes_CopiesInput(t *testing.T) {
	src := []byte("p@ss")
	sb := NewSecureBytes(src)
	src[0] = 'X'

	if sb.String() != "p@ss" {
		t.Errorf("String() = %q, want %q", sb.String(), "p@ss")
	}
	if sb.Len() != 4 {
		t.Errorf("Len() = %d, want 4", sb.Len())
	}
}

func TestSecureBytes_Wipe(t *testing.T) {
	sb := NewSecureString("hunter2")
	backing := sb.Data()

	sb.Wipe()

	if sb.Len() != 0 || sb.Data() != nil {
		t.Error("Wipe() left data behind")
	}
	for i, b := range backing {
		if b != 0 {
			t.Errorf("backing byte %d = %d, want 0", i, b)
		}
	}
}

func TestSecureBytes_NilSafe(t *testing.T) {
	var sb *SecureBytes
	if sb.String() != "" || sb.Len() != 0 || sb.Data() != nil {
		t.Error("nil SecureBytes should behave as empty")
	}
	sb.Wipe()
}
