package realotp

import (
	"testing"
	"time"
)

// RFC 6238 appendix B, SHA1 seed "12345678901234567890" in base32.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerator_RFCVectors(t *testing.T) {
	g, err := New(rfcSecret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, tt := range tests {
		got, err := g.Code(time.Unix(tt.unix, 0).UTC())
		if err != nil {
			t.Fatalf("Code(%d): %v", tt.unix, err)
		}
		if got != tt.want {
			t.Errorf("Code(%d) = %q, want %q", tt.unix, got, tt.want)
		}
	}
}

func TestNew_NormalizesSecret(t *testing.T) {
	g, err := New("gezd gnbv gy3t qojq gezd gnbv gy3t qojq")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.secret != rfcSecret {
		t.Errorf("secret = %q, want %q", g.secret, rfcSecret)
	}
}

func TestNew_RejectsInvalidSecret(t *testing.T) {
	for _, secret := range []string{"", "   ", "not base32!", "0189"} {
		if _, err := New(secret); err == nil {
			t.Errorf("New(%q) succeeded, want error", secret)
		}
	}
}
