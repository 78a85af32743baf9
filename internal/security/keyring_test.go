package security

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func newMockStore(t *testing.T) *KeyringStore {
	t.Helper()
	keyring.MockInit()
	ks := NewKeyringStore()
	if !ks.IsEnabled() {
		t.Fatal("mock keyring should be enabled")
	}
	return ks
}

func TestKeyringStore_SetEnabled(t *testing.T) {
	ks := newMockStore(t)

	ks.SetEnabled(false)
	if ks.IsEnabled() {
		t.Error("SetEnabled(false) did not disable keyring")
	}
	if _, err := ks.GetPassword("alice@/run/ovpn.s"); err == nil {
		t.Error("disabled store should refuse reads")
	}
	if err := ks.StorePassword("alice@/run/ovpn.s", []byte("x")); err == nil {
		t.Error("disabled store should refuse writes")
	}
}

func TestKeyringStore_Password(t *testing.T) {
	ks := newMockStore(t)
	account := "alice@/run/ovpn.s"

	if got, err := ks.GetPassword(account); err != nil || got != nil {
		t.Fatalf("GetPassword before store = %q, %v; want nil, nil", got, err)
	}

	if err := ks.StorePassword(account, []byte("p@ss word")); err != nil {
		t.Fatalf("StorePassword: %v", err)
	}

	got, err := ks.GetPassword(account)
	if err != nil {
		t.Fatalf("GetPassword: %v", err)
	}
	if string(got) != "p@ss word" {
		t.Errorf("GetPassword = %q, want %q", got, "p@ss word")
	}

	if err := ks.DeletePassword(account); err != nil {
		t.Fatalf("DeletePassword: %v", err)
	}
	if got, _ := ks.GetPassword(account); got != nil {
		t.Error("password should be nil after deletion")
	}
	if err := ks.DeletePassword(account); err != nil {
		t.Errorf("deleting a missing entry should succeed, got %v", err)
	}
}

func TestKeyringStore_OTPSecretSeparateFromPassword(t *testing.T) {
	ks := newMockStore(t)
	account := "bob@/run/ovpn.s"

	if err := ks.StorePassword(account, []byte("pw")); err != nil {
		t.Fatalf("StorePassword: %v", err)
	}
	if err := ks.StoreOTPSecret(account, []byte("JBSWY3DPEHPK3PXP")); err != nil {
		t.Fatalf("StoreOTPSecret: %v", err)
	}

	secret, err := ks.GetOTPSecret(account)
	if err != nil || string(secret) != "JBSWY3DPEHPK3PXP" {
		t.Errorf("GetOTPSecret = %q, %v", secret, err)
	}
	pw, _ := ks.GetPassword(account)
	if string(pw) != "pw" {
		t.Errorf("GetPassword = %q, want pw", pw)
	}

	if err := ks.Forget(account); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if pw, _ := ks.GetPassword(account); pw != nil {
		t.Error("Forget left the password")
	}
	if secret, _ := ks.GetOTPSecret(account); secret != nil {
		t.Error("Forget left the TOTP secret")
	}
}
