package ports

import "time"

// OTPGenerator produces the one-time code for a shared secret.
type OTPGenerator interface {
	// Code returns the code valid at time t.
	Code(t time.Time) (string, error)
}
