package security

const (
	errKeyringNotAvailable = "keyring not available"
	keyPasswordFmt         = "password:%s"
	keyOTPSecretFmt        = "totp:%s"
)
