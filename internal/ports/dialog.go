package ports

// CredentialPrompter abstracts interactive credential entry.
// Implementations may use TUI forms, plain terminal reads, or test fakes.
type CredentialPrompter interface {
	// PromptUsername asks for the VPN username.
	PromptUsername() (string, error)

	// PromptPassword asks for the VPN password without echoing it.
	PromptPassword() (string, error)

	// PromptOTPSecret asks for the base32 TOTP secret without echoing it.
	PromptOTPSecret() (string, error)

	// Warn shows a prominent warning to the person at the terminal.
	Warn(message string)
}
