// Package recovery turns errors that stop or stall the bridge into hints
// an operator can act on.
package recovery

import (
	"errors"
	"io/fs"
	"regexp"
	"sort"
	"syscall"

	"github.com/acolita/ovpn-authbridge/internal/adapters/realdialog"
	"github.com/acolita/ovpn-authbridge/internal/bridge"
)

// Suggestion is a recovery hint for an error.
type Suggestion struct {
	Problem    string  // What went wrong, in operator terms
	Category   string  // auth, socket, terminal, otp
	Hint       string  // What to try next
	Confidence float64 // How likely the hint applies
}

// Analyzer matches errors against known failure modes.
type Analyzer struct {
	rules []recoveryRule
}

type recoveryRule struct {
	name    string
	is      error          // matched with errors.Is when set
	pattern *regexp.Regexp // matched against the error text when set
	suggest Suggestion
}

// NewAnalyzer creates an analyzer with the default rules.
func NewAnalyzer() *Analyzer {
	return &Analyzer{rules: defaultRules()}
}

// Analyze returns suggestions for err, most confident first.
func (a *Analyzer) Analyze(err error) []*Suggestion {
	if err == nil {
		return nil
	}

	var suggestions []*Suggestion
	seen := make(map[string]bool)
	for _, rule := range a.rules {
		if !rule.matches(err) || seen[rule.suggest.Problem] {
			continue
		}
		seen[rule.suggest.Problem] = true
		s := rule.suggest
		suggestions = append(suggestions, &s)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions
}

// Hint returns the most confident hint for err, or "".
func (a *Analyzer) Hint(err error) string {
	if s := a.Analyze(err); len(s) > 0 {
		return s[0].Hint
	}
	return ""
}

func (r recoveryRule) matches(err error) bool {
	if r.is != nil && errors.Is(err, r.is) {
		return true
	}
	return r.pattern != nil && r.pattern.MatchString(err.Error())
}

func defaultRules() []recoveryRule {
	return []recoveryRule{
		{
			name: "too_many_failures",
			is:   bridge.ErrTooManyFailures,
			suggest: Suggestion{
				Problem:    "The server rejected the credentials repeatedly",
				Category:   "auth",
				Hint:       "Check the password. If it comes from the OS keyring, run again with -forget and re-enter it.",
				Confidence: 0.9,
			},
		},
		{
			name: "otp_unavailable",
			is:   bridge.ErrOTPUnavailable,
			suggest: Suggestion{
				Problem:    "The server asked for a one-time code",
				Category:   "otp",
				Hint:       "Run with -totp, or enter the password as TOTP-2FA:<base64 password>:<base64 secret>.",
				Confidence: 0.95,
			},
		},
		{
			name:    "bad_otp_secret",
			pattern: regexp.MustCompile(`(?i)illegal base32 data|invalid TOTP secret`),
			suggest: Suggestion{
				Problem:    "The TOTP secret is not valid base32",
				Category:   "otp",
				Hint:       "Use the secret from the authenticator enrollment (letters A-Z and digits 2-7).",
				Confidence: 0.8,
			},
		},
		{
			name: "no_terminal",
			is:   realdialog.ErrNoTerminal,
			suggest: Suggestion{
				Problem:    "Credentials are needed but stdin is not a terminal",
				Category:   "terminal",
				Hint:       "Run once interactively with security.use_keyring enabled so later runs read the keyring.",
				Confidence: 0.85,
			},
		},
		{
			name: "socket_missing",
			is:   fs.ErrNotExist,
			suggest: Suggestion{
				Problem:    "The management socket does not exist",
				Category:   "socket",
				Hint:       "Start OpenVPN with --management <SOCK> unix --management-hold --management-query-passwords.",
				Confidence: 0.7,
			},
		},
		{
			name: "socket_refused",
			is:   syscall.ECONNREFUSED,
			suggest: Suggestion{
				Problem:    "Nothing is listening on the management socket",
				Category:   "socket",
				Hint:       "OpenVPN has exited or another client holds the management interface.",
				Confidence: 0.7,
			},
		},
		{
			name: "socket_permission",
			is:   fs.ErrPermission,
			suggest: Suggestion{
				Problem:    "Access to the management socket was denied",
				Category:   "socket",
				Hint:       "Run as the socket owner or set --management-client-user/--management-client-group in OpenVPN.",
				Confidence: 0.75,
			},
		},
	}
}
