package bridge

import (
	"encoding/base64"
	"strings"
)

// Inbound management interface vocabulary.
const (
	directivePrefix = '>'

	directiveHold     = "HOLD"
	directivePassword = "PASSWORD"

	needAuthPrefix        = "Need 'Auth' username/password"
	staticChallengeMarker = "SC:"
	verifyFailedPrefix    = "Verification Failed: 'Auth'"
	authTokenPrefix       = "Auth-Token:"
)

// Commands written to the management interface.
const (
	CmdLogOn           = "log on"
	CmdHoldRelease     = "hold release"
	CmdHoldOn          = "hold on"
	CmdForgetPasswords = "forget-passwords"
	CmdReconnect       = "signal SIGUSR1"

	authRealm              = "Auth"
	staticChallengeVersion = "SCRV1"
)

// Operator verbs understood on the control stream.
const (
	VerbDown = "down"
	VerbUp   = "up"
)

// Directive is a real-time notification from the management interface,
// received as ">TYPE:DATA".
type Directive struct {
	Type string
	Data string
}

// ParseDirective splits a ">TYPE:DATA" line. Lines without the prefix or
// without a colon are not directives.
func ParseDirective(line string) (Directive, bool) {
	if len(line) == 0 || line[0] != directivePrefix {
		return Directive{}, false
	}
	typ, data, ok := strings.Cut(line[1:], ":")
	if !ok {
		return Directive{}, false
	}
	return Directive{Type: typ, Data: data}, true
}

type passwordEvent int

const (
	passwordOther passwordEvent = iota
	passwordNeeded
	passwordRejected
	passwordAccepted
)

// classifyPassword maps the data of a >PASSWORD directive to the event it
// reports. twoFactor is set when a credential request carries a static
// challenge.
func classifyPassword(data string) (ev passwordEvent, twoFactor bool) {
	switch {
	case strings.HasPrefix(data, needAuthPrefix):
		return passwordNeeded, strings.Contains(data, staticChallengeMarker)
	case strings.HasPrefix(data, verifyFailedPrefix):
		return passwordRejected, false
	case strings.HasPrefix(data, authTokenPrefix):
		return passwordAccepted, false
	default:
		return passwordOther, false
	}
}

// UsernameCommand builds "username Auth <user>".
func UsernameCommand(user string) string {
	return "username " + authRealm + " " + quoteArg(user)
}

// PasswordCommand builds "password Auth <response>".
func PasswordCommand(response string) string {
	return "password " + authRealm + " " + quoteArg(response)
}

// StaticChallengeResponse builds the SCRV1 response carrying both the
// password and the one-time code.
func StaticChallengeResponse(password, code string) string {
	return staticChallengeVersion + ":" +
		base64.StdEncoding.EncodeToString([]byte(password)) + ":" +
		base64.StdEncoding.EncodeToString([]byte(code))
}

// quoteArg quotes a command argument the way the management interface
// parses it. Arguments without blanks, quotes or backslashes go out as-is.
func quoteArg(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\"\\") {
		return v
	}

	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	b.WriteByte('"')
	return b.String()
}
