package security

import (
	"fmt"
	"regexp"
)

// CommandFilter decides which operator commands may be passed through to
// the management interface, using blocklist and allowlist patterns.
// A filter with no patterns allows everything.
type CommandFilter struct {
	blocklist []*regexp.Regexp
	allowlist []*regexp.Regexp
}

// NewCommandFilter compiles the given patterns.
func NewCommandFilter(blocklist, allowlist []string) (*CommandFilter, error) {
	cf := &CommandFilter{}

	for _, pattern := range blocklist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid command_blocklist pattern %q: %w", pattern, err)
		}
		cf.blocklist = append(cf.blocklist, re)
	}

	for _, pattern := range allowlist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid command_allowlist pattern %q: %w", pattern, err)
		}
		cf.allowlist = append(cf.allowlist, re)
	}

	return cf, nil
}

// IsAllowed reports whether command may be relayed, and why not.
// The blocklist is checked first; a non-empty allowlist must then match.
func (cf *CommandFilter) IsAllowed(command string) (bool, string) {
	for _, re := range cf.blocklist {
		if re.MatchString(command) {
			return false, fmt.Sprintf("command blocked by pattern: %s", re.String())
		}
	}

	if len(cf.allowlist) > 0 {
		for _, re := range cf.allowlist {
			if re.MatchString(command) {
				return true, ""
			}
		}
		return false, "command not in allowlist"
	}

	return true, ""
}

// Active reports whether any patterns are configured.
func (cf *CommandFilter) Active() bool {
	return len(cf.blocklist) > 0 || len(cf.allowlist) > 0
}
