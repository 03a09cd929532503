// internal/assert/pattern.go
package assert

import (
	"fmt"
	"regexp"
	"strings"
)

// ParsePattern compiles a condition pattern. Two forms are accepted: a raw
// Go regular expression, or the slash-delimited "/body/flags" form where
// the flags are any of i, m and s. A malformed pattern is a setup error
// for the condition that carries it.
func ParsePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern must not be empty")
	}

	body := pattern
	if strings.HasPrefix(pattern, "/") {
		if end := strings.LastIndex(pattern, "/"); end > 0 {
			flags := pattern[end+1:]
			if valid, prefix := translateFlags(flags); valid {
				body = prefix + pattern[1:end]
			}
		}
	}

	re, err := regexp.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// translateFlags maps slash-form flags onto a Go inline flag group. An
// unknown flag character means the string was not flag syntax at all, so
// the caller falls back to treating the whole input as a raw expression.
func translateFlags(flags string) (bool, string) {
	for _, r := range flags {
		switch r {
		case 'i', 'm', 's':
		default:
			return false, ""
		}
	}
	if flags == "" {
		return true, ""
	}
	return true, "(?" + flags + ")"
}
