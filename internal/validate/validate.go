package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// KeyRe matches well-formed setting keys: dotted identifiers such as
// "theme" or "editor.fontSize". Each segment must start alphanumeric.
var KeyRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*(\.[a-zA-Z0-9][a-zA-Z0-9_-]*)*$`)

// MaxKeyLen is the maximum length for setting keys.
const MaxKeyLen = 128

// MaxNameLen is the maximum length for profile names, in runes.
const MaxNameLen = 120

// SettingKey reports whether s is a well-formed setting key.
func SettingKey(s string) bool {
	return len(s) > 0 && len(s) <= MaxKeyLen && KeyRe.MatchString(s)
}

// ProfileName checks a profile display name. Names are free-form text but
// must be non-empty after trimming, fit within MaxNameLen runes, and carry
// no control characters.
func ProfileName(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return fmt.Errorf("profile name must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLen {
		return fmt.Errorf("profile name exceeds %d characters", MaxNameLen)
	}
	if strings.ContainsAny(s, "\x00\n\r") {
		return fmt.Errorf("profile name contains control characters")
	}
	return nil
}
