package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// SanitizeName trims and strips control characters from a profile name
// field. Unicode letters are preserved.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
}

// ValidateStringLength validates that a field is within length constraints.
// A zero min or max disables that bound.
func ValidateStringLength(field, value string, min, max int) error {
	length := len(value)

	if min > 0 && length < min {
		return fmt.Errorf("%s must be at least %d characters long", field, min)
	}

	if max > 0 && length > max {
		return fmt.Errorf("%s must be at most %d characters long", field, max)
	}

	return nil
}
