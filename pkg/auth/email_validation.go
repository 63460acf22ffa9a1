package auth

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/ninebudget/ninebudget/pkg/domain"
)

const (
	minEmailLength = 5
	maxEmailLength = 254 // RFC 5321
)

// ValidateEmail validates an email address for format and length.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email address is required", domain.ErrInvalidEmail)
	}

	if len(email) < minEmailLength || len(email) > maxEmailLength {
		return fmt.Errorf("%w: must be between %d and %d characters", domain.ErrInvalidEmail, minEmailLength, maxEmailLength)
	}

	addr, err := mail.ParseAddress(NormalizeEmail(email))
	if err != nil || addr.Address != NormalizeEmail(email) {
		return fmt.Errorf("%w: malformed address", domain.ErrInvalidEmail)
	}

	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
