package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxAccountNameLength bounds the donor or organization name that
	// alert subjects and bodies quote.
	MaxAccountNameLength = 80

	maxEmailLength = 254
)

// ValidateAccountName checks a donor, organization or moderator display name.
func ValidateAccountName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxAccountNameLength {
		return fmt.Errorf("name is too long (max %d characters)", MaxAccountNameLength)
	}
	// Names end up in email headers.
	if strings.ContainsFunc(trimmed, unicode.IsControl) {
		return errors.New("name contains control characters")
	}
	return nil
}

// ValidateAccountEmail expects an already normalized (trimmed, lower-case)
// bare address. Display-name forms like "Cafe <cafe@example.com>" are
// rejected so the stored value can be used as a login key.
func ValidateAccountEmail(email string) error {
	if email == "" {
		return errors.New("email address is required")
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("email address is too long (max %d characters)", maxEmailLength)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("invalid email address format")
	}
	return nil
}
