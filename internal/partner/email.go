package partner

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidEmail is returned for a partner email that is empty or malformed.
	ErrInvalidEmail = errors.New("please enter a valid email address")

	// ErrSelfPartner is returned when the partner email is the user's own.
	ErrSelfPartner = errors.New("you cannot partner with yourself")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePartnerEmail returns the normalized candidate, or an error when it
// is malformed or equal to self.
func ValidatePartnerEmail(candidate, self string) (string, error) {
	email := NormalizeEmail(candidate)
	if email == "" || !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	if self != "" && email == NormalizeEmail(self) {
		return "", ErrSelfPartner
	}
	return email, nil
}
