// ABOUTME: Local validation of registration input
// ABOUTME: Runs before any network call so bad input never reaches the backend

package session

import (
	"unicode/utf8"

	"github.com/2389/finbot-client/internal/api"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidateRegistration checks password confirmation and length.
func ValidateRegistration(creds api.RegisterCredentials) error {
	if creds.Password != creds.PasswordConfirm {
		return &ValidationError{Field: "password_confirm", Message: "Passwords do not match"}
	}
	if utf8.RuneCountInString(creds.Password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters long"}
	}
	return nil
}
