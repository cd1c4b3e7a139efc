// ABOUTME: Typed errors returned by session operations
// ABOUTME: ValidationError for local checks, AuthError for failed credential or token exchanges

package session

import (
	"errors"

	"github.com/2389/finbot-client/internal/transport"
)

// User-facing failure messages.
const (
	MsgInvalidCredentials = "Invalid Credentials"
	MsgRegistrationFailed = "Registration failed"
	MsgRefreshFailed      = "Token refresh failed"
)

// ErrNoRefreshToken is wrapped by the AuthError Refresh returns when no
// refresh token is held.
var ErrNoRefreshToken = errors.New("no refresh token")

// ErrSessionChanged is returned by Refresh when a login or logout happened
// while the exchange was in flight. The result is discarded.
var ErrSessionChanged = errors.New("session changed during refresh")

// ValidationError is a registration input rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthError is a failed login, registration or refresh.
type AuthError struct {
	Message string
	// Fields holds per-field server errors, when the backend sent them.
	Fields map[string][]string
	Err    error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(msg string, err error) *AuthError {
	ae := &AuthError{Message: msg, Err: err}
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		ae.Fields = apiErr.FieldErrors()
	}
	return ae
}
