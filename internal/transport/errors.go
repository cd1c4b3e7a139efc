// ABOUTME: Typed errors produced by the transport gateway
// ABOUTME: APIError carries HTTP status and server detail, NetworkError wraps transport failures

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultErrorMessage is used when a non-2xx body carries no readable message.
const DefaultErrorMessage = "API request failed"

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
	// Errors is the raw "errors" object from the response body, if any.
	Errors json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// FieldErrors decodes Errors as the usual {"field": ["problem", ...]} shape.
// Values that are plain strings are wrapped into single-element slices.
// Anything else yields nil.
func (e *APIError) FieldErrors() map[string][]string {
	if len(e.Errors) == 0 {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(e.Errors, &raw); err != nil {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for field, v := range raw {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			out[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(v, &single); err == nil {
			out[field] = []string{single}
		}
	}
	return out
}

// NetworkError is a request that produced no HTTP response.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request was aborted by a context deadline.
func (e *NetworkError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an
// *APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == 401
}
