// ABOUTME: Backend API client constructor and the Doer abstraction over the gateway
// ABOUTME: Shared sentinel errors for malformed success payloads

package api

import (
	"context"
	"errors"

	"github.com/2389/finbot-client/internal/transport"
)

// ErrEmptyResponse is returned when a 2xx response lacks the expected payload.
var ErrEmptyResponse = errors.New("response missing data")

// Doer performs one normalized backend call. *transport.Gateway implements it.
type Doer interface {
	Do(ctx context.Context, req transport.Request, out any) error
}

// Client exposes the backend endpoints.
type Client struct {
	gw Doer
}

// NewClient creates a client on top of gw.
func NewClient(gw Doer) *Client {
	return &Client{gw: gw}
}
