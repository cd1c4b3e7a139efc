// ABOUTME: Account endpoints: login, register, profile, token refresh, logout
// ABOUTME: Returns raw auth payloads so the session manager can enforce completeness

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/2389/finbot-client/internal/transport"
)

const (
	pathLogin    = "/accounts/login/"
	pathRegister = "/accounts/register/"
	pathMe       = "/accounts/me/"
	pathRefresh  = "/accounts/refresh-token/"
	pathLogout   = "/accounts/logout/"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Login posts credentials. The returned response may be incomplete.
func (c *Client) Login(ctx context.Context, creds LoginCredentials) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   pathLogin,
		Body:   creds,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account. The backend nests the auth payload under
// "data"; the returned response may be incomplete.
func (c *Client) Register(ctx context.Context, creds RegisterCredentials) (*AuthResponse, error) {
	var resp struct {
		Data *AuthResponse `json:"data"`
	}
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   pathRegister,
		Body:   creds,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return &AuthResponse{}, nil
	}
	return resp.Data, nil
}

// MeOptions tunes the profile request.
type MeOptions struct {
	// SkipRefresh keeps a 401 from triggering the gateway's refresh hook.
	SkipRefresh bool
}

// Me fetches the profile for accessToken. The profile is read from "data",
// falling back to a top-level user object.
func (c *Client) Me(ctx context.Context, accessToken string, opts MeOptions) (*User, error) {
	var body json.RawMessage
	err := c.gw.Do(ctx, transport.Request{
		Method:               http.MethodGet,
		Path:                 pathMe,
		Token:                accessToken,
		SkipUnauthorizedHook: opts.SkipRefresh,
	}, &body)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Data *User `json:"data"`
	}
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var u User
	if json.Unmarshal(body, &u) == nil && (u.ID != 0 || u.Username != "") {
		return &u, nil
	}
	return nil, fmt.Errorf("fetching profile: %w", ErrEmptyResponse)
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	var resp struct {
		Access string `json:"access"`
	}
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   pathRefresh,
		Body:   refreshRequest{Refresh: refresh},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Access == "" {
		return "", fmt.Errorf("refreshing token: %w", ErrEmptyResponse)
	}
	return resp.Access, nil
}

// Logout tells the backend to invalidate the refresh token.
func (c *Client) Logout(ctx context.Context, refresh string) error {
	return c.gw.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   pathLogout,
		Body:   refreshRequest{Refresh: refresh},
	}, nil)
}
