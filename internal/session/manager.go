// ABOUTME: Session manager: restore, login, register, logout, and token refresh
// ABOUTME: Applies reducer actions under a mutex, persists tokens, and publishes events

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/events"
	"github.com/2389/finbot-client/internal/tokenstore"
	"github.com/2389/finbot-client/internal/transport"
)

// Default timeouts.
const (
	DefaultLoginTimeout  = 10 * time.Second
	DefaultLogoutTimeout = 5 * time.Second
)

// Accounts is the subset of the backend API the manager needs.
// *api.Client implements it.
type Accounts interface {
	Login(ctx context.Context, creds api.LoginCredentials) (*api.AuthResponse, error)
	Register(ctx context.Context, creds api.RegisterCredentials) (*api.AuthResponse, error)
	Me(ctx context.Context, accessToken string, opts api.MeOptions) (*api.User, error)
	RefreshToken(ctx context.Context, refresh string) (string, error)
	Logout(ctx context.Context, refresh string) error
}

var _ transport.UnauthorizedHandler = (*Manager)(nil)

// Manager owns the session state.
type Manager struct {
	accounts      Accounts
	store         tokenstore.Store
	bus           *events.Bus
	logger        *slog.Logger
	loginTimeout  time.Duration
	logoutTimeout time.Duration

	mu    sync.Mutex
	state State
	// gen counts session starts and ends; a refresh result is applied only
	// if gen is unchanged since the exchange began.
	gen uint64

	refreshMu sync.Mutex
	inflight  *refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus publishes session events on b.
func WithBus(b *events.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithLoginTimeout bounds each login call. Zero disables the bound.
func WithLoginTimeout(d time.Duration) Option {
	return func(m *Manager) { m.loginTimeout = d }
}

// WithLogoutTimeout bounds the logout notification to the backend.
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Manager) { m.logoutTimeout = d }
}

// NewManager creates a manager in the initial Authenticating state. Call
// Restore to settle it.
func NewManager(accounts Accounts, store tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		accounts:      accounts,
		store:         store,
		logger:        slog.Default(),
		loginTimeout:  DefaultLoginTimeout,
		logoutTimeout: DefaultLogoutTimeout,
		state:         InitialState(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AccessToken returns the current access token, if authenticated.
func (m *Manager) AccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.IsAuthenticated || m.state.Tokens.Access == "" {
		return "", false
	}
	return m.state.Tokens.Access, true
}

// AccessExpiry reports when the current access token expires.
func (m *Manager) AccessExpiry() (time.Time, error) {
	tok, ok := m.AccessToken()
	if !ok {
		return time.Time{}, ErrNoExpiry
	}
	return tokenExpiry(tok)
}

func (m *Manager) dispatch(a Action) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reduceLocked(a)
}

func (m *Manager) reduceLocked(a Action) State {
	switch a.(type) {
	case AuthStart, AuthSuccess, AuthFailure, Logout:
		m.gen++
	}
	m.state = Reduce(m.state, a)
	return m.state
}

// establish persists the new token pair and installs it under the state lock.
func (m *Manager) establish(ctx context.Context, a AuthSuccess) State {
	m.mu.Lock()
	storeErr := m.store.Save(context.WithoutCancel(ctx), a.Tokens)
	state := m.reduceLocked(a)
	m.mu.Unlock()

	m.reportSave(storeErr)
	return state
}

// end clears the stored tokens and applies a under the state lock.
func (m *Manager) end(ctx context.Context, a Action) State {
	m.mu.Lock()
	storeErr := m.store.Clear(context.WithoutCancel(ctx))
	state := m.reduceLocked(a)
	m.mu.Unlock()

	m.reportClear(storeErr)
	return state
}

func (m *Manager) publish(kind events.Kind, msg string, err error) {
	m.bus.Publish(events.Event{Kind: kind, Message: msg, Err: err})
}

// Restore settles the initial state from the token store. It validates the
// stored access token against the profile endpoint and falls back to one
// refresh before giving up.
func (m *Manager) Restore(ctx context.Context) State {
	m.dispatch(AuthStart{})

	tokens, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		m.publish(events.SessionAnonymous, "", nil)
		return m.dispatch(AuthFailure{})
	case errors.Is(err, tokenstore.ErrCorrupt):
		m.logger.Warn("discarding corrupt stored tokens", "error", err)
		m.publish(events.SessionAnonymous, "", nil)
		return m.end(ctx, AuthFailure{})
	case err != nil:
		m.logger.Error("loading stored tokens", "error", err)
		m.publish(events.SessionStoreFailed, "Could not read saved session", err)
		return m.dispatch(AuthFailure{})
	}

	user, err := m.accounts.Me(ctx, tokens.Access, api.MeOptions{SkipRefresh: true})
	if err == nil {
		m.logger.Info("session restored", "user", user.Username)
		m.publish(events.SessionRestored, "", nil)
		return m.dispatch(AuthSuccess{User: user, Tokens: tokens})
	}
	m.logger.Debug("stored access token rejected, refreshing", "error", err)

	access, err := m.accounts.RefreshToken(ctx, tokens.Refresh)
	if err != nil {
		m.logger.Info("session restore failed", "error", err)
		m.publish(events.SessionAnonymous, "", nil)
		return m.end(ctx, AuthFailure{})
	}

	refreshed := tokenstore.Tokens{Access: access, Refresh: tokens.Refresh}

	user, err = m.accounts.Me(ctx, access, api.MeOptions{SkipRefresh: true})
	if err != nil {
		m.logger.Warn("profile unavailable after refresh", "error", err)
		user = nil
	}
	m.publish(events.SessionRestored, "", nil)
	return m.establish(ctx, AuthSuccess{User: user, Tokens: refreshed})
}

// Login exchanges credentials for a session. On failure the state is left
// exactly as it was and an *AuthError is returned.
func (m *Manager) Login(ctx context.Context, creds api.LoginCredentials) (State, error) {
	if m.loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.loginTimeout)
		defer cancel()
	}

	resp, err := m.accounts.Login(ctx, creds)
	if err == nil && !resp.Complete() {
		err = api.ErrEmptyResponse
	}
	if err != nil {
		m.logger.Info("login failed", "email", creds.Email, "error", err)
		authErr := &AuthError{Message: MsgInvalidCredentials, Err: err}
		m.publish(events.LoginFailed, MsgInvalidCredentials, authErr)
		return m.State(), authErr
	}

	tokens := tokenstore.Tokens{Access: resp.Access, Refresh: resp.Refresh}
	state := m.establish(ctx, AuthSuccess{User: resp.User, Tokens: tokens})

	m.logger.Info("logged in", "user", resp.User.Username)
	m.publish(events.LoginSucceeded, "Login successful!", nil)
	return state, nil
}

// Register creates an account and signs in with it. Invalid input returns a
// *ValidationError without touching the network or the state.
func (m *Manager) Register(ctx context.Context, creds api.RegisterCredentials) (State, error) {
	if err := ValidateRegistration(creds); err != nil {
		m.publish(events.ValidationFailed, err.Error(), err)
		return m.State(), err
	}

	m.dispatch(AuthStart{})

	resp, err := m.accounts.Register(ctx, creds)
	if err == nil && !resp.Complete() {
		err = api.ErrEmptyResponse
	}
	if err != nil {
		authErr := newAuthError(registrationMessage(err), err)
		m.logger.Info("registration failed", "email", creds.Email, "error", err)
		m.publish(events.RegisterFailed, authErr.Message, authErr)
		return m.dispatch(AuthFailure{}), authErr
	}

	tokens := tokenstore.Tokens{Access: resp.Access, Refresh: resp.Refresh}
	state := m.establish(ctx, AuthSuccess{User: resp.User, Tokens: tokens})

	m.logger.Info("registered", "user", resp.User.Username)
	m.publish(events.RegisterSucceeded, "Account created successfully!", nil)
	return state, nil
}

func registrationMessage(err error) string {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" && apiErr.Message != transport.DefaultErrorMessage {
		return apiErr.Message
	}
	return MsgRegistrationFailed
}

// Logout ends the session locally, then tells the backend on a best-effort
// basis. Calling it while anonymous is harmless.
func (m *Manager) Logout(ctx context.Context) {
	refresh := m.State().Tokens.Refresh

	m.end(ctx, Logout{})
	m.publish(events.LoggedOut, "Logged out", nil)

	if refresh == "" {
		return
	}

	notifyCtx := context.WithoutCancel(ctx)
	if m.logoutTimeout > 0 {
		var cancel context.CancelFunc
		notifyCtx, cancel = context.WithTimeout(notifyCtx, m.logoutTimeout)
		defer cancel()
	}
	if err := m.accounts.Logout(notifyCtx, refresh); err != nil {
		m.logger.Warn("logout notification failed", "error", err)
		m.publish(events.LogoutNotifyFailed, "", err)
	}
}

// Refresh replaces the access token using the refresh token. Failure ends
// the session and clears the store. Concurrent callers share one exchange.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	if call := m.inflight; call != nil {
		m.refreshMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.refreshMu.Unlock()

	call.err = m.refresh(ctx)

	m.refreshMu.Lock()
	m.inflight = nil
	m.refreshMu.Unlock()
	close(call.done)

	return call.err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	current := m.state.Tokens
	gen := m.gen
	if current.Refresh != "" {
		m.state = Reduce(m.state, RefreshStart{})
	}
	m.mu.Unlock()

	if current.Refresh == "" {
		m.dispatch(AuthFailure{})
		authErr := &AuthError{Message: MsgRefreshFailed, Err: ErrNoRefreshToken}
		m.publish(events.TokenRefreshFailed, authErr.Message, authErr)
		return authErr
	}

	access, err := m.accounts.RefreshToken(ctx, current.Refresh)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger.Debug("discarding refresh result for a replaced session", "error", err)
		return ErrSessionChanged
	}
	if err != nil {
		storeErr := m.store.Clear(context.WithoutCancel(ctx))
		m.reduceLocked(AuthFailure{})
		m.mu.Unlock()

		m.reportClear(storeErr)
		m.logger.Info("token refresh failed", "error", err)
		authErr := newAuthError(MsgRefreshFailed, err)
		m.publish(events.TokenRefreshFailed, "Your session has expired. Please log in again.", authErr)
		return authErr
	}
	tokens := tokenstore.Tokens{Access: access, Refresh: current.Refresh}
	storeErr := m.store.Save(context.WithoutCancel(ctx), tokens)
	m.reduceLocked(TokenRefresh{Tokens: tokens})
	m.mu.Unlock()

	m.reportSave(storeErr)
	m.logger.Debug("access token refreshed")
	m.publish(events.TokenRefreshed, "", nil)
	return nil
}

// HandleUnauthorized runs Refresh when the gateway sees a 401.
func (m *Manager) HandleUnauthorized(ctx context.Context) error {
	if !m.State().IsAuthenticated {
		return nil
	}
	return m.Refresh(ctx)
}

func (m *Manager) reportSave(err error) {
	if err != nil {
		m.logger.Error("persisting tokens", "error", err)
		m.publish(events.SessionStoreFailed, "Could not save session", err)
	}
}

func (m *Manager) reportClear(err error) {
	if err != nil {
		m.logger.Error("clearing stored tokens", "error", err)
		m.publish(events.SessionStoreFailed, "Could not clear saved session", err)
	}
}
