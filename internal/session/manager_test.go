// ABOUTME: Tests for the session manager against a scripted accounts backend
// ABOUTME: Covers restore paths, login, registration, logout, refresh, and event publication

package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/events"
	"github.com/2389/finbot-client/internal/tokenstore"
	"github.com/2389/finbot-client/internal/transport"
)

// fakeAccounts scripts each endpoint. Nil funcs fail the call.
type fakeAccounts struct {
	login    func(ctx context.Context, creds api.LoginCredentials) (*api.AuthResponse, error)
	register func(ctx context.Context, creds api.RegisterCredentials) (*api.AuthResponse, error)
	me       func(ctx context.Context, token string) (*api.User, error)
	refresh  func(ctx context.Context, refresh string) (string, error)
	logout   func(ctx context.Context, refresh string) error

	calls sync.Map // endpoint -> *atomic.Int32
}

var errNotScripted = errors.New("not scripted")

func (f *fakeAccounts) count(name string) {
	v, _ := f.calls.LoadOrStore(name, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)
}

func (f *fakeAccounts) Calls(name string) int {
	v, ok := f.calls.Load(name)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int32).Load())
}

func (f *fakeAccounts) Login(ctx context.Context, creds api.LoginCredentials) (*api.AuthResponse, error) {
	f.count("login")
	if f.login == nil {
		return nil, errNotScripted
	}
	return f.login(ctx, creds)
}

func (f *fakeAccounts) Register(ctx context.Context, creds api.RegisterCredentials) (*api.AuthResponse, error) {
	f.count("register")
	if f.register == nil {
		return nil, errNotScripted
	}
	return f.register(ctx, creds)
}

func (f *fakeAccounts) Me(ctx context.Context, token string, _ api.MeOptions) (*api.User, error) {
	f.count("me")
	if f.me == nil {
		return nil, errNotScripted
	}
	return f.me(ctx, token)
}

func (f *fakeAccounts) RefreshToken(ctx context.Context, refresh string) (string, error) {
	f.count("refresh")
	if f.refresh == nil {
		return "", errNotScripted
	}
	return f.refresh(ctx, refresh)
}

func (f *fakeAccounts) Logout(ctx context.Context, refresh string) error {
	f.count("logout")
	if f.logout == nil {
		return errNotScripted
	}
	return f.logout(ctx, refresh)
}

var alice = &api.User{ID: 1, Username: "alice", Email: "a@b.com"}

func completeAuth() *api.AuthResponse {
	return &api.AuthResponse{User: alice, Access: "access-1", Refresh: "refresh-1"}
}

func newTestManager(t *testing.T, accts *fakeAccounts, store tokenstore.Store, opts ...Option) (*Manager, <-chan events.Event) {
	t.Helper()
	bus := events.NewBus(nil)
	t.Cleanup(bus.Close)
	ch, _ := bus.Subscribe(t.Context())
	return NewManager(accts, store, append([]Option{WithBus(bus)}, opts...)...), ch
}

func drain(ch <-chan events.Event) []events.Kind {
	var kinds []events.Kind
	for {
		select {
		case e := <-ch:
			kinds = append(kinds, e.Kind)
		case <-time.After(50 * time.Millisecond):
			return kinds
		}
	}
}

func authenticate(t *testing.T, m *Manager) {
	t.Helper()
	_, err := m.Login(t.Context(), api.LoginCredentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
}

func TestRestore_NoTokensIsAnonymous(t *testing.T) {
	accts := &fakeAccounts{}
	m, ch := newTestManager(t, accts, tokenstore.NewMemoryStore())

	state := m.Restore(t.Context())
	assert.Equal(t, PhaseAnonymous, state.Phase)
	assert.False(t, state.IsLoading)
	assert.Zero(t, accts.Calls("me"))
	assert.Contains(t, drain(ch), events.SessionAnonymous)
}

func TestRestore_CorruptEntryIsClearedAndAnonymous(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	store.SetRaw([]byte(`{"access":"only-half"}`))
	m, _ := newTestManager(t, &fakeAccounts{}, store)

	state := m.Restore(t.Context())
	assert.Equal(t, PhaseAnonymous, state.Phase)

	_, err := store.Load(t.Context())
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestRestore_ValidAccessToken(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	pair := tokenstore.Tokens{Access: "a1", Refresh: "r1"}
	require.NoError(t, store.Save(t.Context(), pair))

	accts := &fakeAccounts{
		me: func(_ context.Context, token string) (*api.User, error) {
			assert.Equal(t, "a1", token)
			return alice, nil
		},
	}
	m, ch := newTestManager(t, accts, store)

	state := m.Restore(t.Context())
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	assert.Equal(t, alice, state.User)
	assert.Equal(t, pair, state.Tokens)
	assert.Zero(t, accts.Calls("refresh"))
	assert.Contains(t, drain(ch), events.SessionRestored)
}

func TestRestore_ExpiredAccessRefreshesOnce(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Save(t.Context(), tokenstore.Tokens{Access: "stale", Refresh: "r1"}))

	accts := &fakeAccounts{
		me: func(_ context.Context, token string) (*api.User, error) {
			if token == "stale" {
				return nil, &transport.APIError{Status: http.StatusUnauthorized}
			}
			return alice, nil
		},
		refresh: func(_ context.Context, refresh string) (string, error) {
			assert.Equal(t, "r1", refresh)
			return "fresh", nil
		},
	}
	m, _ := newTestManager(t, accts, store)

	state := m.Restore(t.Context())
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	assert.Equal(t, tokenstore.Tokens{Access: "fresh", Refresh: "r1"}, state.Tokens)
	assert.Equal(t, alice, state.User)
	assert.Equal(t, 1, accts.Calls("refresh"))

	stored, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.Access)
	assert.Equal(t, "r1", stored.Refresh, "refresh token is kept")
}

func TestRestore_RefreshFailureClearsStore(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Save(t.Context(), tokenstore.Tokens{Access: "stale", Refresh: "dead"}))

	accts := &fakeAccounts{
		me: func(context.Context, string) (*api.User, error) {
			return nil, &transport.APIError{Status: http.StatusUnauthorized}
		},
		refresh: func(context.Context, string) (string, error) {
			return "", &transport.APIError{Status: http.StatusUnauthorized}
		},
	}
	m, _ := newTestManager(t, accts, store)

	state := m.Restore(t.Context())
	assert.Equal(t, PhaseAnonymous, state.Phase)
	assert.Equal(t, 1, accts.Calls("refresh"))

	_, err := store.Load(t.Context())
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestLogin_Success(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	accts := &fakeAccounts{
		login: func(_ context.Context, creds api.LoginCredentials) (*api.AuthResponse, error) {
			assert.Equal(t, "a@b.com", creds.Email)
			return completeAuth(), nil
		},
	}
	m, ch := newTestManager(t, accts, store)
	m.Restore(t.Context())

	state, err := m.Login(t.Context(), api.LoginCredentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	assert.True(t, state.IsAuthenticated)

	tok, ok := m.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "access-1", tok)

	stored, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, tokenstore.Tokens{Access: "access-1", Refresh: "refresh-1"}, stored)
	assert.Contains(t, drain(ch), events.LoginSucceeded)
}

func TestLogin_FailureLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name string
		resp *api.AuthResponse
		err  error
	}{
		{"server rejects", nil, &transport.APIError{Status: http.StatusUnauthorized, Message: "No active account"}},
		{"network", nil, &transport.NetworkError{Method: "POST", Path: "/accounts/login/", Err: errors.New("refused")}},
		{"missing refresh", &api.AuthResponse{User: alice, Access: "a"}, nil},
		{"missing user", &api.AuthResponse{Access: "a", Refresh: "r"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tokenstore.NewMemoryStore()
			accts := &fakeAccounts{
				login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
					return tt.resp, tt.err
				},
			}
			m, ch := newTestManager(t, accts, store)
			m.Restore(t.Context())
			before := m.State()

			state, err := m.Login(t.Context(), api.LoginCredentials{Email: "a@b.com", Password: "x"})
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, MsgInvalidCredentials, authErr.Error())
			assert.Equal(t, before, state)
			assert.Equal(t, before, m.State())

			_, loadErr := store.Load(t.Context())
			assert.ErrorIs(t, loadErr, tokenstore.ErrNotFound)
			assert.Contains(t, drain(ch), events.LoginFailed)
		})
	}
}

func TestLogin_TimesOut(t *testing.T) {
	accts := &fakeAccounts{
		login: func(ctx context.Context, _ api.LoginCredentials) (*api.AuthResponse, error) {
			<-ctx.Done()
			return nil, &transport.NetworkError{Method: "POST", Path: "/accounts/login/", Err: ctx.Err()}
		},
	}
	m, _ := newTestManager(t, accts, tokenstore.NewMemoryStore(), WithLoginTimeout(20*time.Millisecond))
	m.Restore(t.Context())

	start := time.Now()
	_, err := m.Login(t.Context(), api.LoginCredentials{Email: "a@b.com", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, PhaseAnonymous, m.State().Phase)
}

func TestRegister_ValidationShortCircuits(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
	}{
		{"mismatch", "password123", "password124"},
		{"too short", "short", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accts := &fakeAccounts{}
			m, _ := newTestManager(t, accts, tokenstore.NewMemoryStore())
			m.Restore(t.Context())
			before := m.State()

			_, err := m.Register(t.Context(), api.RegisterCredentials{
				Username:        "bob",
				Email:           "bob@example.com",
				Password:        tt.password,
				PasswordConfirm: tt.confirm,
			})
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Zero(t, accts.Calls("register"), "no network call")
			assert.Equal(t, before, m.State())
		})
	}
}

func TestRegister_Success(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	accts := &fakeAccounts{
		register: func(context.Context, api.RegisterCredentials) (*api.AuthResponse, error) {
			return completeAuth(), nil
		},
	}
	m, ch := newTestManager(t, accts, store)
	m.Restore(t.Context())

	state, err := m.Register(t.Context(), api.RegisterCredentials{
		Username: "alice", Email: "a@b.com", Password: "password123", PasswordConfirm: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	assert.Equal(t, alice, state.User)

	_, err = store.Load(t.Context())
	require.NoError(t, err)
	assert.Contains(t, drain(ch), events.RegisterSucceeded)
}

func TestRegister_ServerErrorPreservesMessageAndFields(t *testing.T) {
	accts := &fakeAccounts{
		register: func(context.Context, api.RegisterCredentials) (*api.AuthResponse, error) {
			return nil, &transport.APIError{
				Status:  http.StatusBadRequest,
				Message: "Email already registered",
				Errors:  []byte(`{"email":["already taken"]}`),
			}
		},
	}
	m, _ := newTestManager(t, accts, tokenstore.NewMemoryStore())
	m.Restore(t.Context())

	state, err := m.Register(t.Context(), api.RegisterCredentials{
		Username: "alice", Email: "a@b.com", Password: "password123", PasswordConfirm: "password123",
	})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Email already registered", authErr.Message)
	assert.Equal(t, map[string][]string{"email": {"already taken"}}, authErr.Fields)
	assert.Equal(t, PhaseAnonymous, state.Phase)
	assert.False(t, state.IsLoading)
}

func TestRegister_GenericFailureMessage(t *testing.T) {
	accts := &fakeAccounts{
		register: func(context.Context, api.RegisterCredentials) (*api.AuthResponse, error) {
			return &api.AuthResponse{}, nil
		},
	}
	m, _ := newTestManager(t, accts, tokenstore.NewMemoryStore())
	m.Restore(t.Context())

	_, err := m.Register(t.Context(), api.RegisterCredentials{
		Username: "alice", Email: "a@b.com", Password: "password123", PasswordConfirm: "password123",
	})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, MsgRegistrationFailed, authErr.Message)
	assert.ErrorIs(t, err, api.ErrEmptyResponse)
}

func TestLogout_IsIdempotent(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	var notified []string
	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			return completeAuth(), nil
		},
		logout: func(_ context.Context, refresh string) error {
			notified = append(notified, refresh)
			return nil
		},
	}
	m, _ := newTestManager(t, accts, store)
	m.Restore(t.Context())
	authenticate(t, m)

	m.Logout(t.Context())
	first := m.State()
	m.Logout(t.Context())

	assert.Equal(t, PhaseAnonymous, first.Phase)
	assert.Equal(t, first, m.State())
	assert.Equal(t, []string{"refresh-1"}, notified, "backend told once")

	_, err := store.Load(t.Context())
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
	_, ok := m.AccessToken()
	assert.False(t, ok)
}

func TestLogout_BackendFailureIsSwallowed(t *testing.T) {
	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			return completeAuth(), nil
		},
		logout: func(context.Context, string) error {
			return &transport.NetworkError{Method: "POST", Path: "/accounts/logout/", Err: errors.New("down")}
		},
	}
	m, ch := newTestManager(t, accts, tokenstore.NewMemoryStore())
	m.Restore(t.Context())
	authenticate(t, m)

	m.Logout(t.Context())
	assert.Equal(t, PhaseAnonymous, m.State().Phase)

	kinds := drain(ch)
	assert.Contains(t, kinds, events.LoggedOut)
	assert.Contains(t, kinds, events.LogoutNotifyFailed)
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	accts := &fakeAccounts{}
	m, _ := newTestManager(t, accts, tokenstore.NewMemoryStore())
	m.Restore(t.Context())

	err := m.Refresh(t.Context())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Zero(t, accts.Calls("refresh"))
	assert.Equal(t, PhaseAnonymous, m.State().Phase)
}

func TestRefresh_ReplacesOnlyAccess(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			return completeAuth(), nil
		},
		refresh: func(_ context.Context, refresh string) (string, error) {
			assert.Equal(t, "refresh-1", refresh)
			return "access-2", nil
		},
	}
	m, _ := newTestManager(t, accts, store)
	m.Restore(t.Context())
	authenticate(t, m)

	require.NoError(t, m.Refresh(t.Context()))
	state := m.State()
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	assert.Equal(t, tokenstore.Tokens{Access: "access-2", Refresh: "refresh-1"}, state.Tokens)
	assert.Equal(t, alice, state.User)

	stored, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "access-2", stored.Access)
}

func TestRefresh_FailureEndsSession(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			return completeAuth(), nil
		},
		refresh: func(context.Context, string) (string, error) {
			return "", &transport.APIError{Status: http.StatusUnauthorized, Message: "Token is blacklisted"}
		},
	}
	m, ch := newTestManager(t, accts, store)
	m.Restore(t.Context())
	authenticate(t, m)

	err := m.Refresh(t.Context())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, PhaseAnonymous, m.State().Phase)

	_, loadErr := store.Load(t.Context())
	assert.ErrorIs(t, loadErr, tokenstore.ErrNotFound)
	assert.Contains(t, drain(ch), events.TokenRefreshFailed)
}

func TestRefresh_ConcurrentCallsShareOneExchange(t *testing.T) {
	release := make(chan struct{})
	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			return completeAuth(), nil
		},
		refresh: func(context.Context, string) (string, error) {
			<-release
			return "access-2", nil
		},
	}
	m, _ := newTestManager(t, accts, tokenstore.NewMemoryStore())
	m.Restore(t.Context())
	authenticate(t, m)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.HandleUnauthorized(t.Context())
		}()
	}

	require.Eventually(t, func() bool { return accts.Calls("refresh") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, accts.Calls("refresh"))
}

func TestRefresh_LogoutDuringExchangeWins(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	started := make(chan struct{})
	release := make(chan struct{})
	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			return completeAuth(), nil
		},
		refresh: func(context.Context, string) (string, error) {
			close(started)
			<-release
			return "access-2", nil
		},
		logout: func(context.Context, string) error { return nil },
	}
	m, ch := newTestManager(t, accts, store)
	m.Restore(t.Context())
	authenticate(t, m)

	errs := make(chan error, 1)
	go func() { errs <- m.HandleUnauthorized(t.Context()) }()
	<-started

	m.Logout(t.Context())
	close(release)

	require.ErrorIs(t, <-errs, ErrSessionChanged)
	state := m.State()
	assert.Equal(t, PhaseAnonymous, state.Phase)
	assert.False(t, state.IsAuthenticated)
	assert.Empty(t, state.Tokens)

	_, err := store.Load(t.Context())
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
	assert.NotContains(t, drain(ch), events.TokenRefreshed)
}

func TestRefresh_LoginDuringExchangeWins(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	bob := &api.User{ID: 2, Username: "bob", Email: "bob@b.com"}
	bobTokens := tokenstore.Tokens{Access: "access-b", Refresh: "refresh-b"}

	var logins atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			if logins.Add(1) == 1 {
				return completeAuth(), nil
			}
			return &api.AuthResponse{User: bob, Access: bobTokens.Access, Refresh: bobTokens.Refresh}, nil
		},
		refresh: func(context.Context, string) (string, error) {
			close(started)
			<-release
			return "", &transport.APIError{Status: http.StatusUnauthorized, Message: "Token is blacklisted"}
		},
	}
	m, _ := newTestManager(t, accts, store)
	m.Restore(t.Context())
	authenticate(t, m)

	errs := make(chan error, 1)
	go func() { errs <- m.Refresh(t.Context()) }()
	<-started

	authenticate(t, m)
	close(release)

	require.ErrorIs(t, <-errs, ErrSessionChanged)
	state := m.State()
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	assert.Equal(t, bob, state.User)
	assert.Equal(t, bobTokens, state.Tokens)

	stored, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, bobTokens, stored)
}

func TestHandleUnauthorized_IgnoredWhenAnonymous(t *testing.T) {
	accts := &fakeAccounts{}
	m, _ := newTestManager(t, accts, tokenstore.NewMemoryStore())
	m.Restore(t.Context())

	assert.NoError(t, m.HandleUnauthorized(t.Context()))
	assert.Zero(t, accts.Calls("refresh"))
}

func TestPersistRestoreRoundTrip(t *testing.T) {
	path := t.TempDir() + "/auth_tokens.json"
	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			return completeAuth(), nil
		},
		me: func(_ context.Context, token string) (*api.User, error) {
			if token != "access-1" {
				return nil, &transport.APIError{Status: http.StatusUnauthorized}
			}
			return alice, nil
		},
	}

	first, _ := newTestManager(t, accts, tokenstore.NewFileStore(path))
	first.Restore(t.Context())
	authenticate(t, first)

	second, _ := newTestManager(t, accts, tokenstore.NewFileStore(path))
	state := second.Restore(t.Context())
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	assert.Equal(t, first.State().Tokens, state.Tokens)
	assert.Equal(t, alice, state.User)
}

func TestAccessExpiry(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-only-secret"))
	require.NoError(t, err)

	accts := &fakeAccounts{
		login: func(context.Context, api.LoginCredentials) (*api.AuthResponse, error) {
			return &api.AuthResponse{User: alice, Access: signed, Refresh: "r"}, nil
		},
	}
	m, _ := newTestManager(t, accts, tokenstore.NewMemoryStore())
	m.Restore(t.Context())

	_, err = m.AccessExpiry()
	assert.ErrorIs(t, err, ErrNoExpiry)

	authenticate(t, m)
	got, err := m.AccessExpiry()
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))
}
