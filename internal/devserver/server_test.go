// ABOUTME: End-to-end tests of the dev server through the real client stack
// ABOUTME: Drives accounts, chat, refresh and revocation with an adjustable clock

package devserver

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/chat"
	"github.com/2389/finbot-client/internal/session"
	"github.com/2389/finbot-client/internal/tokenstore"
	"github.com/2389/finbot-client/internal/transport"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock  *testClock
	gw     *transport.Gateway
	client *api.Client
	url    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	store, err := OpenStore(filepath.Join(t.TempDir(), "dev.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := New(store, NewIssuer(testSecret, 5*time.Minute, 24*time.Hour, clock.Now), WithClock(clock.Now))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	gw := transport.NewGateway(ts.URL + APIPrefix)
	return &testEnv{clock: clock, gw: gw, client: api.NewClient(gw), url: ts.URL}
}

func (e *testEnv) register(t *testing.T, username string) *api.AuthResponse {
	t.Helper()
	resp, err := e.client.Register(t.Context(), api.RegisterCredentials{
		Username:        username,
		Email:           username + "@example.com",
		FirstName:       "Test",
		LastName:        "User",
		Password:        "password123",
		PasswordConfirm: "password123",
	})
	require.NoError(t, err)
	require.True(t, resp.Complete())
	return resp
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Accounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	reg := env.register(t, "alice")
	assert.Equal(t, "Test User", reg.User.FullName)

	_, err := env.client.Register(ctx, api.RegisterCredentials{
		Username: "alice2", Email: "alice@example.com", Password: "password123", PasswordConfirm: "password123",
	})
	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Registration failed", apiErr.Message)
	assert.Contains(t, apiErr.FieldErrors(), "email")

	login, err := env.client.Login(ctx, api.LoginCredentials{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	require.True(t, login.Complete())
	assert.Equal(t, reg.User.ID, login.User.ID)

	_, err = env.client.Login(ctx, api.LoginCredentials{Email: "alice@example.com", Password: "wrong-password"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, detailBadCredentials, apiErr.Message)

	_, err = env.client.Login(ctx, api.LoginCredentials{Email: "nobody@example.com", Password: "password123"})
	assert.True(t, transport.IsUnauthorized(err))

	me, err := env.client.Me(ctx, login.Access, api.MeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)

	_, err = env.client.Me(ctx, login.Refresh, api.MeOptions{})
	assert.True(t, transport.IsUnauthorized(err), "refresh tokens are not access tokens")

	access, err := env.client.RefreshToken(ctx, login.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, login.Access, access)

	require.NoError(t, env.client.Logout(ctx, login.Refresh))
	_, err = env.client.RefreshToken(ctx, login.Refresh)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, detailTokenRevoked, apiErr.Message)

	// The registration pair is still usable.
	_, err = env.client.RefreshToken(ctx, reg.Refresh)
	assert.NoError(t, err)
}

func TestServer_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.client.Register(t.Context(), api.RegisterCredentials{
		Username: "", Email: "not-an-email", Password: "short", PasswordConfirm: "different",
	})
	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	fields := apiErr.FieldErrors()
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "password_confirm")
}

func TestServer_Chat(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	tok := env.register(t, "alice").Access
	otherTok := env.register(t, "bob").Access

	conv, err := env.client.CreateConversation(ctx, tok, "AAPL outlook")
	require.NoError(t, err)
	assert.Equal(t, "AAPL outlook", conv.Title)

	reply, err := env.client.CreateMessage(ctx, tok, conv.ID, "What is the outlook for $AAPL?")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, api.RoleAssistant, reply.Role)
	require.NotNil(t, reply.Metadata)
	assert.Equal(t, []string{"AAPL"}, reply.Metadata.StockSymbols)

	msgs, err := env.client.ListMessages(ctx, tok, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, api.RoleUser, msgs[0].Role)
	assert.Equal(t, reply.ID, msgs[1].ID)

	detail, err := env.client.GetConversation(ctx, tok, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Conversation.MessageCount)
	assert.Len(t, detail.Messages, 2)

	title := "Apple"
	archived := true
	updated, err := env.client.UpdateConversation(ctx, tok, conv.ID, api.ConversationUpdate{Title: &title, Archived: &archived})
	require.NoError(t, err)
	assert.Equal(t, "Apple", updated.Title)
	assert.True(t, updated.Archived)

	_, err = env.client.GetConversation(ctx, otherTok, conv.ID)
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(err))
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(env.client.DeleteConversation(ctx, otherTok, conv.ID)))

	list, err := env.client.ListConversations(ctx, otherTok)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, env.client.DeleteConversation(ctx, tok, conv.ID))
	list, err = env.client.ListConversations(ctx, tok)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = env.client.CreateMessage(ctx, tok, conv.ID, "hello?")
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(err))
}

func TestServer_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.client.ListConversations(t.Context(), "")
	assert.True(t, transport.IsUnauthorized(err))
}

func TestServer_ClientSessionAndChat(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	store := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "auth_tokens.json"))
	mgr := session.NewManager(env.client, store)
	env.gw.SetUnauthorizedHandler(mgr)
	orch := chat.NewOrchestrator(env.client, mgr)

	mgr.Restore(ctx)
	state, err := mgr.Register(ctx, api.RegisterCredentials{
		Username:        "carol",
		Email:           "carol@example.com",
		Password:        "password123",
		PasswordConfirm: "password123",
	})
	require.NoError(t, err)
	require.True(t, state.IsAuthenticated)

	reply, err := orch.SendMessage(ctx, "How did MSFT trade today?")
	require.NoError(t, err)
	orch.Wait()
	require.NotNil(t, reply)
	assert.Equal(t, []string{"MSFT"}, reply.Metadata.StockSymbols)

	snap := orch.Snapshot()
	require.NotNil(t, snap.ActiveID)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "How did MSFT trade today?", snap.Conversations[0].Title)
	assert.Len(t, snap.Messages, 2)

	// Let the access token lapse: the first call fails and triggers one
	// refresh, the next call succeeds with the new token.
	before, _ := mgr.AccessToken()
	env.clock.Advance(10 * time.Minute)

	err = orch.ListConversations(ctx)
	assert.True(t, transport.IsUnauthorized(err))
	after, ok := mgr.AccessToken()
	require.True(t, ok)
	assert.NotEqual(t, before, after)

	require.NoError(t, orch.ListConversations(ctx))

	// A restarted client restores the persisted session.
	restarted := session.NewManager(env.client, store)
	restored := restarted.Restore(ctx)
	assert.True(t, restored.IsAuthenticated)
	require.NotNil(t, restored.User)
	assert.Equal(t, "carol", restored.User.Username)

	mgr.Logout(ctx)
	_, err = env.client.RefreshToken(ctx, restored.Tokens.Refresh)
	assert.True(t, transport.IsUnauthorized(err), "logout revokes the refresh token on the server")
}
