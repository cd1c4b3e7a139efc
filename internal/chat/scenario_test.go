// ABOUTME: End-to-end chat scenarios over the real API client and an httptest backend
// ABOUTME: Lazy conversation creation, failed deletion, and session loss on a 401

package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/session"
	"github.com/2389/finbot-client/internal/tokenstore"
	"github.com/2389/finbot-client/internal/transport"
)

func startBackend(t *testing.T, mux *http.ServeMux) (*transport.Gateway, *api.Client) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	gw := transport.NewGateway(srv.URL + "/api/v1")
	return gw, api.NewClient(gw)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestScenario_FirstMessageCreatesTitledConversation(t *testing.T) {
	var (
		mu        sync.Mutex
		titles    []string
		postedTo  []string
		contents  []string
		listCalls atomic.Int32
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat/conversations/{$}", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Title string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		titles = append(titles, body.Title)
		mu.Unlock()
		writeJSON(w, http.StatusCreated, `{"success":true,"data":{"id":41,"title":"`+body.Title+`","message_count":0,"created_at":"2026-01-02T03:04:05Z"}}`)
	})
	mux.HandleFunc("POST /api/v1/chat/conversations/{id}/messages/create/", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Content string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		postedTo = append(postedTo, r.PathValue("id"))
		contents = append(contents, body.Content)
		mu.Unlock()
		writeJSON(w, http.StatusCreated, `{"data":{"assistant_message":{"id":7,"message_type":"assistant","content":"AAPL outlook...","created_at":"2026-01-02T03:04:06Z","metadata":{"stock_symbols":["AAPL"]}}}}`)
	})
	mux.HandleFunc("GET /api/v1/chat/conversations/list/", func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		writeJSON(w, http.StatusOK, `{"data":[{"id":41,"title":"t","message_count":2}]}`)
	})
	_, client := startBackend(t, mux)
	o := NewOrchestrator(client, staticTokens{token: "tok"})

	content := "Analyze AAPL long-term growth prospects given upcoming earnings season and macro headwinds"
	reply, err := o.SendMessage(t.Context(), content)
	require.NoError(t, err)
	o.Wait()

	require.NotNil(t, reply)
	assert.Equal(t, "7", reply.ID)
	assert.Equal(t, []string{"AAPL"}, reply.Metadata.StockSymbols)

	mu.Lock()
	assert.Equal(t, []string{"Analyze AAPL long-term growth prospects given upco..."}, titles)
	assert.Equal(t, []string{"41"}, postedTo)
	assert.Equal(t, []string{content}, contents)
	mu.Unlock()

	s := o.Snapshot()
	require.NotNil(t, s.ActiveID)
	assert.Equal(t, int64(41), *s.ActiveID)
	assert.Equal(t, int32(1), listCalls.Load())
	require.Len(t, s.Conversations, 1)
	assert.Equal(t, 2, s.Conversations[0].MessageCount)
}

func TestScenario_DeleteServerErrorLeavesListAndPrompt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/chat/conversations/list/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":[{"id":1,"title":"Tesla margins"},{"id":2,"title":"Rates"}]}`)
	})
	mux.HandleFunc("DELETE /api/v1/chat/conversations/{id}/delete/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `<html>oops</html>`)
	})
	_, client := startBackend(t, mux)
	o := NewOrchestrator(client, staticTokens{token: "tok"})
	require.NoError(t, o.ListConversations(t.Context()))
	before := o.Snapshot().Conversations

	require.NoError(t, o.RequestDelete(1))
	err := o.ConfirmDelete(t.Context())
	require.Error(t, err)

	s := o.Snapshot()
	assert.Equal(t, before, s.Conversations)
	require.NotNil(t, s.PendingDelete)
	assert.Equal(t, DeleteIntent{ID: 1, Title: "Tesla margins"}, *s.PendingDelete)
	assert.Equal(t, transport.DefaultErrorMessage, s.DeleteErr)
}

func TestScenario_UnauthorizedListEndsSessionWhenRefreshFails(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"user":{"id":1,"username":"alice"},"access":"expired-access","refresh":"revoked-refresh"}`)
	})
	mux.HandleFunc("GET /api/v1/chat/conversations/list/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Given token not valid for any token type"}`)
	})
	mux.HandleFunc("POST /api/v1/accounts/refresh-token/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Token is blacklisted"}`)
	})
	gw, client := startBackend(t, mux)

	store := tokenstore.NewMemoryStore()
	sessions := session.NewManager(client, store)
	gw.SetUnauthorizedHandler(sessions)
	sessions.Restore(t.Context())
	_, err := sessions.Login(t.Context(), api.LoginCredentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)

	o := NewOrchestrator(client, sessions)
	err = o.ListConversations(t.Context())
	assert.True(t, transport.IsUnauthorized(err))

	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, session.PhaseAnonymous, sessions.State().Phase)
	_, loadErr := store.Load(t.Context())
	assert.ErrorIs(t, loadErr, tokenstore.ErrNotFound)

	assert.ErrorIs(t, o.ListConversations(t.Context()), ErrNotAuthenticated)
}
