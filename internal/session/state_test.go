// ABOUTME: Table tests for the session reducer
// ABOUTME: Checks every action from representative starting states

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/tokenstore"
)

func TestReduce(t *testing.T) {
	alice := &api.User{ID: 1, Username: "alice"}
	pair := tokenstore.Tokens{Access: "a1", Refresh: "r1"}
	authed := State{Phase: PhaseAuthenticated, User: alice, Tokens: pair, IsAuthenticated: true}

	tests := []struct {
		name   string
		start  State
		action Action
		want   State
	}{
		{
			name:   "auth start sets loading",
			start:  State{Phase: PhaseAnonymous},
			action: AuthStart{},
			want:   State{Phase: PhaseAuthenticating, IsLoading: true},
		},
		{
			name:   "auth success installs user and tokens",
			start:  InitialState(),
			action: AuthSuccess{User: alice, Tokens: pair},
			want:   authed,
		},
		{
			name:   "auth failure clears everything",
			start:  authed,
			action: AuthFailure{},
			want:   State{Phase: PhaseAnonymous},
		},
		{
			name:   "refresh start keeps user and tokens",
			start:  authed,
			action: RefreshStart{},
			want:   State{Phase: PhaseRefreshing, User: alice, Tokens: pair, IsAuthenticated: true},
		},
		{
			name:   "token refresh keeps user",
			start:  State{Phase: PhaseRefreshing, User: alice, Tokens: pair, IsAuthenticated: true},
			action: TokenRefresh{Tokens: tokenstore.Tokens{Access: "a2", Refresh: "r1"}},
			want: State{
				Phase:           PhaseAuthenticated,
				User:            alice,
				Tokens:          tokenstore.Tokens{Access: "a2", Refresh: "r1"},
				IsAuthenticated: true,
			},
		},
		{
			name:   "token refresh after logout is ignored",
			start:  State{Phase: PhaseAnonymous},
			action: TokenRefresh{Tokens: tokenstore.Tokens{Access: "a2", Refresh: "r1"}},
			want:   State{Phase: PhaseAnonymous},
		},
		{
			name:   "token refresh during authentication is ignored",
			start:  State{Phase: PhaseAuthenticating, IsLoading: true},
			action: TokenRefresh{Tokens: tokenstore.Tokens{Access: "a2", Refresh: "r1"}},
			want:   State{Phase: PhaseAuthenticating, IsLoading: true},
		},
		{
			name:   "logout collapses to anonymous",
			start:  authed,
			action: Logout{},
			want:   State{Phase: PhaseAnonymous},
		},
		{
			name:   "logout when anonymous is a no-op",
			start:  State{Phase: PhaseAnonymous},
			action: Logout{},
			want:   State{Phase: PhaseAnonymous},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.start, tt.action))
		})
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	start := State{Phase: PhaseAuthenticated, Tokens: tokenstore.Tokens{Access: "a", Refresh: "r"}, IsAuthenticated: true}
	_ = Reduce(start, Logout{})
	assert.Equal(t, PhaseAuthenticated, start.Phase)
	assert.Equal(t, "a", start.Tokens.Access)
}

func TestInitialState(t *testing.T) {
	s := InitialState()
	assert.Equal(t, PhaseAuthenticating, s.Phase)
	assert.True(t, s.IsLoading)
	assert.False(t, s.IsAuthenticated)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "anonymous", PhaseAnonymous.String())
	assert.Equal(t, "refreshing", PhaseRefreshing.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
