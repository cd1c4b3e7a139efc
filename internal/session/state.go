// ABOUTME: Session state, auth phases, and the pure reducer over session actions
// ABOUTME: Every session mutation in the client is one Reduce application

package session

import (
	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/tokenstore"
)

// Phase is the coarse authentication phase.
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseRefreshing
	// PhaseLoggedOut is never stored; Reduce collapses it to PhaseAnonymous.
	PhaseLoggedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session.
type State struct {
	Phase           Phase
	User            *api.User
	Tokens          tokenstore.Tokens
	IsAuthenticated bool
	IsLoading       bool
}

// InitialState is the state before Restore has run.
func InitialState() State {
	return State{Phase: PhaseAuthenticating, IsLoading: true}
}

// Action is one of AuthStart, AuthSuccess, AuthFailure, RefreshStart,
// TokenRefresh or Logout.
type Action interface {
	sessionAction()
}

// AuthStart marks a credential exchange in progress.
type AuthStart struct{}

// AuthSuccess installs a user and token pair.
type AuthSuccess struct {
	User   *api.User
	Tokens tokenstore.Tokens
}

// AuthFailure drops user and tokens.
type AuthFailure struct{}

// RefreshStart marks an access-token refresh in progress.
type RefreshStart struct{}

// TokenRefresh installs a refreshed token pair, keeping the user. It is
// ignored unless the session is Refreshing or Authenticated.
type TokenRefresh struct {
	Tokens tokenstore.Tokens
}

// Logout ends the session.
type Logout struct{}

func (AuthStart) sessionAction()    {}
func (AuthSuccess) sessionAction()  {}
func (AuthFailure) sessionAction()  {}
func (RefreshStart) sessionAction() {}
func (TokenRefresh) sessionAction() {}
func (Logout) sessionAction()       {}

// Reduce returns the state after applying a. Unknown actions return s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case AuthStart:
		s.Phase = PhaseAuthenticating
		s.IsLoading = true
	case AuthSuccess:
		s = State{
			Phase:           PhaseAuthenticated,
			User:            a.User,
			Tokens:          a.Tokens,
			IsAuthenticated: true,
		}
	case AuthFailure:
		s = anonymous()
	case RefreshStart:
		s.Phase = PhaseRefreshing
	case TokenRefresh:
		if s.Phase != PhaseRefreshing && s.Phase != PhaseAuthenticated {
			break
		}
		s.Phase = PhaseAuthenticated
		s.Tokens = a.Tokens
		s.IsAuthenticated = true
		s.IsLoading = false
	case Logout:
		s = anonymous()
		s.Phase = PhaseLoggedOut
	}
	if s.Phase == PhaseLoggedOut {
		s.Phase = PhaseAnonymous
	}
	return s
}

func anonymous() State {
	return State{Phase: PhaseAnonymous}
}
