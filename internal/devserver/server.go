// ABOUTME: HTTP server implementing the finbot accounts and chat REST API
// ABOUTME: Routes on net/http patterns and shuts down gracefully on context cancel

package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// APIPrefix is the path prefix of every API route.
const APIPrefix = "/api/v1"

// Server serves the dev API.
type Server struct {
	store  *Store
	tokens *Issuer
	logger *slog.Logger
	now    func() time.Time
	mux    *http.ServeMux

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a server backed by store and tokens.
func New(store *Store, tokens *Issuer, opts ...Option) *Server {
	s := &Server{
		store:  store,
		tokens: tokens,
		logger: slog.Default(),
		now:    time.Now,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "devserver")
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST "+APIPrefix+"/accounts/login/", s.handleLogin)
	s.mux.HandleFunc("POST "+APIPrefix+"/accounts/register/", s.handleRegister)
	s.mux.HandleFunc("GET "+APIPrefix+"/accounts/me/", s.authenticated(s.handleMe))
	s.mux.HandleFunc("POST "+APIPrefix+"/accounts/refresh-token/", s.handleRefresh)
	s.mux.HandleFunc("POST "+APIPrefix+"/accounts/logout/", s.handleLogout)

	s.mux.HandleFunc("GET "+APIPrefix+"/chat/conversations/list/", s.authenticated(s.handleListConversations))
	s.mux.HandleFunc("POST "+APIPrefix+"/chat/conversations/{$}", s.authenticated(s.handleCreateConversation))
	s.mux.HandleFunc("GET "+APIPrefix+"/chat/conversations/{id}/{$}", s.authenticated(s.handleGetConversation))
	s.mux.HandleFunc("PATCH "+APIPrefix+"/chat/conversations/{id}/update/", s.authenticated(s.handleUpdateConversation))
	s.mux.HandleFunc("DELETE "+APIPrefix+"/chat/conversations/{id}/delete/", s.authenticated(s.handleDeleteConversation))
	s.mux.HandleFunc("GET "+APIPrefix+"/chat/conversations/{id}/messages/", s.authenticated(s.handleListMessages))
	s.mux.HandleFunc("POST "+APIPrefix+"/chat/conversations/{id}/messages/create/", s.authenticated(s.handleCreateMessage))
}

// Handler returns the server's HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Run listens on addr and serves until ctx is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	// The caller's context is already done; shut down on a fresh one.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.httpServer.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
