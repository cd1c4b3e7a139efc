// ABOUTME: HTTP gateway that normalizes backend responses into values or typed errors
// ABOUTME: Attaches bearer tokens and reports 401s to a single unauthorized handler

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// UnauthorizedHandler is notified when a bearer-authenticated request is
// rejected with 401. The session manager implements it to run its refresh.
type UnauthorizedHandler interface {
	HandleUnauthorized(ctx context.Context) error
}

// Request describes a single backend call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Body   any
	Token  string

	// SkipUnauthorizedHook suppresses the 401 notification. Used by callers
	// that run their own refresh, such as session restore.
	SkipUnauthorizedHook bool
}

// Gateway performs backend calls against a fixed base URL.
type Gateway struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu             sync.RWMutex
	onUnauthorized UnauthorizedHandler
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway creates a gateway for baseURL (for example
// "http://localhost:8000/api/v1"). The default http.Client has no timeout.
func NewGateway(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "transport")
	return g
}

// BaseURL returns the normalized base URL.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// SetUnauthorizedHandler installs the 401 handler. Passing nil removes it.
func (g *Gateway) SetUnauthorizedHandler(h UnauthorizedHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onUnauthorized = h
}

func (g *Gateway) unauthorizedHandler() UnauthorizedHandler {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.onUnauthorized
}

// Do performs req and decodes a successful body into out (which may be nil).
// It returns *APIError for non-2xx responses and *NetworkError when no
// response was received.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil && method != http.MethodGet {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, g.baseURL+req.Path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Debug("request failed", "method", method, "path", req.Path, "error", err)
		return &NetworkError{Method: method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseErrorBody(resp.StatusCode, data, readErr)
		g.logger.Debug("request rejected",
			"method", method,
			"path", req.Path,
			"status", resp.StatusCode,
			"message", apiErr.Message,
		)
		if resp.StatusCode == http.StatusUnauthorized && req.Token != "" && !req.SkipUnauthorizedHook {
			g.notifyUnauthorized(ctx, req.Path)
		}
		return apiErr
	}

	if readErr != nil {
		// The status already says success; a truncated body must not turn it
		// into a failure.
		g.logger.Warn("reading response body", "path", req.Path, "error", readErr)
		return nil
	}
	g.decodeSuccessBody(resp.StatusCode, req.Path, data, out)
	return nil
}

func (g *Gateway) notifyUnauthorized(ctx context.Context, path string) {
	h := g.unauthorizedHandler()
	if h == nil {
		return
	}
	if err := h.HandleUnauthorized(ctx); err != nil {
		g.logger.Info("refresh after 401 failed", "path", path, "error", err)
	}
}

// parseErrorBody extracts message and errors from a non-2xx body. Both
// "message" and the framework default "detail" are accepted.
func parseErrorBody(status int, data []byte, readErr error) *APIError {
	apiErr := &APIError{Status: status, Message: DefaultErrorMessage}
	if readErr != nil || len(data) == 0 || !gjson.ValidBytes(data) {
		return apiErr
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return apiErr
	}
	if msg := parsed.Get("message"); msg.Type == gjson.String && msg.Str != "" {
		apiErr.Message = msg.Str
	} else if detail := parsed.Get("detail"); detail.Type == gjson.String && detail.Str != "" {
		apiErr.Message = detail.Str
	}
	if errs := parsed.Get("errors"); errs.Exists() && errs.Type != gjson.Null {
		apiErr.Errors = json.RawMessage(errs.Raw)
	}
	return apiErr
}

// decodeSuccessBody fills out from a 2xx body. 204, empty and undecodable
// bodies leave out untouched; decoding goes through a fresh value so a
// failure halfway through cannot leak partial data.
func (g *Gateway) decodeSuccessBody(status int, path string, data []byte, out any) {
	if out == nil || status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return
	}
	if !gjson.ValidBytes(data) {
		g.logger.Debug("ignoring non-JSON success body", "path", path)
		return
	}
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		g.logger.Warn("success body target is not a pointer", "path", path, "type", dst.Type().String())
		return
	}
	fresh := reflect.New(dst.Type().Elem())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		g.logger.Debug("ignoring undecodable success body", "path", path, "error", err)
		return
	}
	dst.Elem().Set(fresh.Elem())
}
