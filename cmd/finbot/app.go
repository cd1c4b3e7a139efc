// ABOUTME: Wires configuration, logging, persistence, and the client services
// ABOUTME: One app value per command invocation, closed before exit

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/chat"
	"github.com/2389/finbot-client/internal/config"
	"github.com/2389/finbot-client/internal/events"
	"github.com/2389/finbot-client/internal/logging"
	"github.com/2389/finbot-client/internal/notify"
	"github.com/2389/finbot-client/internal/render"
	"github.com/2389/finbot-client/internal/session"
	"github.com/2389/finbot-client/internal/tokenstore"
	"github.com/2389/finbot-client/internal/transport"
)

var errNotLoggedIn = errors.New("not logged in; run `finbot login` first")

type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store    tokenstore.Store
	gw       *transport.Gateway
	client   *api.Client
	bus      *events.Bus
	notifier *notify.Notifier
	session  *session.Manager
	chat     *chat.Orchestrator
	render   *render.Renderer

	notifyDone <-chan struct{}
	followDone <-chan struct{}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadOrDefault(config.DefaultPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := logging.Setup(cfg.Logging, os.Stderr)

	store, err := tokenstore.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	gw := transport.NewGateway(cfg.API.BaseURL, transport.WithLogger(logger))
	client := api.NewClient(gw)
	bus := events.NewBus(logger)

	mgr := session.NewManager(client, store,
		session.WithBus(bus),
		session.WithLogger(logger),
		session.WithLoginTimeout(cfg.Auth.LoginTimeout),
		session.WithLogoutTimeout(cfg.Auth.LogoutTimeout),
	)
	gw.SetUnauthorizedHandler(mgr)

	orch := chat.NewOrchestrator(client, mgr,
		chat.WithBus(bus),
		chat.WithLogger(logger),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		gw:       gw,
		client:   client,
		bus:      bus,
		notifier: notify.New(os.Stdout, cfg.Notify.DedupeWindow, notify.WithLogger(logger)),
		session:  mgr,
		chat:     orch,
		render:   render.New(),
	}
	// Both subscriptions outlive a signal so Close can drain them.
	a.notifyDone = a.notifier.Start(context.WithoutCancel(ctx), bus)
	a.followDone = orch.FollowSession(context.WithoutCancel(ctx), bus)

	logger.Debug("client initialized",
		"api", gw.BaseURL(),
		"storage", cfg.Storage.Backend,
	)
	return a, nil
}

// Close waits for background work, flushes pending toasts and releases the
// token store.
func (a *app) Close() {
	a.chat.Wait()
	a.bus.Close()
	<-a.notifyDone
	<-a.followDone
	a.notifier.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing token store", "error", err)
	}
}

// restore loads the saved session and fails when nobody is logged in.
func (a *app) restore(ctx context.Context) (session.State, error) {
	state := a.session.Restore(ctx)
	if !state.IsAuthenticated {
		return state, errNotLoggedIn
	}
	return state, nil
}
