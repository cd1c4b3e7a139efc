// ABOUTME: Conversation orchestrator commands: list, create, select, send, delete, update
// ABOUTME: Runs backend calls with the session's access token and reduces results into State

package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/events"
)

// LocalIDPrefix starts every provisional entry id.
const LocalIDPrefix = "local-"

// TokenSource yields the current access token. *session.Manager implements it.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Backend is the chat API surface. *api.Client implements it.
type Backend interface {
	ListConversations(ctx context.Context, token string) ([]api.Conversation, error)
	CreateConversation(ctx context.Context, token, title string) (*api.Conversation, error)
	UpdateConversation(ctx context.Context, token string, id int64, upd api.ConversationUpdate) (*api.Conversation, error)
	DeleteConversation(ctx context.Context, token string, id int64) error
	GetConversation(ctx context.Context, token string, id int64) (*api.ConversationDetail, error)
	ListMessages(ctx context.Context, token string, id int64) ([]api.Message, error)
	CreateMessage(ctx context.Context, token string, id int64, content string) (*api.Message, error)
}

// Orchestrator owns the chat state.
type Orchestrator struct {
	backend Backend
	tokens  TokenSource
	bus     *events.Bus
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
	// selection increments whenever the active conversation changes so that
	// message loads for an older selection are dropped.
	selection uint64

	sending    atomic.Bool
	background sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus publishes chat events on b.
func WithBus(b *events.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the timestamp source for provisional entries.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator creates an orchestrator on the welcome screen.
func NewOrchestrator(backend Backend, tokens TokenSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		tokens:  tokens,
		logger:  slog.Default(),
		now:     time.Now,
		state:   InitialState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "chat")
	return o
}

// Snapshot returns the current state. Slices are shared with the
// orchestrator and must be treated as read-only.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Wait blocks until background list refreshes started by sends finish.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) dispatch(a Action) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = o.reduceLocked(a)
	return o.state
}

func (o *Orchestrator) reduceLocked(a Action) State {
	before := o.state.ActiveID
	next := Reduce(o.state, a)
	if !sameID(before, next.ActiveID) {
		o.selection++
	}
	return next
}

// dispatchIf applies a only while the selection generation is still gen.
func (o *Orchestrator) dispatchIf(gen uint64, a Action) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.selection != gen {
		return false
	}
	o.state = o.reduceLocked(a)
	return true
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (o *Orchestrator) token() (string, error) {
	tok, ok := o.tokens.AccessToken()
	if !ok {
		return "", ErrNotAuthenticated
	}
	return tok, nil
}

func (o *Orchestrator) publish(kind events.Kind, convID int64, msg string, err error) {
	o.bus.Publish(events.Event{Kind: kind, ConversationID: convID, Message: msg, Err: err})
}

// Reset returns to the initial state. Used when the session ends.
func (o *Orchestrator) Reset() {
	o.dispatch(Reset{})
}

// ListConversations replaces the conversation list. On failure the previous
// list stays and ConversationsErr is set; calling again retries.
func (o *Orchestrator) ListConversations(ctx context.Context) error {
	tok, err := o.token()
	if err != nil {
		return err
	}

	o.dispatch(ConversationsRequested{})
	convs, err := o.backend.ListConversations(ctx, tok)
	if err != nil {
		msg := describe(err, MsgLoadConversationsFailed)
		o.logger.Warn("loading conversations", "error", err)
		o.dispatch(ConversationsFailed{Err: msg})
		o.publish(events.ConversationsLoadFailed, 0, msg, err)
		return err
	}

	o.dispatch(ConversationsLoaded{Conversations: convs})
	o.logger.Debug("conversations loaded", "count", len(convs))
	o.publish(events.ConversationsLoaded, 0, "", nil)
	return nil
}

// CreateConversation creates a conversation and prepends it to the list.
func (o *Orchestrator) CreateConversation(ctx context.Context, title string) (*api.Conversation, error) {
	tok, err := o.token()
	if err != nil {
		return nil, err
	}

	conv, err := o.backend.CreateConversation(ctx, tok, title)
	if err != nil {
		o.logger.Warn("creating conversation", "title", title, "error", err)
		o.publish(events.ConversationCreateFailed, 0, describe(err, MsgCreateConversationFailed), err)
		return nil, err
	}

	o.dispatch(ConversationAdded{Conversation: *conv})
	o.logger.Info("conversation created", "conversation_id", conv.ID)
	o.publish(events.ConversationCreated, conv.ID, "", nil)
	return conv, nil
}

// SelectConversation opens id and loads its messages. Selecting the active
// conversation again reloads it.
func (o *Orchestrator) SelectConversation(ctx context.Context, id int64) error {
	tok, err := o.token()
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.state = o.reduceLocked(Selected{ID: id})
	o.selection++
	gen := o.selection
	o.mu.Unlock()

	msgs, err := o.backend.ListMessages(ctx, tok, id)
	if err != nil {
		msg := describe(err, MsgLoadMessagesFailed)
		if o.dispatchIf(gen, MessagesFailed{ID: id, Err: msg}) {
			o.logger.Warn("loading messages", "conversation_id", id, "error", err)
			o.publish(events.MessagesLoadFailed, id, msg, err)
		}
		return err
	}

	if !o.dispatchIf(gen, MessagesLoaded{ID: id, Messages: msgs}) {
		o.logger.Debug("discarding stale message load", "conversation_id", id)
		return nil
	}
	o.publish(events.MessagesLoaded, id, "", nil)
	return nil
}

// NewChat closes the active conversation and shows the welcome screen.
func (o *Orchestrator) NewChat() {
	o.dispatch(NewChat{})
}

// SendMessage shows content as a provisional entry, creates a conversation
// if none is active, and posts the message. The assistant reply is returned
// when the backend produced one. A conversation list refresh always follows
// in the background.
func (o *Orchestrator) SendMessage(ctx context.Context, content string) (*api.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	tok, err := o.token()
	if err != nil {
		return nil, err
	}
	if !o.sending.CompareAndSwap(false, true) {
		return nil, ErrSendInProgress
	}
	defer o.sending.Store(false)

	localID := LocalIDPrefix + uuid.NewString()
	o.dispatch(EntryAppended{Entry: Entry{
		Message: api.Message{
			ID:        localID,
			Role:      api.RoleUser,
			Content:   content,
			Timestamp: o.now(),
		},
		LocalID: localID,
		Status:  StatusPending,
	}})

	return o.deliver(ctx, tok, localID, content)
}

// RetryFailed re-sends a failed provisional entry in place.
func (o *Orchestrator) RetryFailed(ctx context.Context, localID string) (*api.Message, error) {
	tok, err := o.token()
	if err != nil {
		return nil, err
	}
	entry, ok := o.Snapshot().Entry(localID)
	if !ok || entry.Status != StatusFailed {
		return nil, ErrUnknownEntry
	}
	if !o.sending.CompareAndSwap(false, true) {
		return nil, ErrSendInProgress
	}
	defer o.sending.Store(false)

	o.dispatch(EntryRetried{LocalID: localID})
	return o.deliver(ctx, tok, localID, entry.Content)
}

// DiscardFailed removes a failed provisional entry.
func (o *Orchestrator) DiscardFailed(localID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.state.Entry(localID)
	if !ok || entry.Status != StatusFailed {
		return ErrUnknownEntry
	}
	o.state = o.reduceLocked(EntryDiscarded{LocalID: localID})
	return nil
}

func (o *Orchestrator) deliver(ctx context.Context, tok, localID, content string) (*api.Message, error) {
	defer o.refreshInBackground(ctx)

	var convID int64
	if active := o.Snapshot().ActiveID; active != nil {
		convID = *active
	} else {
		conv, err := o.CreateConversation(ctx, Title(content))
		if err != nil {
			return nil, o.failSend(localID, 0, describe(err, MsgCreateConversationFailed), err)
		}
		convID = conv.ID
		o.dispatch(ConversationBound{ID: conv.ID, LocalID: localID})
	}

	reply, err := o.backend.CreateMessage(ctx, tok, convID, content)
	if err != nil {
		return nil, o.failSend(localID, convID, describe(err, MsgSendFailed), err)
	}

	o.dispatch(EntrySent{LocalID: localID})
	if reply != nil {
		o.dispatch(ReplyReceived{ConversationID: convID, Message: *reply})
	}
	o.dispatch(SendFinished{})

	o.logger.Debug("message sent", "conversation_id", convID, "reply", reply != nil)
	o.publish(events.MessageSent, convID, "", nil)
	return reply, nil
}

func (o *Orchestrator) failSend(localID string, convID int64, msg string, err error) error {
	o.dispatch(EntryFailed{LocalID: localID, Err: msg})
	o.dispatch(SendFinished{})
	o.logger.Warn("sending message", "conversation_id", convID, "error", err)
	o.publish(events.MessageSendFailed, convID, msg, err)
	return err
}

func (o *Orchestrator) refreshInBackground(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		if err := o.ListConversations(ctx); err != nil && !errors.Is(err, ErrNotAuthenticated) {
			o.logger.Debug("background conversation refresh failed", "error", err)
		}
	}()
}

// RequestDelete opens the confirmation for id. Nothing is sent to the
// backend until ConfirmDelete.
func (o *Orchestrator) RequestDelete(id int64) error {
	o.mu.Lock()
	conv, ok := o.state.Conversation(id)
	if !ok {
		o.mu.Unlock()
		return ErrUnknownConversation
	}
	o.state = o.reduceLocked(DeleteRequested{Intent: DeleteIntent{ID: id, Title: conv.Title}})
	o.mu.Unlock()

	o.publish(events.DeleteRequested, id, conv.Title, nil)
	return nil
}

// ConfirmDelete deletes the pending conversation. Only a successful response
// closes the prompt and removes the conversation; on failure the prompt stays
// open with DeleteErr set and the list is untouched.
func (o *Orchestrator) ConfirmDelete(ctx context.Context) error {
	tok, err := o.token()
	if err != nil {
		return err
	}

	o.mu.Lock()
	intent := o.state.PendingDelete
	switch {
	case intent == nil:
		o.mu.Unlock()
		return ErrNoPendingDelete
	case o.state.Deleting:
		o.mu.Unlock()
		return ErrDeleteInProgress
	}
	target := *intent
	o.state = o.reduceLocked(DeleteStarted{})
	o.mu.Unlock()

	if err := o.backend.DeleteConversation(ctx, tok, target.ID); err != nil {
		msg := describe(err, MsgDeleteFailed)
		o.logger.Warn("deleting conversation", "conversation_id", target.ID, "error", err)
		o.dispatch(DeleteFailed{Err: msg})
		o.publish(events.ConversationDeleteFailed, target.ID, msg, err)
		return err
	}

	o.dispatch(DeleteSucceeded{ID: target.ID})
	o.logger.Info("conversation deleted", "conversation_id", target.ID)
	o.publish(events.ConversationDeleted, target.ID, "Conversation deleted", nil)

	if err := o.ListConversations(ctx); err != nil {
		o.logger.Debug("refreshing after delete", "error", err)
	}
	return nil
}

// CancelDelete closes the confirmation prompt.
func (o *Orchestrator) CancelDelete() {
	o.dispatch(DeleteCancelled{})
}

// UpdateConversation renames and/or archives a conversation and replaces
// its list entry.
func (o *Orchestrator) UpdateConversation(ctx context.Context, id int64, upd api.ConversationUpdate) (*api.Conversation, error) {
	tok, err := o.token()
	if err != nil {
		return nil, err
	}

	conv, err := o.backend.UpdateConversation(ctx, tok, id, upd)
	if err != nil {
		msg := describe(err, MsgUpdateFailed)
		o.logger.Warn("updating conversation", "conversation_id", id, "error", err)
		o.publish(events.ConversationUpdateFailed, id, msg, err)
		return nil, err
	}

	o.dispatch(ConversationReplaced{Conversation: *conv})
	o.publish(events.ConversationUpdated, id, "", nil)
	return conv, nil
}

// ConversationDetail fetches a conversation with its messages without
// changing the active conversation.
func (o *Orchestrator) ConversationDetail(ctx context.Context, id int64) (*api.ConversationDetail, error) {
	tok, err := o.token()
	if err != nil {
		return nil, err
	}
	return o.backend.GetConversation(ctx, tok, id)
}

// FollowSession subscribes to session events before returning and resets the
// chat state whenever the session ends. The returned channel closes when ctx
// ends or the bus closes.
func (o *Orchestrator) FollowSession(ctx context.Context, bus *events.Bus) <-chan struct{} {
	ch, _ := bus.Subscribe(ctx, "session")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			switch e.Kind {
			case events.LoggedOut, events.TokenRefreshFailed:
				o.logger.Debug("session ended, clearing chat state", "kind", e.Kind)
				o.Reset()
			}
		}
	}()
	return done
}
