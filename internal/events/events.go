// ABOUTME: Domain event kinds and payload emitted by the session and chat services
// ABOUTME: Kinds are grouped by source so subscribers can filter by prefix

package events

import (
	"strings"
	"time"
)

// Kind identifies an event.
type Kind string

// Session events.
const (
	SessionRestored    Kind = "session.restored"
	SessionAnonymous   Kind = "session.anonymous"
	LoginSucceeded     Kind = "session.login_succeeded"
	LoginFailed        Kind = "session.login_failed"
	RegisterSucceeded  Kind = "session.register_succeeded"
	RegisterFailed     Kind = "session.register_failed"
	TokenRefreshed     Kind = "session.token_refreshed"
	TokenRefreshFailed Kind = "session.token_refresh_failed"
	LoggedOut          Kind = "session.logged_out"
	LogoutNotifyFailed Kind = "session.logout_notify_failed"
	SessionStoreFailed Kind = "session.store_failed"
	ValidationFailed   Kind = "session.validation_failed"
)

// Chat events.
const (
	ConversationsLoaded      Kind = "chat.conversations_loaded"
	ConversationsLoadFailed  Kind = "chat.conversations_load_failed"
	ConversationCreated      Kind = "chat.conversation_created"
	ConversationCreateFailed Kind = "chat.conversation_create_failed"
	ConversationUpdated      Kind = "chat.conversation_updated"
	ConversationUpdateFailed Kind = "chat.conversation_update_failed"
	MessagesLoaded           Kind = "chat.messages_loaded"
	MessagesLoadFailed       Kind = "chat.messages_load_failed"
	MessageSent              Kind = "chat.message_sent"
	MessageSendFailed        Kind = "chat.message_send_failed"
	DeleteRequested          Kind = "chat.delete_requested"
	ConversationDeleted      Kind = "chat.conversation_deleted"
	ConversationDeleteFailed Kind = "chat.conversation_delete_failed"
)

// Event is one state-machine occurrence.
type Event struct {
	Kind    Kind
	Time    time.Time
	Message string
	Err     error
	// ConversationID is set for chat events tied to one conversation.
	ConversationID int64
}

// Source returns the part of Kind before the dot ("session", "chat").
func (e Event) Source() string {
	src, _, _ := strings.Cut(string(e.Kind), ".")
	return src
}

// Failed reports whether the event carries an error.
func (e Event) Failed() bool {
	return e.Err != nil
}
