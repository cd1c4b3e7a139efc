// ABOUTME: Sentinel errors and user-facing fallback messages for chat commands
// ABOUTME: describe turns any command error into the text stored in State

package chat

import (
	"errors"

	"github.com/2389/finbot-client/internal/transport"
)

var (
	// ErrNotAuthenticated means no access token is available.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSendInProgress rejects a send while another is outstanding.
	ErrSendInProgress = errors.New("a message is already being sent")
	// ErrEmptyMessage rejects blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrUnknownConversation means the id is not in the conversation list.
	ErrUnknownConversation = errors.New("conversation not found")
	// ErrUnknownEntry means no failed entry has the given local id.
	ErrUnknownEntry = errors.New("no failed message with that id")
	// ErrNoPendingDelete means ConfirmDelete ran without RequestDelete.
	ErrNoPendingDelete = errors.New("no deletion to confirm")
	// ErrDeleteInProgress rejects a second confirmation while one is in flight.
	ErrDeleteInProgress = errors.New("deletion already in progress")
)

// Fallback messages shown when the backend gave none.
const (
	MsgLoadConversationsFailed  = "Failed to load conversations"
	MsgLoadMessagesFailed       = "Failed to load messages"
	MsgCreateConversationFailed = "Failed to create conversation"
	MsgSendFailed               = "Failed to send message"
	MsgDeleteFailed             = "Failed to delete conversation"
	MsgUpdateFailed             = "Failed to update conversation"
)

// describe returns the backend's message for API errors and fallback for
// everything else.
func describe(err error, fallback string) string {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
