// ABOUTME: Chat state, provisional message entries, and the pure reducer over chat actions
// ABOUTME: Keeps the invariant that messages always belong to the active conversation

package chat

import (
	"slices"

	"github.com/2389/finbot-client/internal/api"
)

// EntryStatus tracks a message through the send pipeline.
type EntryStatus int

const (
	// StatusSent is the status of every server-loaded message.
	StatusSent EntryStatus = iota
	StatusPending
	StatusFailed
)

func (s EntryStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a message as displayed. Provisional entries carry a LocalID.
type Entry struct {
	api.Message
	LocalID string
	Status  EntryStatus
	// Error describes why a failed entry failed.
	Error string
}

// Provisional reports whether the entry was created locally.
func (e Entry) Provisional() bool {
	return e.LocalID != ""
}

// DeleteIntent is a deletion awaiting confirmation.
type DeleteIntent struct {
	ID    int64
	Title string
}

// State is a snapshot of the orchestrator.
type State struct {
	Conversations        []api.Conversation
	ConversationsLoading bool
	ConversationsErr     string

	ActiveID        *int64
	Messages        []Entry
	IsLoading       bool
	MessagesLoading bool
	MessagesErr     string

	PendingDelete *DeleteIntent
	Deleting      bool
	DeleteErr     string

	// Welcome is true when no conversation is open and quick actions apply.
	Welcome bool
}

// InitialState is the empty, welcome-screen state.
func InitialState() State {
	return State{Welcome: true}
}

// Active returns the active conversation from the list, if present.
func (s State) Active() (api.Conversation, bool) {
	if s.ActiveID == nil {
		return api.Conversation{}, false
	}
	return s.Conversation(*s.ActiveID)
}

// Conversation finds a conversation in the list.
func (s State) Conversation(id int64) (api.Conversation, bool) {
	i := slices.IndexFunc(s.Conversations, func(c api.Conversation) bool { return c.ID == id })
	if i < 0 {
		return api.Conversation{}, false
	}
	return s.Conversations[i], true
}

// Entry finds a provisional entry by local id.
func (s State) Entry(localID string) (Entry, bool) {
	i := s.entryIndex(localID)
	if i < 0 {
		return Entry{}, false
	}
	return s.Messages[i], true
}

func (s State) entryIndex(localID string) int {
	if localID == "" {
		return -1
	}
	return slices.IndexFunc(s.Messages, func(e Entry) bool { return e.LocalID == localID })
}

func (s State) isActive(id int64) bool {
	return s.ActiveID != nil && *s.ActiveID == id
}

// Action is a chat state transition.
type Action interface {
	chatAction()
}

type (
	// ConversationsRequested starts a list load.
	ConversationsRequested struct{}
	// ConversationsLoaded replaces the list.
	ConversationsLoaded struct{ Conversations []api.Conversation }
	// ConversationsFailed keeps the previous list and records the error.
	ConversationsFailed struct{ Err string }
	// ConversationAdded prepends a new conversation.
	ConversationAdded struct{ Conversation api.Conversation }
	// ConversationReplaced swaps a list entry by id.
	ConversationReplaced struct{ Conversation api.Conversation }

	// Selected opens a conversation and starts loading its messages.
	Selected struct{ ID int64 }
	// MessagesLoaded installs messages for the active conversation.
	MessagesLoaded struct {
		ID       int64
		Messages []api.Message
	}
	// MessagesFailed records a message load failure.
	MessagesFailed struct {
		ID  int64
		Err string
	}
	// NewChat returns to the welcome screen.
	NewChat struct{}
	// Reset drops everything, for example after logout.
	Reset struct{}

	// EntryAppended adds a provisional user entry and starts loading.
	EntryAppended struct{ Entry Entry }
	// EntryRetried marks a failed entry pending again.
	EntryRetried struct{ LocalID string }
	// ConversationBound makes a freshly created conversation active if the
	// provisional entry that caused it is still shown.
	ConversationBound struct {
		ID      int64
		LocalID string
	}
	// EntrySent marks a provisional entry accepted.
	EntrySent struct{ LocalID string }
	// EntryFailed marks a provisional entry failed.
	EntryFailed struct {
		LocalID string
		Err     string
	}
	// EntryDiscarded removes a provisional entry.
	EntryDiscarded struct{ LocalID string }
	// ReplyReceived appends an assistant message to its conversation.
	ReplyReceived struct {
		ConversationID int64
		Message        api.Message
	}
	// SendFinished clears the sending flag.
	SendFinished struct{}

	// DeleteRequested opens the confirmation prompt.
	DeleteRequested struct{ Intent DeleteIntent }
	// DeleteStarted marks the confirmed delete in flight.
	DeleteStarted struct{}
	// DeleteSucceeded closes the prompt and removes the conversation.
	DeleteSucceeded struct{ ID int64 }
	// DeleteFailed keeps the prompt open with an error.
	DeleteFailed struct{ Err string }
	// DeleteCancelled closes the prompt.
	DeleteCancelled struct{}
)

func (ConversationsRequested) chatAction() {}
func (ConversationsLoaded) chatAction()    {}
func (ConversationsFailed) chatAction()    {}
func (ConversationAdded) chatAction()      {}
func (ConversationReplaced) chatAction()   {}
func (Selected) chatAction()               {}
func (MessagesLoaded) chatAction()         {}
func (MessagesFailed) chatAction()         {}
func (NewChat) chatAction()                {}
func (Reset) chatAction()                  {}
func (EntryAppended) chatAction()          {}
func (EntryRetried) chatAction()           {}
func (ConversationBound) chatAction()      {}
func (EntrySent) chatAction()              {}
func (EntryFailed) chatAction()            {}
func (EntryDiscarded) chatAction()         {}
func (ReplyReceived) chatAction()          {}
func (SendFinished) chatAction()           {}
func (DeleteRequested) chatAction()        {}
func (DeleteStarted) chatAction()          {}
func (DeleteSucceeded) chatAction()        {}
func (DeleteFailed) chatAction()           {}
func (DeleteCancelled) chatAction()        {}

// Reduce returns the state after applying a. s is not modified; slices are
// copied before they change.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case ConversationsRequested:
		s.ConversationsLoading = true
		s.ConversationsErr = ""
	case ConversationsLoaded:
		s.Conversations = slices.Clone(a.Conversations)
		s.ConversationsLoading = false
		s.ConversationsErr = ""
	case ConversationsFailed:
		s.ConversationsLoading = false
		s.ConversationsErr = a.Err
	case ConversationAdded:
		s.Conversations = append([]api.Conversation{a.Conversation}, s.Conversations...)
	case ConversationReplaced:
		if i := slices.IndexFunc(s.Conversations, func(c api.Conversation) bool { return c.ID == a.Conversation.ID }); i >= 0 {
			s.Conversations = slices.Clone(s.Conversations)
			s.Conversations[i] = a.Conversation
		}

	case Selected:
		id := a.ID
		s.ActiveID = &id
		s.Messages = nil
		s.IsLoading = false
		s.MessagesLoading = true
		s.MessagesErr = ""
		s.Welcome = false
	case MessagesLoaded:
		if !s.isActive(a.ID) {
			return s
		}
		loaded := make([]Entry, 0, len(a.Messages)+len(s.Messages))
		for _, m := range a.Messages {
			loaded = append(loaded, Entry{Message: m})
		}
		// Entries held now arrived while the load was in flight.
		for _, e := range s.Messages {
			if !coveredBy(a.Messages, e) {
				loaded = append(loaded, e)
			}
		}
		s.Messages = loaded
		s.MessagesLoading = false
		s.MessagesErr = ""
	case MessagesFailed:
		if !s.isActive(a.ID) {
			return s
		}
		s.Messages = nil
		s.MessagesLoading = false
		s.MessagesErr = a.Err
	case NewChat:
		s.ActiveID = nil
		s.Messages = nil
		s.IsLoading = false
		s.MessagesLoading = false
		s.MessagesErr = ""
		s.Welcome = true
	case Reset:
		return InitialState()

	case EntryAppended:
		s.Messages = append(slices.Clone(s.Messages), a.Entry)
		s.IsLoading = true
		s.Welcome = false
	case EntryRetried:
		s = withEntry(s, a.LocalID, func(e *Entry) {
			e.Status = StatusPending
			e.Error = ""
		})
		s.IsLoading = true
	case ConversationBound:
		if s.ActiveID == nil && s.entryIndex(a.LocalID) >= 0 {
			id := a.ID
			s.ActiveID = &id
		}
	case EntrySent:
		s = withEntry(s, a.LocalID, func(e *Entry) {
			e.Status = StatusSent
			e.Error = ""
		})
	case EntryFailed:
		s = withEntry(s, a.LocalID, func(e *Entry) {
			e.Status = StatusFailed
			e.Error = a.Err
		})
	case EntryDiscarded:
		if i := s.entryIndex(a.LocalID); i >= 0 {
			s.Messages = slices.Delete(slices.Clone(s.Messages), i, i+1)
		}
	case ReplyReceived:
		if s.isActive(a.ConversationID) {
			s.Messages = append(slices.Clone(s.Messages), Entry{Message: a.Message})
		}
	case SendFinished:
		s.IsLoading = false

	case DeleteRequested:
		intent := a.Intent
		s.PendingDelete = &intent
		s.Deleting = false
		s.DeleteErr = ""
	case DeleteStarted:
		s.Deleting = true
		s.DeleteErr = ""
	case DeleteSucceeded:
		s.PendingDelete = nil
		s.Deleting = false
		s.DeleteErr = ""
		s.Conversations = slices.DeleteFunc(slices.Clone(s.Conversations), func(c api.Conversation) bool { return c.ID == a.ID })
		if s.isActive(a.ID) {
			s = Reduce(s, NewChat{})
		}
	case DeleteFailed:
		s.Deleting = false
		s.DeleteErr = a.Err
	case DeleteCancelled:
		s.PendingDelete = nil
		s.Deleting = false
		s.DeleteErr = ""
	}
	return s
}

func withEntry(s State, localID string, fn func(*Entry)) State {
	i := s.entryIndex(localID)
	if i < 0 {
		return s
	}
	s.Messages = slices.Clone(s.Messages)
	fn(&s.Messages[i])
	return s
}

// coveredBy reports whether msgs already holds e: the same server message, or
// for a delivered local entry, a user message with the same content.
func coveredBy(msgs []api.Message, e Entry) bool {
	return slices.ContainsFunc(msgs, func(m api.Message) bool {
		if !e.Provisional() {
			return m.ID == e.ID
		}
		return e.Status == StatusSent && m.Role == api.RoleUser && m.Content == e.Content
	})
}
