// ABOUTME: Domain and wire types for accounts, conversations, and messages
// ABOUTME: Converts backend snake_case payloads into client-side domain values

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// User is the authenticated account profile.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName prefers the full name, then first/last, then the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	if name := joinNonEmpty(u.FirstName, u.LastName); name != "" {
		return name
	}
	return u.Username
}

// UnmarshalJSON reads created_at with or without a UTC offset.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	aux := struct {
		*plain
		CreatedAt wireTime `json:"created_at"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	u.CreatedAt = time.Time(aux.CreatedAt)
	return nil
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// LoginCredentials is the body of POST /accounts/login/.
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterCredentials is the body of POST /accounts/register/.
type RegisterCredentials struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// AuthResponse is what login and register return. Any field may be missing;
// callers decide whether a partial response is acceptable.
type AuthResponse struct {
	User    *User  `json:"user"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Complete reports whether user, access and refresh are all present.
func (r *AuthResponse) Complete() bool {
	return r != nil && r.User != nil && r.Access != "" && r.Refresh != ""
}

// Conversation is a server-persisted chat thread.
type Conversation struct {
	ID            int64
	Title         string
	MessageCount  int
	Archived      bool
	UserID        int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastMessageAt *time.Time
}

// Timestamp is the time shown for the conversation in lists.
func (c Conversation) Timestamp() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// ConversationUpdate is the body of PATCH /chat/conversations/{id}/update/.
// Nil fields are omitted.
type ConversationUpdate struct {
	Title    *string `json:"title,omitempty"`
	Archived *bool   `json:"is_archived,omitempty"`
}

// ConversationDetail is a conversation together with its messages.
type ConversationDetail struct {
	Conversation Conversation
	Messages     []Message
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata is optional analysis detail attached to assistant messages.
type Metadata struct {
	Confidence       *float64           `json:"confidence,omitempty"`
	Sources          []string           `json:"sources,omitempty"`
	StockSymbols     []string           `json:"stock_symbols,omitempty"`
	FinancialMetrics map[string]float64 `json:"financial_metrics,omitempty"`
}

// Message is a single immutable chat message.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	Metadata  *Metadata
}

// SortMessages orders messages by timestamp ascending, keeping server order
// for equal timestamps.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// wireID accepts both numeric and string identifiers.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = wireID(n.String())
	return nil
}

// naiveLayouts are ISO 8601 forms without an offset. Fractional seconds are
// accepted by time.Parse even though the layouts omit them.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// wireTime is a backend timestamp. Offset-less values are read as UTC.
type wireTime time.Time

func (t *wireTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = wireTime(parsed)
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = wireTime(parsed)
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unrecognized format", s)
}

func (t *wireTime) ptr() *time.Time {
	if t == nil || time.Time(*t).IsZero() {
		return nil
	}
	v := time.Time(*t)
	return &v
}

type wireConversation struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	MessageCount  int           `json:"message_count"`
	IsArchived    bool          `json:"is_archived"`
	User          int64         `json:"user"`
	UserID        int64         `json:"user_id"`
	CreatedAt     wireTime      `json:"created_at"`
	UpdatedAt     wireTime      `json:"updated_at"`
	LastMessageAt *wireTime     `json:"last_message_at"`
	Messages      []wireMessage `json:"messages,omitempty"`
}

func (w wireConversation) toConversation() Conversation {
	userID := w.UserID
	if userID == 0 {
		userID = w.User
	}
	return Conversation{
		ID:            w.ID,
		Title:         w.Title,
		MessageCount:  w.MessageCount,
		Archived:      w.IsArchived,
		UserID:        userID,
		CreatedAt:     time.Time(w.CreatedAt),
		UpdatedAt:     time.Time(w.UpdatedAt),
		LastMessageAt: w.LastMessageAt.ptr(),
	}
}

type wireMessage struct {
	ID          wireID    `json:"id"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	CreatedAt   wireTime  `json:"created_at"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

func (w wireMessage) toMessage() Message {
	role := RoleAssistant
	if w.MessageType == string(RoleUser) {
		role = RoleUser
	}
	return Message{
		ID:        string(w.ID),
		Role:      role,
		Content:   w.Content,
		Timestamp: time.Time(w.CreatedAt),
		Metadata:  w.Metadata,
	}
}

func toMessages(ws []wireMessage) []Message {
	msgs := make([]Message, 0, len(ws))
	for _, w := range ws {
		msgs = append(msgs, w.toMessage())
	}
	SortMessages(msgs)
	return msgs
}

// ConversationPath builds a per-conversation endpoint path.
func ConversationPath(id int64, suffix string) string {
	return "/chat/conversations/" + strconv.FormatInt(id, 10) + "/" + suffix
}
