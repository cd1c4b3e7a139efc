// ABOUTME: JSON request decoding and response helpers for dev server handlers
// ABOUTME: Errors use the message/errors or detail body shapes the client parses

package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/finbot-client/internal/api"
)

const maxBodyBytes = 1 << 20

// FieldErrors maps a field name to its validation messages.
type FieldErrors map[string][]string

// Add records msg for field.
func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

type errorBody struct {
	Message string      `json:"message,omitempty"`
	Detail  string      `json:"detail,omitempty"`
	Errors  FieldErrors `json:"errors,omitempty"`
}

type envelope struct {
	Data any `json:"data"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, envelope{Data: data})
}

func (s *Server) writeMessage(w http.ResponseWriter, status int, msg string, fields FieldErrors) {
	s.writeJSON(w, status, errorBody{Message: msg, Errors: fields})
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorBody{Detail: detail})
}

func (s *Server) writeInternal(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, "error", err)
	s.writeDetail(w, http.StatusInternalServerError, "Internal server error")
}

// decodeJSON reads a JSON object from r into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

type userJSON struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserJSON(u *User) userJSON {
	return userJSON{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  strings.TrimSpace(u.FirstName + " " + u.LastName),
		CreatedAt: u.CreatedAt,
	}
}

type conversationJSON struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	MessageCount  int           `json:"message_count"`
	IsArchived    bool          `json:"is_archived"`
	User          int64         `json:"user"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	LastMessageAt *time.Time    `json:"last_message_at"`
	Messages      []messageJSON `json:"messages,omitempty"`
}

func toConversationJSON(c *Conversation) conversationJSON {
	return conversationJSON{
		ID:            c.ID,
		Title:         c.Title,
		MessageCount:  c.MessageCount,
		IsArchived:    c.Archived,
		User:          c.UserID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		LastMessageAt: c.LastMessageAt,
	}
}

type messageJSON struct {
	ID          int64         `json:"id"`
	MessageType string        `json:"message_type"`
	Content     string        `json:"content"`
	CreatedAt   time.Time     `json:"created_at"`
	Metadata    *api.Metadata `json:"metadata,omitempty"`
}

func toMessageJSON(m *Message) messageJSON {
	return messageJSON{
		ID:          m.ID,
		MessageType: string(m.Type),
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		Metadata:    m.Metadata,
	}
}

func toMessagesJSON(msgs []Message) []messageJSON {
	out := make([]messageJSON, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageJSON(&msgs[i]))
	}
	return out
}
