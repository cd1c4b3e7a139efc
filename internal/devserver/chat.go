// ABOUTME: Conversation and message handlers of the dev chat API
// ABOUTME: Every message gets a synchronous canned assistant reply

package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/2389/finbot-client/internal/api"
)

const (
	defaultTitle   = "New Conversation"
	maxTitleLength = 255
	detailNotFound = "Not found."
)

func (s *Server) conversationFromPath(w http.ResponseWriter, r *http.Request, user *User) (*Conversation, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeDetail(w, http.StatusNotFound, detailNotFound)
		return nil, false
	}
	conv, err := s.store.Conversation(r.Context(), user.ID, id)
	if errors.Is(err, ErrNotFound) {
		s.writeDetail(w, http.StatusNotFound, detailNotFound)
		return nil, false
	}
	if err != nil {
		s.writeInternal(w, "loading conversation", err)
		return nil, false
	}
	return conv, true
}

func normalizeTitle(title string) (string, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return defaultTitle, true
	}
	return title, utf8.RuneCountInString(title) <= maxTitleLength
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, user *User) {
	convs, err := s.store.ListConversations(r.Context(), user.ID)
	if err != nil {
		s.writeInternal(w, "listing conversations", err)
		return
	}
	out := make([]conversationJSON, 0, len(convs))
	for i := range convs {
		out = append(out, toConversationJSON(&convs[i]))
	}
	s.writeData(w, http.StatusOK, out)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request, user *User) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	title, ok := normalizeTitle(req.Title)
	if !ok {
		s.writeMessage(w, http.StatusBadRequest, "Invalid conversation",
			FieldErrors{"title": {"Ensure this field has no more than 255 characters."}})
		return
	}

	now := s.now()
	conv := &Conversation{UserID: user.ID, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateConversation(r.Context(), conv); err != nil {
		s.writeInternal(w, "creating conversation", err)
		return
	}
	s.logger.Debug("conversation created", "user_id", user.ID, "conversation_id", conv.ID)
	s.writeData(w, http.StatusCreated, toConversationJSON(conv))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, user *User) {
	conv, ok := s.conversationFromPath(w, r, user)
	if !ok {
		return
	}
	msgs, err := s.store.Messages(r.Context(), conv.ID)
	if err != nil {
		s.writeInternal(w, "listing messages", err)
		return
	}
	out := toConversationJSON(conv)
	out.Messages = toMessagesJSON(msgs)
	s.writeData(w, http.StatusOK, out)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request, user *User) {
	conv, ok := s.conversationFromPath(w, r, user)
	if !ok {
		return
	}
	var req struct {
		Title      *string `json:"title"`
		IsArchived *bool   `json:"is_archived"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Title == nil && req.IsArchived == nil {
		s.writeMessage(w, http.StatusBadRequest, "Nothing to update", nil)
		return
	}
	patch := ConversationPatch{Archived: req.IsArchived}
	if req.Title != nil {
		title, ok := normalizeTitle(*req.Title)
		if !ok {
			s.writeMessage(w, http.StatusBadRequest, "Invalid conversation",
				FieldErrors{"title": {"Ensure this field has no more than 255 characters."}})
			return
		}
		patch.Title = &title
	}

	updated, err := s.store.UpdateConversation(r.Context(), user.ID, conv.ID, patch, s.now())
	if errors.Is(err, ErrNotFound) {
		s.writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}
	if err != nil {
		s.writeInternal(w, "updating conversation", err)
		return
	}
	s.writeData(w, http.StatusOK, toConversationJSON(updated))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request, user *User) {
	conv, ok := s.conversationFromPath(w, r, user)
	if !ok {
		return
	}
	if err := s.store.DeleteConversation(r.Context(), user.ID, conv.ID); err != nil && !errors.Is(err, ErrNotFound) {
		s.writeInternal(w, "deleting conversation", err)
		return
	}
	s.logger.Debug("conversation deleted", "user_id", user.ID, "conversation_id", conv.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, user *User) {
	conv, ok := s.conversationFromPath(w, r, user)
	if !ok {
		return
	}
	msgs, err := s.store.Messages(r.Context(), conv.ID)
	if err != nil {
		s.writeInternal(w, "listing messages", err)
		return
	}
	s.writeData(w, http.StatusOK, toMessagesJSON(msgs))
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request, user *User) {
	conv, ok := s.conversationFromPath(w, r, user)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		s.writeMessage(w, http.StatusBadRequest, "Invalid message",
			FieldErrors{"content": {"This field may not be blank."}})
		return
	}

	userMsg := &Message{
		ConversationID: conv.ID,
		Type:           api.RoleUser,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.store.AddMessage(r.Context(), userMsg); err != nil {
		s.writeInternal(w, "storing user message", err)
		return
	}

	reply, meta := Reply(content)
	assistantMsg := &Message{
		ConversationID: conv.ID,
		Type:           api.RoleAssistant,
		Content:        reply,
		Metadata:       meta,
		CreatedAt:      s.now(),
	}
	if err := s.store.AddMessage(r.Context(), assistantMsg); err != nil {
		s.writeInternal(w, "storing assistant message", err)
		return
	}

	s.writeData(w, http.StatusCreated, map[string]messageJSON{
		"user_message":      toMessageJSON(userMsg),
		"assistant_message": toMessageJSON(assistantMsg),
	})
}
