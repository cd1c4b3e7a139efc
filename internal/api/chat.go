// ABOUTME: Conversation and message endpoints of the chat API
// ABOUTME: Every call is bearer-authenticated with the caller's access token

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/2389/finbot-client/internal/transport"
)

const (
	pathConversations     = "/chat/conversations/"
	pathListConversations = "/chat/conversations/list/"
)

// ListConversations returns all conversations of the authenticated user.
func (c *Client) ListConversations(ctx context.Context, token string) ([]Conversation, error) {
	var resp struct {
		Data []wireConversation `json:"data"`
	}
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   pathListConversations,
		Token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	convs := make([]Conversation, 0, len(resp.Data))
	for _, w := range resp.Data {
		convs = append(convs, w.toConversation())
	}
	return convs, nil
}

// CreateConversation creates a conversation with the given title.
func (c *Client) CreateConversation(ctx context.Context, token, title string) (*Conversation, error) {
	var resp struct {
		Data *wireConversation `json:"data"`
	}
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   pathConversations,
		Body:   map[string]string{"title": title},
		Token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.ID == 0 {
		return nil, fmt.Errorf("creating conversation: %w", ErrEmptyResponse)
	}
	conv := resp.Data.toConversation()
	return &conv, nil
}

// UpdateConversation changes the title and/or archived flag.
func (c *Client) UpdateConversation(ctx context.Context, token string, id int64, upd ConversationUpdate) (*Conversation, error) {
	var resp struct {
		Data *wireConversation `json:"data"`
	}
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodPatch,
		Path:   ConversationPath(id, "update/"),
		Body:   upd,
		Token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("updating conversation %d: %w", id, ErrEmptyResponse)
	}
	conv := resp.Data.toConversation()
	return &conv, nil
}

// DeleteConversation deletes a conversation. Any 2xx, including 204, is success.
func (c *Client) DeleteConversation(ctx context.Context, token string, id int64) error {
	return c.gw.Do(ctx, transport.Request{
		Method: http.MethodDelete,
		Path:   ConversationPath(id, "delete/"),
		Token:  token,
	}, nil)
}

// GetConversation returns a conversation with its embedded messages.
func (c *Client) GetConversation(ctx context.Context, token string, id int64) (*ConversationDetail, error) {
	var resp struct {
		Data *wireConversation `json:"data"`
	}
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   ConversationPath(id, ""),
		Token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("fetching conversation %d: %w", id, ErrEmptyResponse)
	}
	return &ConversationDetail{
		Conversation: resp.Data.toConversation(),
		Messages:     toMessages(resp.Data.Messages),
	}, nil
}

// ListMessages returns the messages of a conversation, oldest first.
func (c *Client) ListMessages(ctx context.Context, token string, id int64) ([]Message, error) {
	var resp struct {
		Data []wireMessage `json:"data"`
	}
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   ConversationPath(id, "messages/"),
		Token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return toMessages(resp.Data), nil
}

// CreateMessage posts a user message. The assistant reply is nil when the
// backend did not produce one synchronously.
func (c *Client) CreateMessage(ctx context.Context, token string, id int64, content string) (*Message, error) {
	var resp struct {
		Data struct {
			AssistantMessage *wireMessage `json:"assistant_message"`
		} `json:"data"`
	}
	err := c.gw.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   ConversationPath(id, "messages/create/"),
		Body:   map[string]string{"content": content},
		Token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data.AssistantMessage == nil {
		return nil, nil
	}
	msg := resp.Data.AssistantMessage.toMessage()
	return &msg, nil
}
