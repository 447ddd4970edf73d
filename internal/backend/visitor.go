package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

// CreateConversation opens a new support conversation for the visitor
func (c *Client) CreateConversation(ctx context.Context, req *domain.CreateConversationRequest) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, domain.RoleVisitor, http.MethodPost, "/api/v1/conversations", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns the visitor's own conversations, newest first
func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var list domain.ConversationList
	if err := c.do(ctx, domain.RoleVisitor, http.MethodGet, "/api/v1/conversations", nil, &list); err != nil {
		return nil, err
	}
	return list.Conversations, nil
}

// GetConversation fetches one conversation the visitor owns
func (c *Client) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, domain.RoleVisitor, http.MethodGet, "/api/v1/conversations/"+id, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListMessages fetches one history page, newest first as stored
func (c *Client) ListMessages(ctx context.Context, id string, limit, offset int) (*domain.MessagePage, error) {
	path := fmt.Sprintf("/api/v1/conversations/%s/messages?limit=%d&offset=%d", id, limit, offset)
	var page domain.MessagePage
	if err := c.do(ctx, domain.RoleVisitor, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SendMessage appends a visitor message and returns the authoritative copy
// with its server-issued id
func (c *Client) SendMessage(ctx context.Context, id, content string) (*domain.Message, error) {
	var msg domain.Message
	req := &domain.SendMessageRequest{Content: content}
	if err := c.do(ctx, domain.RoleVisitor, http.MethodPost, "/api/v1/conversations/"+id+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead clears the visitor-side unread counter
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, domain.RoleVisitor, http.MethodPost, "/api/v1/conversations/"+id+"/read", nil, nil)
}

// InitAssistant starts automated mode. The backend treats it as idempotent
// but emits the welcome message only on the first call.
func (c *Client) InitAssistant(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := c.do(ctx, domain.RoleVisitor, http.MethodPost, "/api/v1/conversations/"+id+"/assistant/init", nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SubmitSelection persists a decision-tree choice and returns the stored
// visitor selection plus the bot reply
func (c *Client) SubmitSelection(ctx context.Context, id, optionKey, label string) (*domain.SelectionResult, error) {
	var result domain.SelectionResult
	req := &domain.SelectionRequest{OptionKey: optionKey, Label: label}
	if err := c.do(ctx, domain.RoleVisitor, http.MethodPost, "/api/v1/conversations/"+id+"/assistant/select", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
