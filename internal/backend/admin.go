package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

// AdminListConversations pages through all conversations, optionally filtered
// by status
func (c *Client) AdminListConversations(ctx context.Context, status domain.ConversationStatus, limit, offset int) (*domain.ConversationList, error) {
	path := fmt.Sprintf("/api/v1/admin/conversations?status=%s&limit=%d&offset=%d", status, limit, offset)
	var list domain.ConversationList
	if err := c.do(ctx, domain.RoleAdmin, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// AdminGetConversation fetches one conversation regardless of owner
func (c *Client) AdminGetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, domain.RoleAdmin, http.MethodGet, "/api/v1/admin/conversations/"+id, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Assign claims a pending conversation for the requesting admin. When the
// admin already has another open conversation the error satisfies
// errors.Is(err, domain.ErrAdminBusy); callers must not retry automatically.
func (c *Client) Assign(ctx context.Context, id string, req *domain.AssignRequest) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, domain.RoleAdmin, http.MethodPost, "/api/v1/admin/conversations/"+id+"/assign", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AdminListMessages fetches one history page for any conversation
func (c *Client) AdminListMessages(ctx context.Context, id string, limit, offset int) (*domain.MessagePage, error) {
	path := fmt.Sprintf("/api/v1/admin/conversations/%s/messages?limit=%d&offset=%d", id, limit, offset)
	var page domain.MessagePage
	if err := c.do(ctx, domain.RoleAdmin, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// AdminSendMessage appends an admin reply
func (c *Client) AdminSendMessage(ctx context.Context, id, content string) (*domain.Message, error) {
	var msg domain.Message
	req := &domain.SendMessageRequest{Content: content}
	if err := c.do(ctx, domain.RoleAdmin, http.MethodPost, "/api/v1/admin/conversations/"+id+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AdminMarkRead clears the agent-side unread counter
func (c *Client) AdminMarkRead(ctx context.Context, id string) error {
	return c.do(ctx, domain.RoleAdmin, http.MethodPost, "/api/v1/admin/conversations/"+id+"/read", nil, nil)
}

// CloseConversation transitions an open conversation to closed
func (c *Client) CloseConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, domain.RoleAdmin, http.MethodPost, "/api/v1/admin/conversations/"+id+"/close", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation permanently removes a closed conversation
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, domain.RoleAdmin, http.MethodDelete, "/api/v1/admin/conversations/"+id, nil, nil)
}

// DeleteAllClosed permanently removes every closed conversation and returns
// how many were deleted
func (c *Client) DeleteAllClosed(ctx context.Context) (int, error) {
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, domain.RoleAdmin, http.MethodDelete, "/api/v1/admin/closed-conversations", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// Stats fetches aggregate counters for the console dashboard
func (c *Client) Stats(ctx context.Context) (*domain.AdminStats, error) {
	var stats domain.AdminStats
	if err := c.do(ctx, domain.RoleAdmin, http.MethodGet, "/api/v1/admin/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
