package visitor

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mtuog/CDW-sub002/internal/api/middleware"
	"github.com/mtuog/CDW-sub002/internal/api/respond"
	"github.com/mtuog/CDW-sub002/internal/domain"
	"github.com/mtuog/CDW-sub002/internal/service"
)

// Handler handles visitor API requests
type Handler struct {
	support *service.SupportService
}

// NewHandler creates a new visitor handler
func NewHandler(support *service.SupportService) *Handler {
	return &Handler{support: support}
}

// RegisterRoutes registers visitor routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/conversations", h.CreateConversation)
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id", h.GetConversation)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/conversations/:id/messages", h.SendMessage)
	r.POST("/conversations/:id/read", h.MarkRead)
	r.POST("/conversations/:id/assistant/init", h.InitAssistant)
	r.POST("/conversations/:id/assistant/select", h.SubmitSelection)
	r.GET("/conversations/:id/assistant/node", h.AssistantNode)
}

// CreateConversation opens a conversation, reusing the visitor's active one
func (h *Handler) CreateConversation(c *gin.Context) {
	var req domain.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.support.CreateOrGet(c.GetString(middleware.ContextVisitorID), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListConversations returns the visitor's own conversations
func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.support.ListByVisitor(c.GetString(middleware.ContextVisitorID))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.ConversationList{Conversations: convs, Total: len(convs)})
}

// GetConversation fetches one conversation the visitor owns
func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.owned(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListMessages fetches one history page, newest first
func (h *Handler) ListMessages(c *gin.Context) {
	if _, err := h.owned(c); err != nil {
		respond.Error(c, err)
		return
	}

	page, err := h.support.Messages(c.Param("id"), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage appends a visitor message
func (h *Handler) SendMessage(c *gin.Context) {
	if _, err := h.owned(c); err != nil {
		respond.Error(c, err)
		return
	}

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.support.SendMessage(c.Param("id"), req.Content, domain.RoleVisitor)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// MarkRead clears the visitor-side unread counter
func (h *Handler) MarkRead(c *gin.Context) {
	if _, err := h.owned(c); err != nil {
		respond.Error(c, err)
		return
	}
	if err := h.support.MarkRead(c.Param("id"), domain.RoleVisitor); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// InitAssistant starts automated mode, emitting the welcome on first call
func (h *Handler) InitAssistant(c *gin.Context) {
	if _, err := h.owned(c); err != nil {
		respond.Error(c, err)
		return
	}
	msg, err := h.support.InitAssistant(c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// SubmitSelection persists a decision-tree choice
func (h *Handler) SubmitSelection(c *gin.Context) {
	if _, err := h.owned(c); err != nil {
		respond.Error(c, err)
		return
	}

	var req domain.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.support.SubmitSelection(c.Param("id"), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AssistantNode resolves a decision-tree node without recording a selection.
// The widget uses it to rehydrate the option menu after a reconnect; no key
// returns the root node.
func (h *Handler) AssistantNode(c *gin.Context) {
	if _, err := h.owned(c); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, h.support.AssistantNode(c.Query("key")))
}

// owned loads the conversation and checks the requester owns it. A foreign
// conversation reads as not found rather than forbidden.
func (h *Handler) owned(c *gin.Context) (*domain.Conversation, error) {
	conv, err := h.support.Get(c.Param("id"))
	if err != nil {
		return nil, err
	}
	if conv.VisitorID != c.GetString(middleware.ContextVisitorID) {
		return nil, domain.ErrNotFound
	}
	return conv, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}
