package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mtuog/CDW-sub002/internal/api/respond"
	"github.com/mtuog/CDW-sub002/internal/domain"
	"github.com/mtuog/CDW-sub002/internal/service"
)

// Handler handles admin console API requests
type Handler struct {
	support *service.SupportService
}

// NewHandler creates a new admin handler
func NewHandler(support *service.SupportService) *Handler {
	return &Handler{support: support}
}

// RegisterRoutes registers admin routes. Bulk deletion lives outside the
// /conversations tree so the path cannot collide with the :id parameter.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id", h.GetConversation)
	r.POST("/conversations/:id/assign", h.Assign)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/conversations/:id/messages", h.SendMessage)
	r.POST("/conversations/:id/read", h.MarkRead)
	r.POST("/conversations/:id/close", h.Close)
	r.DELETE("/conversations/:id", h.Delete)
	r.DELETE("/closed-conversations", h.DeleteAllClosed)
	r.GET("/stats", h.Stats)
}

// ListConversations pages conversations filtered by status
func (h *Handler) ListConversations(c *gin.Context) {
	status := domain.ConversationStatus(c.DefaultQuery("status", string(domain.StatusPending)))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + string(status)})
		return
	}
	list, err := h.support.ListByStatus(status, queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetConversation fetches any conversation by id
func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.support.Get(c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Assign claims a pending conversation for the requesting admin
func (h *Handler) Assign(c *gin.Context) {
	var req domain.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.support.Assign(c.Param("id"), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListMessages fetches one history page for any conversation
func (h *Handler) ListMessages(c *gin.Context) {
	page, err := h.support.Messages(c.Param("id"), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage appends an admin reply
func (h *Handler) SendMessage(c *gin.Context) {
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.support.SendMessage(c.Param("id"), req.Content, domain.RoleAdmin)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// MarkRead clears the agent-side unread counter
func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.support.MarkRead(c.Param("id"), domain.RoleAdmin); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Close transitions a conversation to closed
func (h *Handler) Close(c *gin.Context) {
	conv, err := h.support.Close(c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Delete permanently removes a closed conversation
func (h *Handler) Delete(c *gin.Context) {
	if err := h.support.Delete(c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllClosed permanently removes every closed conversation
func (h *Handler) DeleteAllClosed(c *gin.Context) {
	n, err := h.support.DeleteAllClosed()
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// Stats returns aggregate counters for the dashboard
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.support.Stats()
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func queryInt(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}
