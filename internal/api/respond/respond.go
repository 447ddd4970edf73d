// Package respond maps service errors to HTTP status codes and the wire
// error envelope shared with the client.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

// Error writes the error envelope for a service error. The body carries both
// the structured code and the human-readable message; older clients match on
// the message text, newer ones on the code.
func Error(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": domain.CodeNotFound})
	case errors.Is(err, domain.ErrAdminBusy):
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrAdminBusy.Error(), "code": domain.CodeAdminBusy})
	case errors.Is(err, domain.ErrAlreadyAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": domain.CodeAlreadyAssigned})
	case errors.Is(err, domain.ErrConversationClosed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": domain.CodeClosed})
	case errors.Is(err, domain.ErrConversationPending):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": domain.CodePending})
	case errors.Is(err, domain.ErrConversationNotClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": domain.CodeNotClosed})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
