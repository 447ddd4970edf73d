package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

// Context keys set by Auth
const (
	ContextRole      = "auth_role"
	ContextVisitorID = "auth_visitor_id"
)

// Auth returns a bearer token authentication middleware. A token equal to the
// configured admin token grants the admin role; any other non-empty token is
// treated as a visitor id. Websocket clients pass the token as a query
// parameter since browsers cannot set headers on upgrade requests.
func Auth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		if adminToken != "" && token == adminToken {
			c.Set(ContextRole, string(domain.RoleAdmin))
		} else {
			c.Set(ContextRole, string(domain.RoleVisitor))
			c.Set(ContextVisitorID, token)
		}

		c.Next()
	}
}

// RequireAdmin rejects requests whose token did not resolve to the admin role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != string(domain.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
