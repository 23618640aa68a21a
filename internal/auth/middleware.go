package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResultKey is the gin context key holding the *AuthResult.
const ResultKey = "auth_result"

// Middleware guards gin routes. A nil service disables every check.
type Middleware struct {
	authService *AuthService
}

func NewMiddleware(s *AuthService) *Middleware {
	return &Middleware{authService: s}
}

func (m *Middleware) enabled() bool { return m != nil && m.authService != nil }

// GinAuth returns a Gin middleware function for authentication
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled() {
			c.Next()
			return
		}
		res, err := m.authService.Authenticate(c.Request)
		if err != nil || !res.Success {
			c.Header("WWW-Authenticate", `Basic realm="archivist"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ResultKey, res)
		c.Next()
	}
}

// GinRequirePermission rejects authenticated callers whose roles do not grant action.
func (m *Middleware) GinRequirePermission(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled() {
			c.Next()
			return
		}
		v, exists := c.Get(ResultKey)
		res, ok := v.(*AuthResult)
		if !exists || !ok || !res.Success {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !HasPermission(res.Roles, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}
