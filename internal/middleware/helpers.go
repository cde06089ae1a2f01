// internal/middleware/helpers.go
package middleware

import (
	"strings"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// GetClaims returns the caller's token claims set by Auth.
func GetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}

func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// MustGetUserID panics when called outside an authenticated route.
func MustGetUserID(c *gin.Context) string {
	id, ok := GetUserID(c)
	if !ok {
		panic("user_id not found in context")
	}
	return id
}

func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetUserID(c)
	return ok
}

func IsAdmin(c *gin.Context) bool {
	claims, ok := GetClaims(c)
	return ok && claims.IsAdmin()
}

// ClientIP prefers the first X-Forwarded-For hop.
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	return c.ClientIP()
}

// Source describes the request for audit entries.
func Source(c *gin.Context) audit.Source {
	return audit.Source{
		IPAddress: ClientIP(c),
		UserAgent: c.Request.UserAgent(),
	}
}
