// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/rbac"
	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthCookieName is the httpOnly cookie that carries the session token.
const AuthCookieName = "auth-token"

const (
	ctxUserID = "user_id"
	ctxClaims = "claims"
)

// TokenValidator checks a session token, including revocation.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
	logger *zap.Logger
}

func NewAuthMiddleware(tokens TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// Auth rejects requests without a valid, unrevoked token.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := m.tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			m.logger.Debug("token rejected", zap.String("path", c.FullPath()), zap.Error(err))
			response.Error(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// RequireRole passes users holding any of roles. Use after Auth.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		response.Error(c, http.StatusForbidden, "Insufficient permissions")
	}
}

// RequirePermission passes users whose role holds every permission. Use
// after Auth.
func (m *AuthMiddleware) RequirePermission(permissions ...rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		for _, p := range permissions {
			if err := rbac.RequirePermission(rbac.Role(claims.Role), p); err != nil {
				m.logger.Info("permission denied",
					zap.String("user_id", claims.UserID),
					zap.String("permission", string(p)),
				)
				response.Error(c, http.StatusForbidden, "Insufficient permissions")
				return
			}
		}
		c.Next()
	}
}

// AdminOnly is Auth followed by an ADMIN role check.
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(rbac.RoleAdmin),
	}
}

// WithPermission is Auth followed by RequirePermission.
func (m *AuthMiddleware) WithPermission(permissions ...rbac.Permission) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequirePermission(permissions...),
	}
}

// OptionalAuth sets the caller when a valid token is present and never
// aborts.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if claims, err := m.tokens.ValidateToken(c.Request.Context(), token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireAuthPage redirects anonymous page requests to /login.
func (m *AuthMiddleware) RequireAuthPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := m.pageClaims(c); !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdminPage redirects anonymous users to /login and non-admins to
// /dashboard.
func (m *AuthMiddleware) RequireAdminPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := m.pageClaims(c)
		if !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		if !claims.IsAdmin() {
			c.Redirect(http.StatusFound, "/dashboard")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) pageClaims(c *gin.Context) (*jwt.Claims, bool) {
	token := extractToken(c)
	if token == "" {
		return nil, false
	}
	claims, err := m.tokens.ValidateToken(c.Request.Context(), token)
	if err != nil {
		return nil, false
	}
	setClaims(c, claims)
	return claims, true
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxClaims, claims)
}

// extractToken reads the session cookie, then a bearer header.
func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AuthCookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}
