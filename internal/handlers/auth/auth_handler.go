// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"net/http"
	"time"

	"saas-billing/internal/domain/auth"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CookieMaxAge matches the session token lifetime.
const CookieMaxAge = 7 * 24 * time.Hour

// Authenticator is the slice of the auth service the handler drives.
type Authenticator interface {
	Register(ctx context.Context, req *auth.RegisterRequest) (*auth.LoginResponse, error)
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error)
	Me(ctx context.Context, userID string) (*auth.UserInfo, error)
	Logout(ctx context.Context, claims *jwt.Claims) error
}

type AuthHandler struct {
	authService  Authenticator
	secureCookie bool
	logger       *zap.Logger
}

// NewAuthHandler marks the session cookie Secure when secureCookie is set.
func NewAuthHandler(authService Authenticator, secureCookie bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookieName, token, maxAge, "/", "", h.secureCookie, true)
}

// ========== Registration ==========

func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	req.IPAddress = middleware.ClientIP(c)
	req.UserAgent = c.Request.UserAgent()

	loginResp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Internal server error")
		return
	}

	h.setSessionCookie(c, loginResp.Token, int(CookieMaxAge.Seconds()))
	response.Success(c, http.StatusCreated, "Registration successful", loginResp)
}

// ========== Login ==========

func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	req.IPAddress = middleware.ClientIP(c)
	req.UserAgent = c.Request.UserAgent()

	loginResp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Internal server error")
		return
	}

	h.logger.Info("user logged in",
		zap.String("user_id", loginResp.User.ID),
		zap.String("ip", req.IPAddress),
	)

	h.setSessionCookie(c, loginResp.Token, int(CookieMaxAge.Seconds()))
	response.Success(c, http.StatusOK, "Login successful", loginResp)
}

// ========== Session ==========

// Logout revokes the token and clears the cookie. Requires Auth.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, _ := middleware.GetClaims(c)

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		response.HandleError(c, h.logger, err, "Logout failed")
		return
	}

	h.setSessionCookie(c, "", -1)
	response.Success(c, http.StatusOK, "Logout successful", nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	info, err := h.authService.Me(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load profile")
		return
	}
	response.Success(c, http.StatusOK, "Profile retrieved", info)
}
