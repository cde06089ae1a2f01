// internal/handlers/admin/admin_handler.go
package admin

import (
	"context"
	"net/http"

	"saas-billing/internal/domain/admin"
	"saas-billing/internal/domain/auth"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Console interface {
	Stats(ctx context.Context) (*admin.Stats, error)
	SubscriptionStats(ctx context.Context) (*admin.SubscriptionStats, error)
	ListUsers(ctx context.Context, f admin.UserFilters) (*admin.UserListResponse, error)
	GetUser(ctx context.Context, id string) (*admin.UserDetail, error)
	InviteUser(ctx context.Context, adminID string, req *admin.InviteUserRequest) (*admin.InviteUserResponse, string, error)
	UpdateUserRole(ctx context.Context, adminID, userID string, req *admin.UpdateRoleRequest) (*auth.User, error)
}

type AdminHandler struct {
	console Console
	logger  *zap.Logger
}

func NewAdminHandler(console Console, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		console: console,
		logger:  logger,
	}
}

// ========== Stats ==========

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.console.Stats(c.Request.Context())
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load statistics")
		return
	}
	response.Success(c, http.StatusOK, "Statistics retrieved", stats)
}

func (h *AdminHandler) SubscriptionStats(c *gin.Context) {
	stats, err := h.console.SubscriptionStats(c.Request.Context())
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load subscription statistics")
		return
	}
	response.Success(c, http.StatusOK, "Subscription statistics retrieved", stats)
}

// ========== Users ==========

func (h *AdminHandler) ListUsers(c *gin.Context) {
	var f admin.UserFilters
	if err := c.ShouldBindQuery(&f); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}

	list, err := h.console.ListUsers(c.Request.Context(), f)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load users")
		return
	}
	response.Success(c, http.StatusOK, "Users retrieved", list)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	detail, err := h.console.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load user")
		return
	}
	response.Success(c, http.StatusOK, "User retrieved", detail)
}

func (h *AdminHandler) InviteUser(c *gin.Context) {
	var req admin.InviteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	result, message, err := h.console.InviteUser(c.Request.Context(), middleware.MustGetUserID(c), &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to create user")
		return
	}
	response.Success(c, http.StatusCreated, message, result)
}

func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	var req admin.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	u, err := h.console.UpdateUserRole(c.Request.Context(), middleware.MustGetUserID(c), c.Param("id"), &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to update role")
		return
	}
	response.Success(c, http.StatusOK, "User role updated", u)
}
