package dashboard

import (
	"context"
	"net/http"

	"saas-billing/internal/domain/admin"
	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/usage"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Profiles interface {
	Me(ctx context.Context, userID string) (*auth.UserInfo, error)
}

type UsageSummaries interface {
	Current(ctx context.Context, userID string) ([]usage.Summary, error)
}

type AdminStats interface {
	Stats(ctx context.Context) (*admin.Stats, error)
}

// UserSummary is what the user dashboard renders on first load.
type UserSummary struct {
	User  *auth.UserInfo  `json:"user"`
	Usage []usage.Summary `json:"usage"`
}

// DashboardHandler serves the page-guarded summaries behind /dashboard and /admin.
type DashboardHandler struct {
	profiles Profiles
	usage    UsageSummaries
	stats    AdminStats
	logger   *zap.Logger
}

func NewDashboardHandler(profiles Profiles, summaries UsageSummaries, stats AdminStats, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		profiles: profiles,
		usage:    summaries,
		stats:    stats,
		logger:   logger,
	}
}

func (h *DashboardHandler) User(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.MustGetUserID(c)

	info, err := h.profiles.Me(ctx, userID)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load dashboard")
		return
	}

	summaries, err := h.usage.Current(ctx, userID)
	if err != nil {
		h.logger.Warn("dashboard usage unavailable", zap.String("user_id", userID), zap.Error(err))
	}
	if summaries == nil {
		summaries = []usage.Summary{}
	}

	response.Success(c, http.StatusOK, "Dashboard retrieved", UserSummary{User: info, Usage: summaries})
}

func (h *DashboardHandler) Admin(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load dashboard")
		return
	}
	response.Success(c, http.StatusOK, "Dashboard retrieved", stats)
}
