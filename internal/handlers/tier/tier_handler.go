// internal/handlers/tier/tier_handler.go
package tier

import (
	"context"
	"net/http"

	"saas-billing/internal/domain/tier"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Catalog interface {
	ListActive(ctx context.Context) ([]*tier.Tier, error)
	ListAll(ctx context.Context) ([]*tier.Tier, error)
	Get(ctx context.Context, id string) (*tier.Tier, error)
	Create(ctx context.Context, adminID string, req *tier.CreateTierRequest) (*tier.Tier, error)
	Update(ctx context.Context, adminID, id string, req *tier.UpdateTierRequest) (*tier.Tier, error)
	SetActive(ctx context.Context, adminID, id string, req *tier.SetStatusRequest) error
}

type TierHandler struct {
	catalog Catalog
	logger  *zap.Logger
}

func NewTierHandler(catalog Catalog, logger *zap.Logger) *TierHandler {
	return &TierHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// ========== Public ==========

func (h *TierHandler) ListActive(c *gin.Context) {
	tiers, err := h.catalog.ListActive(c.Request.Context())
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load subscription tiers")
		return
	}
	if tiers == nil {
		tiers = []*tier.Tier{}
	}
	response.Success(c, http.StatusOK, "Subscription tiers retrieved", tiers)
}

func (h *TierHandler) Get(c *gin.Context) {
	t, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load subscription tier")
		return
	}
	response.Success(c, http.StatusOK, "Subscription tier retrieved", t)
}

// ========== Admin ==========

// ListAll includes inactive tiers.
func (h *TierHandler) ListAll(c *gin.Context) {
	tiers, err := h.catalog.ListAll(c.Request.Context())
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load subscription tiers")
		return
	}
	if tiers == nil {
		tiers = []*tier.Tier{}
	}
	response.Success(c, http.StatusOK, "Subscription tiers retrieved", tiers)
}

func (h *TierHandler) Create(c *gin.Context) {
	var req tier.CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	t, err := h.catalog.Create(c.Request.Context(), middleware.MustGetUserID(c), &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to create subscription tier")
		return
	}
	response.Success(c, http.StatusCreated, "Subscription tier created", t)
}

func (h *TierHandler) Update(c *gin.Context) {
	var req tier.UpdateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	t, err := h.catalog.Update(c.Request.Context(), middleware.MustGetUserID(c), c.Param("id"), &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to update subscription tier")
		return
	}
	response.Success(c, http.StatusOK, "Subscription tier updated", t)
}

func (h *TierHandler) SetStatus(c *gin.Context) {
	var req tier.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	if err := h.catalog.SetActive(c.Request.Context(), middleware.MustGetUserID(c), c.Param("id"), &req); err != nil {
		response.HandleError(c, h.logger, err, "Failed to update subscription tier")
		return
	}

	message := "Subscription tier deactivated"
	if *req.IsActive {
		message = "Subscription tier activated"
	}
	response.Success(c, http.StatusOK, message, nil)
}
