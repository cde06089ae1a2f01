// internal/handlers/refund/refund_handler.go
package refund

import (
	"context"
	"net/http"
	"strings"

	"saas-billing/internal/domain/refund"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Refunds interface {
	Create(ctx context.Context, userID string, req *refund.CreateRequest) (*refund.Request, error)
	ListMine(ctx context.Context, userID string) ([]*refund.Request, error)
	List(ctx context.Context, status refund.Status, limit int) ([]*refund.Request, error)
	Approve(ctx context.Context, admin *jwt.Claims, req *refund.DecisionRequest) (*refund.Request, error)
	Reject(ctx context.Context, admin *jwt.Claims, req *refund.DecisionRequest) (*refund.Request, error)
}

type RefundHandler struct {
	refunds Refunds
	logger  *zap.Logger
}

func NewRefundHandler(refunds Refunds, logger *zap.Logger) *RefundHandler {
	return &RefundHandler{
		refunds: refunds,
		logger:  logger,
	}
}

// ========== Customer ==========

func (h *RefundHandler) Create(c *gin.Context) {
	var req refund.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	r, err := h.refunds.Create(c.Request.Context(), middleware.MustGetUserID(c), &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to create refund request")
		return
	}
	response.Success(c, http.StatusCreated, "Refund request submitted", r)
}

func (h *RefundHandler) ListMine(c *gin.Context) {
	list, err := h.refunds.ListMine(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load refund requests")
		return
	}
	if list == nil {
		list = []*refund.Request{}
	}
	response.Success(c, http.StatusOK, "Refund requests retrieved", list)
}

// ========== Admin ==========

// List defaults to pending requests; status=all lists every request.
func (h *RefundHandler) List(c *gin.Context) {
	var f refund.ListFilters
	if err := c.ShouldBindQuery(&f); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}

	status := refund.Status(strings.ToUpper(strings.TrimSpace(f.Status)))
	switch status {
	case "":
		status = refund.StatusPending
	case "ALL":
		status = ""
	}

	list, err := h.refunds.List(c.Request.Context(), status, f.Limit)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load refund requests")
		return
	}
	if list == nil {
		list = []*refund.Request{}
	}
	response.Success(c, http.StatusOK, "Refund requests retrieved", list)
}

func (h *RefundHandler) bindDecision(c *gin.Context) (*refund.DecisionRequest, *jwt.Claims, bool) {
	var req refund.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return nil, nil, false
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	claims, _ := middleware.GetClaims(c)
	return &req, claims, true
}

func (h *RefundHandler) Approve(c *gin.Context) {
	req, claims, ok := h.bindDecision(c)
	if !ok {
		return
	}

	r, err := h.refunds.Approve(c.Request.Context(), claims, req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to process refund")
		return
	}
	response.Success(c, http.StatusOK, "Refund approved and processed", r)
}

func (h *RefundHandler) Reject(c *gin.Context) {
	req, claims, ok := h.bindDecision(c)
	if !ok {
		return
	}

	r, err := h.refunds.Reject(c.Request.Context(), claims, req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to reject refund")
		return
	}
	response.Success(c, http.StatusOK, "Refund request rejected", r)
}
