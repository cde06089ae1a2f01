// internal/handlers/usage/usage_handler.go
package usage

import (
	"context"
	"net/http"
	"strings"

	"saas-billing/internal/domain/usage"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Meter interface {
	Track(ctx context.Context, userID string, metric usage.Metric, value float64) error
	Current(ctx context.Context, userID string) ([]usage.Summary, error)
	List(ctx context.Context, userID string, metric usage.Metric) ([]*usage.Record, error)
}

type UsageHandler struct {
	meter  Meter
	logger *zap.Logger
}

func NewUsageHandler(meter Meter, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		meter:  meter,
		logger: logger,
	}
}

// Track records one sample. Exceeding a plan limit is not an error here.
func (h *UsageHandler) Track(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req usage.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Failed to track usage")
		return
	}

	if err := h.meter.Track(c.Request.Context(), userID, usage.Metric(req.Metric), *req.Value); err != nil {
		h.logger.Warn("usage tracking failed",
			zap.String("user_id", userID),
			zap.String("metric", req.Metric),
			zap.Error(err),
		)
		response.Error(c, http.StatusBadRequest, "Failed to track usage")
		return
	}

	response.Success(c, http.StatusOK, "Usage tracked", nil)
}

func (h *UsageHandler) Current(c *gin.Context) {
	summary, err := h.meter.Current(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load usage")
		return
	}
	response.Success(c, http.StatusOK, "Usage retrieved", summary)
}

func (h *UsageHandler) ByMetric(c *gin.Context) {
	metric := usage.Metric(strings.ToUpper(c.Param("metric")))

	records, err := h.meter.List(c.Request.Context(), middleware.MustGetUserID(c), metric)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load usage")
		return
	}
	if records == nil {
		records = []*usage.Record{}
	}
	response.Success(c, http.StatusOK, "Usage retrieved", records)
}
