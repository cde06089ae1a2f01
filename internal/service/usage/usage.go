// internal/service/usage/usage.go
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/tier"
	"saas-billing/internal/domain/usage"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/metrics"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Window is the trailing period usage is summed over.
const Window = 30 * 24 * time.Hour

const recordListLimit = 500

type UsageService struct {
	records       usage.Repository
	subscriptions subscription.Repository
	logger        *zap.Logger
	now           func() time.Time
}

func NewUsageService(records usage.Repository, subscriptions subscription.Repository, logger *zap.Logger) *UsageService {
	return &UsageService{
		records:       records,
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
	}
}

// LimitFor returns the tier's cap for metric, or nil when unlimited.
func LimitFor(t *tier.Tier, metric usage.Metric) *float64 {
	if t == nil {
		return nil
	}
	var limit *int
	switch metric {
	case usage.MetricStorageGB:
		v := t.Limits.MaxStorageGB
		limit = &v
	case usage.MetricAPICalls:
		limit = t.Limits.MaxAPICalls
	case usage.MetricProjects:
		limit = t.Limits.MaxProjects
	case usage.MetricUsers:
		limit = t.Limits.MaxUsers
	}
	if limit == nil {
		return nil
	}
	f := float64(*limit)
	return &f
}

// Track appends a sample. Going over the plan limit is logged and counted,
// never refused.
func (s *UsageService) Track(ctx context.Context, userID string, metric usage.Metric, value float64) error {
	if !metric.Valid() {
		return xerrors.New(xerrors.ErrInvalidInput, "Unknown usage metric")
	}
	if value < 0 {
		return xerrors.New(xerrors.ErrInvalidInput, "Usage value must not be negative")
	}

	now := s.now()
	if err := s.records.Append(ctx, &usage.Record{
		ID:         ulid.Make().String(),
		UserID:     userID,
		Metric:     metric,
		Value:      value,
		RecordedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	sub, err := s.subscriptions.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		s.logger.Warn("usage limit check skipped", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	limit := LimitFor(sub.Tier, metric)
	if limit == nil {
		return nil
	}

	total, err := s.records.Sum(ctx, userID, metric, now.Add(-Window))
	if err != nil {
		s.logger.Warn("usage limit check skipped", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	if total > *limit {
		metrics.UsageLimitExceeded.WithLabelValues(string(metric)).Inc()
		s.logger.Warn("usage limit exceeded",
			zap.String("user_id", userID),
			zap.String("metric", string(metric)),
			zap.Float64("total", total),
			zap.Float64("limit", *limit),
		)
	}
	return nil
}

// Current sums every metric over the window, with the plan limit alongside.
func (s *UsageService) Current(ctx context.Context, userID string) ([]usage.Summary, error) {
	totals, err := s.records.SumByMetric(ctx, userID, s.now().Add(-Window))
	if err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}

	var t *tier.Tier
	sub, err := s.subscriptions.FindByUserID(ctx, userID)
	switch {
	case err == nil:
		t = sub.Tier
	case !errors.Is(err, xerrors.ErrNotFound):
		return nil, err
	}

	out := make([]usage.Summary, 0, len(usage.Metrics))
	for _, m := range usage.Metrics {
		out = append(out, usage.Summary{
			Metric: m,
			Total:  totals[m],
			Limit:  LimitFor(t, m),
		})
	}
	return out, nil
}

// List returns the raw samples of one metric over the window, newest first.
func (s *UsageService) List(ctx context.Context, userID string, metric usage.Metric) ([]*usage.Record, error) {
	if !metric.Valid() {
		return nil, xerrors.New(xerrors.ErrInvalidInput, "Unknown usage metric")
	}
	return s.records.List(ctx, userID, metric, s.now().Add(-Window), recordListLimit)
}
