package jobs

import (
	"context"
	"time"

	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/events"

	"go.uber.org/zap"
)

// ExpireGrace is how long a trial or incomplete checkout may sit before it
// is expired.
const ExpireGrace = 24 * time.Hour

// ExpireLapsed marks stale trials and abandoned checkouts EXPIRED.
type ExpireLapsed struct {
	subscriptions subscription.Repository
	events        events.Publisher
	logger        *zap.Logger
	now           func() time.Time
}

func NewExpireLapsed(subscriptions subscription.Repository, publisher events.Publisher, logger *zap.Logger) *ExpireLapsed {
	return &ExpireLapsed{
		subscriptions: subscriptions,
		events:        publisher,
		logger:        logger,
		now:           time.Now,
	}
}

func (j *ExpireLapsed) Name() string { return "expire_lapsed" }

func (j *ExpireLapsed) Run(ctx context.Context) error {
	expired, err := j.subscriptions.ExpireLapsed(ctx, j.now().Add(-ExpireGrace))
	if err != nil {
		return err
	}

	for _, s := range expired {
		j.logger.Info("subscription expired",
			zap.String("subscription_id", s.ID),
			zap.String("user_id", s.UserID),
		)
		events.Emit(ctx, j.events, j.logger, events.New(events.SubscriptionExpired, s.UserID, s.ID, map[string]interface{}{
			"tierId": s.TierID,
		}))
	}
	if len(expired) > 0 {
		j.logger.Info("expired lapsed subscriptions", zap.Int("count", len(expired)))
	}
	return nil
}
