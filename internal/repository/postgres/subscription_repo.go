// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/tier"
	xerrors "saas-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `s.id, s.user_id, s.tier_id, s.status, s.billing_cycle, s.start_date,
	s.renewal_date, s.trial_ends_at, s.cancelled_at, s.stripe_subscription_id,
	s.created_at, s.updated_at`

const subscriptionWithTier = `SELECT ` + subscriptionColumns + `,
	t.id, t.name, t.description, t.price_monthly, t.price_yearly, t.features,
	t.max_users, t.max_projects, t.max_api_calls, t.max_storage_gb,
	t.is_active, t.sort_order, t.created_at, t.updated_at
	FROM subscriptions s
	JOIN subscription_tiers t ON t.id = s.tier_id`

func subscriptionDest(s *subscription.Subscription) []any {
	return []any{
		&s.ID, &s.UserID, &s.TierID, &s.Status, &s.BillingCycle, &s.StartDate,
		&s.RenewalDate, &s.TrialEndsAt, &s.CancelledAt, &s.StripeSubscriptionID,
		&s.CreatedAt, &s.UpdatedAt,
	}
}

func scanSubscriptionWithTier(row interface{ Scan(...any) error }) (*subscription.Subscription, error) {
	var s subscription.Subscription
	t := &tier.Tier{}
	var featuresJSON []byte

	dest := append(subscriptionDest(&s),
		&t.ID, &t.Name, &t.Description, &t.PriceMonthly, &t.PriceYearly, &featuresJSON,
		&t.Limits.MaxUsers, &t.Limits.MaxProjects, &t.Limits.MaxAPICalls, &t.Limits.MaxStorageGB,
		&t.IsActive, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	t.Features = []string{}
	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &t.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
	}
	s.Tier = t
	return &s, nil
}

// FindByUserID returns the user's subscription joined with its tier.
func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*subscription.Subscription, error) {
	s, err := scanSubscriptionWithTier(r.db.QueryRow(ctx, subscriptionWithTier+` WHERE s.user_id = $1`, userID))
	if err != nil {
		return nil, mapError(err, "find subscription")
	}
	return s, nil
}

func (r *SubscriptionRepository) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*subscription.Subscription, error) {
	s, err := scanSubscriptionWithTier(r.db.QueryRow(ctx,
		subscriptionWithTier+` WHERE s.stripe_subscription_id = $1`, stripeSubscriptionID))
	if err != nil {
		return nil, mapError(err, "find subscription by stripe id")
	}
	return s, nil
}

// Upsert relies on the user_id unique constraint, so a re-subscription after
// cancellation reuses the row and keeps its id.
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, tier_id, status, billing_cycle, start_date,
			renewal_date, trial_ends_at, stripe_subscription_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			tier_id = EXCLUDED.tier_id,
			status = EXCLUDED.status,
			billing_cycle = EXCLUDED.billing_cycle,
			start_date = EXCLUDED.start_date,
			renewal_date = EXCLUDED.renewal_date,
			trial_ends_at = EXCLUDED.trial_ends_at,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			cancelled_at = NULL,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		s.ID, s.UserID, s.TierID, s.Status, s.BillingCycle, s.StartDate,
		s.RenewalDate, s.TrialEndsAt, s.StripeSubscriptionID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return mapError(err, "upsert subscription")
}

// UpdateStatus sets status and, when given, the renewal date.
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, status subscription.Status, renewalDate *time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = $1, renewal_date = COALESCE($2, renewal_date), updated_at = $3
		WHERE id = $4
	`
	result, err := r.db.Exec(ctx, query, status, renewalDate, time.Now(), id)
	if err != nil {
		return mapError(err, "update subscription status")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) UpdatePlan(ctx context.Context, id, tierID string, cycle subscription.BillingCycle) error {
	query := `UPDATE subscriptions SET tier_id = $1, billing_cycle = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.Exec(ctx, query, tierID, cycle, time.Now(), id)
	if err != nil {
		return mapError(err, "update subscription plan")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = $1, cancelled_at = COALESCE(cancelled_at, $2), updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.Exec(ctx, query, subscription.StatusCancelled, at, id)
	if err != nil {
		return mapError(err, "cancel subscription")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ExpireLapsed expires trials that ended before cutoff, and trials that never
// got a trial end and started before cutoff. start_date is reset on every
// upsert, created_at is not.
func (r *SubscriptionRepository) ExpireLapsed(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	query := `
		UPDATE subscriptions s
		SET status = $1, updated_at = NOW()
		WHERE s.status = $2
		  AND (
		        (s.trial_ends_at IS NOT NULL AND s.trial_ends_at < $3)
		     OR (s.trial_ends_at IS NULL AND s.start_date < $3)
		  )
		RETURNING ` + subscriptionColumns

	rows, err := r.db.Query(ctx, query, subscription.StatusExpired, subscription.StatusTrial, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	defer rows.Close()

	var expired []*subscription.Subscription
	for rows.Next() {
		var s subscription.Subscription
		if err := rows.Scan(subscriptionDest(&s)...); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		expired = append(expired, &s)
	}
	return expired, rows.Err()
}
