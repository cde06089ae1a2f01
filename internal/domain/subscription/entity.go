// internal/domain/subscription/entity.go
package subscription

import (
	"context"
	"time"

	"saas-billing/internal/domain/tier"
)

type Status string

const (
	StatusTrial     Status = "TRIAL"
	StatusActive    Status = "ACTIVE"
	StatusPastDue   Status = "PAST_DUE"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleYearly  BillingCycle = "YEARLY"
)

// Valid reports whether c is a supported billing cycle.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// Label is the human form used in descriptions.
func (c BillingCycle) Label() string {
	if c == CycleYearly {
		return "Annual"
	}
	return "Monthly"
}

// Subscription is one-to-one with a user. Tier is populated by queries that
// join the catalog.
type Subscription struct {
	ID                   string       `json:"id" db:"id"`
	UserID               string       `json:"userId" db:"user_id"`
	TierID               string       `json:"tierId" db:"tier_id"`
	Status               Status       `json:"status" db:"status"`
	BillingCycle         BillingCycle `json:"billingCycle" db:"billing_cycle"`
	StartDate            time.Time    `json:"startDate" db:"start_date"`
	RenewalDate          time.Time    `json:"renewalDate" db:"renewal_date"`
	TrialEndsAt          *time.Time   `json:"trialEndsAt,omitempty" db:"trial_ends_at"`
	CancelledAt          *time.Time   `json:"cancelledAt,omitempty" db:"cancelled_at"`
	StripeSubscriptionID *string      `json:"stripeSubscriptionId,omitempty" db:"stripe_subscription_id"`
	CreatedAt            time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time    `json:"updatedAt" db:"updated_at"`

	Tier *tier.Tier `json:"tier,omitempty"`
}

// Repository is the persistence contract for subscriptions.
type Repository interface {
	FindByUserID(ctx context.Context, userID string) (*Subscription, error)
	FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	// Upsert inserts or replaces the user's row, keyed on user_id, and sets s.ID.
	Upsert(ctx context.Context, s *Subscription) error
	UpdateStatus(ctx context.Context, id string, status Status, renewalDate *time.Time) error
	UpdatePlan(ctx context.Context, id, tierID string, cycle BillingCycle) error
	MarkCancelled(ctx context.Context, id string, at time.Time) error
	// ExpireLapsed marks stale trials EXPIRED and returns the affected rows.
	ExpireLapsed(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
}
