// internal/domain/admin/entity.go
package admin

import (
	"context"
	"time"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/refund"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/usage"
)

type Stats struct {
	TotalUsers           int64             `json:"totalUsers"`
	ActiveSubscriptions  int64             `json:"activeSubscriptions"`
	TotalRevenue         float64           `json:"totalRevenue"`
	PendingRefunds       int64             `json:"pendingRefunds"`
	RecentPendingRefunds []*refund.Request `json:"recentPendingRefunds"`
}

type MonthlyRevenue struct {
	Month   string  `json:"month"` // YYYY-MM
	Revenue float64 `json:"revenue"`
}

type SubscriptionStats struct {
	TierDistribution   map[string]int64 `json:"tierDistribution"`
	StatusDistribution map[string]int64 `json:"statusDistribution"`
	MonthlyRevenue     []MonthlyRevenue `json:"monthlyRevenue"`
	MRR                float64          `json:"mrr"`
	ARR                float64          `json:"arr"`
	NewSubscriptions   int64            `json:"newSubscriptions"`
	ChurnRate          float64          `json:"churnRate"`
}

// ActivePlan is one ACTIVE subscription's contribution to recurring revenue.
type ActivePlan struct {
	BillingCycle subscription.BillingCycle
	PriceMonthly float64
	PriceYearly  *float64
}

type UserListItem struct {
	ID           string                     `json:"id"`
	Email        string                     `json:"email"`
	Name         string                     `json:"name"`
	Role         string                     `json:"role"`
	CreatedAt    time.Time                  `json:"createdAt"`
	Subscription *subscription.Subscription `json:"subscription,omitempty"`
	InvoiceCount int64                      `json:"invoiceCount"`
}

type UserDetail struct {
	UserListItem
	Invoices []*invoice.Invoice `json:"invoices"`
	Refunds  []*refund.Request  `json:"refunds"`
	Usage    []*usage.Record    `json:"usage"`
	Activity []*audit.Entry     `json:"activity"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type UserListResponse struct {
	Users      []*UserListItem `json:"users"`
	Pagination Pagination      `json:"pagination"`
}

// Repository serves the read-mostly aggregate queries behind admin views.
type Repository interface {
	CountUsers(ctx context.Context) (int64, error)
	CountSubscriptionsByStatus(ctx context.Context) (map[string]int64, error)
	CountSubscriptionsByTier(ctx context.Context) (map[string]int64, error)
	CountSubscriptions(ctx context.Context) (int64, error)
	CountSubscriptionsCreatedSince(ctx context.Context, since time.Time) (int64, error)
	CountCancellationsSince(ctx context.Context, since time.Time) (int64, error)
	ListActivePlans(ctx context.Context) ([]ActivePlan, error)
	SumPaidRevenue(ctx context.Context) (float64, error)
	MonthlyRevenue(ctx context.Context, since time.Time) ([]MonthlyRevenue, error)
	CountRefundsByStatus(ctx context.Context, status refund.Status) (int64, error)
	ListUsers(ctx context.Context, f UserFilters) ([]*UserListItem, int64, error)
}
