// internal/repository/postgres/admin_repo.go
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"saas-billing/internal/domain/admin"
	"saas-billing/internal/domain/refund"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/tier"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AdminRepository struct {
	db *pgxpool.Pool
}

func NewAdminRepository(db *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

func (r *AdminRepository) distribution(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load distribution: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (r *AdminRepository) CountUsers(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (r *AdminRepository) CountSubscriptions(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscriptions`)
}

func (r *AdminRepository) CountSubscriptionsByStatus(ctx context.Context) (map[string]int64, error) {
	return r.distribution(ctx, `SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
}

func (r *AdminRepository) CountSubscriptionsByTier(ctx context.Context) (map[string]int64, error) {
	return r.distribution(ctx, `
		SELECT t.name, COUNT(*)
		FROM subscriptions s
		JOIN subscription_tiers t ON t.id = s.tier_id
		GROUP BY t.name`)
}

func (r *AdminRepository) CountSubscriptionsCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscriptions WHERE created_at >= $1`, since)
}

func (r *AdminRepository) CountCancellationsSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscriptions WHERE cancelled_at >= $1`, since)
}

func (r *AdminRepository) ListActivePlans(ctx context.Context) ([]admin.ActivePlan, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.billing_cycle, t.price_monthly, t.price_yearly
		FROM subscriptions s
		JOIN subscription_tiers t ON t.id = s.tier_id
		WHERE s.status = $1`, subscription.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active plans: %w", err)
	}
	defer rows.Close()

	var plans []admin.ActivePlan
	for rows.Next() {
		var p admin.ActivePlan
		if err := rows.Scan(&p.BillingCycle, &p.PriceMonthly, &p.PriceYearly); err != nil {
			return nil, fmt.Errorf("failed to scan active plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (r *AdminRepository) SumPaidRevenue(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(total), 0)::float8 FROM invoices WHERE status = 'PAID'`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total, nil
}

// MonthlyRevenue groups PAID invoices by the month they were paid.
func (r *AdminRepository) MonthlyRevenue(ctx context.Context, since time.Time) ([]admin.MonthlyRevenue, error) {
	rows, err := r.db.Query(ctx, `
		SELECT to_char(date_trunc('month', COALESCE(paid_at, created_at)), 'YYYY-MM') AS month,
		       COALESCE(SUM(total), 0)::float8
		FROM invoices
		WHERE status = 'PAID' AND COALESCE(paid_at, created_at) >= $1
		GROUP BY month
		ORDER BY month ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly revenue: %w", err)
	}
	defer rows.Close()

	var out []admin.MonthlyRevenue
	for rows.Next() {
		var m admin.MonthlyRevenue
		if err := rows.Scan(&m.Month, &m.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan monthly revenue: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *AdminRepository) CountRefundsByStatus(ctx context.Context, status refund.Status) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM refund_requests WHERE status = $1`, status)
}

// ListUsers pages through users with their subscription and invoice count.
func (r *AdminRepository) ListUsers(ctx context.Context, f admin.UserFilters) ([]*admin.UserListItem, int64, error) {
	conditions := []string{}
	args := []any{}
	argPos := 1

	if f.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(u.email ILIKE $%d OR u.name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+f.Search+"%")
		argPos++
	}
	if f.Role != "" && !strings.EqualFold(f.Role, "all") {
		conditions = append(conditions, fmt.Sprintf("u.role = $%d", argPos))
		args = append(args, strings.ToUpper(f.Role))
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	total, err := r.count(ctx, fmt.Sprintf("SELECT COUNT(*) FROM users u %s", whereClause), args...)
	if err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	query := fmt.Sprintf(`
		SELECT u.id, u.email, u.name, u.role, u.created_at,
		       (SELECT COUNT(*) FROM invoices i WHERE i.user_id = u.id),
		       s.id, s.status, s.billing_cycle, s.start_date, s.renewal_date, s.cancelled_at,
		       t.id, t.name, t.price_monthly, t.price_yearly
		FROM users u
		LEFT JOIN subscriptions s ON s.user_id = u.id
		LEFT JOIN subscription_tiers t ON t.id = s.tier_id
		%s
		ORDER BY u.created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*admin.UserListItem{}
	for rows.Next() {
		var item admin.UserListItem
		var (
			subID, subStatus, subCycle *string
			startDate, renewalDate     *time.Time
			cancelledAt                *time.Time
			tierID, tierName           *string
			priceMonthly, priceYearly  *float64
		)
		if err := rows.Scan(
			&item.ID, &item.Email, &item.Name, &item.Role, &item.CreatedAt, &item.InvoiceCount,
			&subID, &subStatus, &subCycle, &startDate, &renewalDate, &cancelledAt,
			&tierID, &tierName, &priceMonthly, &priceYearly,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}

		if subID != nil {
			s := &subscription.Subscription{
				ID:           *subID,
				UserID:       item.ID,
				Status:       subscription.Status(deref(subStatus)),
				BillingCycle: subscription.BillingCycle(deref(subCycle)),
				CancelledAt:  cancelledAt,
			}
			if startDate != nil {
				s.StartDate = *startDate
			}
			if renewalDate != nil {
				s.RenewalDate = *renewalDate
			}
			if tierID != nil {
				s.TierID = *tierID
				s.Tier = &tier.Tier{ID: *tierID, Name: deref(tierName), PriceYearly: priceYearly}
				if priceMonthly != nil {
					s.Tier.PriceMonthly = *priceMonthly
				}
			}
			item.Subscription = s
		}
		users = append(users, &item)
	}
	return users, total, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
