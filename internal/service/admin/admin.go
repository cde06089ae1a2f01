// internal/service/admin/admin.go
package admin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"saas-billing/internal/domain/admin"
	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/refund"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/tier"
	"saas-billing/internal/domain/usage"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/rbac"
	auditsvc "saas-billing/internal/service/audit"
	authsvc "saas-billing/internal/service/auth"
	"saas-billing/internal/service/email"
	tiersvc "saas-billing/internal/service/tier"

	"go.uber.org/zap"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	recentRefunds    = 10
	revenueMonths    = 6
	statsWindow      = 30 * 24 * time.Hour
	detailListLimit  = 100
	activityLimit    = 50
)

// ActivityReader reads back audit entries.
type ActivityReader interface {
	Query(ctx context.Context, f auditsvc.Filter) ([]*audit.Entry, error)
}

type AdminService struct {
	repo          admin.Repository
	users         auth.UserRepository
	subscriptions subscription.Repository
	invoices      invoice.Repository
	refunds       refund.Repository
	usage         usage.Repository
	activity      ActivityReader
	auth          *authsvc.AuthService
	notifier      *email.Notifier
	audit         audit.Logger
	logger        *zap.Logger
	now           func() time.Time
}

func NewAdminService(
	repo admin.Repository,
	users auth.UserRepository,
	subscriptions subscription.Repository,
	invoices invoice.Repository,
	refunds refund.Repository,
	usageRepo usage.Repository,
	activity ActivityReader,
	authService *authsvc.AuthService,
	notifier *email.Notifier,
	auditLog audit.Logger,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		repo:          repo,
		users:         users,
		subscriptions: subscriptions,
		invoices:      invoices,
		refunds:       refunds,
		usage:         usageRepo,
		activity:      activity,
		auth:          authService,
		notifier:      notifier,
		audit:         auditLog,
		logger:        logger,
		now:           time.Now,
	}
}

// ========== Dashboard ==========

// Stats is recomputed on every call.
func (s *AdminService) Stats(ctx context.Context) (*admin.Stats, error) {
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.repo.CountSubscriptionsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.repo.SumPaidRevenue(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.CountRefundsByStatus(ctx, refund.StatusPending)
	if err != nil {
		return nil, err
	}
	recent, err := s.refunds.ListByStatus(ctx, refund.StatusPending, recentRefunds)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []*refund.Request{}
	}

	return &admin.Stats{
		TotalUsers:           users,
		ActiveSubscriptions:  byStatus[string(subscription.StatusActive)],
		TotalRevenue:         revenue,
		PendingRefunds:       pending,
		RecentPendingRefunds: recent,
	}, nil
}

// SubscriptionStats reports distribution, recurring revenue and churn.
func (s *AdminService) SubscriptionStats(ctx context.Context) (*admin.SubscriptionStats, error) {
	now := s.now()
	since := now.Add(-statsWindow)

	byTier, err := s.repo.CountSubscriptionsByTier(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.repo.CountSubscriptionsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, err
	}
	firstMonth := monthStart(now).AddDate(0, -(revenueMonths - 1), 0)
	revenue, err := s.repo.MonthlyRevenue(ctx, firstMonth)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CountSubscriptionsCreatedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.repo.CountCancellationsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	var mrr float64
	for _, p := range plans {
		mrr += tiersvc.MonthlyEquivalent(&tier.Tier{PriceMonthly: p.PriceMonthly, PriceYearly: p.PriceYearly}, p.BillingCycle)
	}
	mrr = round2(mrr)

	var churn float64
	if total > 0 {
		churn = round2(float64(cancelled) / float64(total) * 100)
	}

	return &admin.SubscriptionStats{
		TierDistribution:   byTier,
		StatusDistribution: byStatus,
		MonthlyRevenue:     fillMonths(firstMonth, revenueMonths, revenue),
		MRR:                mrr,
		ARR:                round2(mrr * 12),
		NewSubscriptions:   created,
		ChurnRate:          churn,
	}, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// fillMonths returns n consecutive months from first, zero where no
// revenue was recorded.
func fillMonths(first time.Time, n int, rows []admin.MonthlyRevenue) []admin.MonthlyRevenue {
	byMonth := make(map[string]float64, len(rows))
	for _, r := range rows {
		byMonth[r.Month] = r.Revenue
	}
	out := make([]admin.MonthlyRevenue, 0, n)
	for i := 0; i < n; i++ {
		month := first.AddDate(0, i, 0).Format("2006-01")
		out = append(out, admin.MonthlyRevenue{Month: month, Revenue: byMonth[month]})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ========== Users ==========

func (s *AdminService) ListUsers(ctx context.Context, f admin.UserFilters) (*admin.UserListResponse, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}

	users, total, err := s.repo.ListUsers(ctx, f)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*admin.UserListItem{}
	}

	return &admin.UserListResponse{
		Users: users,
		Pagination: admin.Pagination{
			Page:       f.Page,
			Limit:      f.Limit,
			Total:      total,
			TotalPages: int((total + int64(f.Limit) - 1) / int64(f.Limit)),
		},
	}, nil
}

func (s *AdminService) findUser(ctx context.Context, id string) (*auth.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.New(xerrors.ErrNotFound, "User not found")
		}
		return nil, err
	}
	return u, nil
}

// GetUser returns the user with billing history, recent usage and activity.
func (s *AdminService) GetUser(ctx context.Context, id string) (*admin.UserDetail, error) {
	u, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &admin.UserDetail{
		UserListItem: admin.UserListItem{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      u.Role,
			CreatedAt: u.CreatedAt,
		},
	}

	sub, err := s.subscriptions.FindByUserID(ctx, id)
	switch {
	case err == nil:
		detail.Subscription = sub
	case !errors.Is(err, xerrors.ErrNotFound):
		return nil, err
	}

	if detail.Invoices, err = s.invoices.ListByUser(ctx, id, detailListLimit); err != nil {
		return nil, err
	}
	detail.InvoiceCount = int64(len(detail.Invoices))

	if detail.Refunds, err = s.refunds.ListByUser(ctx, id); err != nil {
		return nil, err
	}
	if detail.Usage, err = s.usage.List(ctx, id, "", s.now().Add(-statsWindow), detailListLimit); err != nil {
		return nil, err
	}

	if s.activity != nil {
		entries, err := s.activity.Query(ctx, auditsvc.Filter{UserID: id, Limit: activityLimit})
		if err != nil {
			s.logger.Warn("failed to load user activity", zap.String("user_id", id), zap.Error(err))
		} else {
			detail.Activity = entries
		}
	}
	return detail, nil
}

// InviteUser creates an account with a temporary password. When no
// invitation is sent the password is returned to the admin instead.
func (s *AdminService) InviteUser(ctx context.Context, adminID string, req *admin.InviteUserRequest) (*admin.InviteUserResponse, string, error) {
	if !rbac.ValidRole(req.Role) {
		return nil, "", xerrors.New(xerrors.ErrBadRequest, "Invalid role")
	}

	password, err := authsvc.GenerateTemporaryPassword()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate password: %w", err)
	}

	u, err := s.auth.CreateUser(ctx, req.Name, req.Email, password, req.Role)
	if err != nil {
		return nil, "", err
	}

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionUserInvited,
		Entity:    "User",
		EntityID:  u.ID,
		UserID:    &adminID,
		NewValues: map[string]interface{}{"email": u.Email, "role": u.Role},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})

	resp := &admin.InviteUserResponse{User: u}
	if req.ShouldSendInvite() {
		s.notifier.Invitation(ctx, u.Email, u.Name, password)
		return resp, "User created and invitation sent successfully", nil
	}
	resp.TemporaryPassword = password
	return resp, "User created successfully", nil
}

func (s *AdminService) UpdateUserRole(ctx context.Context, adminID, userID string, req *admin.UpdateRoleRequest) (*auth.User, error) {
	if !rbac.ValidRole(req.Role) {
		return nil, xerrors.New(xerrors.ErrBadRequest, "Invalid role")
	}

	u, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role == req.Role {
		return u, nil
	}
	if u.ID == adminID && req.Role != rbac.RoleAdmin {
		return nil, xerrors.New(xerrors.ErrBadRequest, "You cannot remove your own admin role")
	}

	if err := s.users.UpdateRole(ctx, u.ID, req.Role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	old := u.Role
	u.Role = req.Role

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionUserRoleChanged,
		Entity:    "User",
		EntityID:  u.ID,
		UserID:    &adminID,
		OldValues: map[string]interface{}{"role": old},
		NewValues: map[string]interface{}{"role": u.Role},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	s.logger.Info("user role changed",
		zap.String("user_id", u.ID),
		zap.String("admin_id", adminID),
		zap.String("role", u.Role),
	)
	return u, nil
}

func (s *AdminService) record(ctx context.Context, e *audit.Entry) {
	if err := s.audit.Log(ctx, e); err != nil {
		s.logger.Error("failed to write audit entry",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}
