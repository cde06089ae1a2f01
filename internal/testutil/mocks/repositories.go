// Package mocks holds testify mocks of the repository and gateway
// interfaces for service tests.
package mocks

import (
	"context"
	"time"

	"saas-billing/internal/domain/admin"
	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/paymentmethod"
	"saas-billing/internal/domain/refund"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/tier"
	"saas-billing/internal/domain/usage"

	"github.com/stretchr/testify/mock"
)

type UserRepo struct{ mock.Mock }

func (m *UserRepo) Create(ctx context.Context, u *auth.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *UserRepo) FindByID(ctx context.Context, id string) (*auth.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *UserRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *UserRepo) FindByStripeCustomerID(ctx context.Context, customerID string) (*auth.User, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *UserRepo) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	return m.Called(ctx, id, customerID).Error(0)
}

func (m *UserRepo) UpdateRole(ctx context.Context, id, role string) error {
	return m.Called(ctx, id, role).Error(0)
}

type TierRepo struct{ mock.Mock }

func (m *TierRepo) ListActive(ctx context.Context) ([]*tier.Tier, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tier.Tier), args.Error(1)
}

func (m *TierRepo) ListAll(ctx context.Context) ([]*tier.Tier, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tier.Tier), args.Error(1)
}

func (m *TierRepo) FindByID(ctx context.Context, id string) (*tier.Tier, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tier.Tier), args.Error(1)
}

func (m *TierRepo) FindByName(ctx context.Context, name string) (*tier.Tier, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tier.Tier), args.Error(1)
}

func (m *TierRepo) Create(ctx context.Context, t *tier.Tier) error {
	return m.Called(ctx, t).Error(0)
}

func (m *TierRepo) Update(ctx context.Context, t *tier.Tier) error {
	return m.Called(ctx, t).Error(0)
}

func (m *TierRepo) SetActive(ctx context.Context, id string, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

func (m *TierRepo) Upsert(ctx context.Context, t *tier.Tier) error {
	return m.Called(ctx, t).Error(0)
}

type SubscriptionRepo struct{ mock.Mock }

func (m *SubscriptionRepo) FindByUserID(ctx context.Context, userID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *SubscriptionRepo) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, stripeSubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *SubscriptionRepo) Upsert(ctx context.Context, s *subscription.Subscription) error {
	return m.Called(ctx, s).Error(0)
}

func (m *SubscriptionRepo) UpdateStatus(ctx context.Context, id string, status subscription.Status, renewalDate *time.Time) error {
	return m.Called(ctx, id, status, renewalDate).Error(0)
}

func (m *SubscriptionRepo) UpdatePlan(ctx context.Context, id, tierID string, cycle subscription.BillingCycle) error {
	return m.Called(ctx, id, tierID, cycle).Error(0)
}

func (m *SubscriptionRepo) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *SubscriptionRepo) ExpireLapsed(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*subscription.Subscription), args.Error(1)
}

type InvoiceRepo struct{ mock.Mock }

func (m *InvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	return m.Called(ctx, inv).Error(0)
}

func (m *InvoiceRepo) CreateIfAbsent(ctx context.Context, inv *invoice.Invoice) (bool, error) {
	args := m.Called(ctx, inv)
	return args.Bool(0), args.Error(1)
}

func (m *InvoiceRepo) FindByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *InvoiceRepo) FindByStripeID(ctx context.Context, stripeInvoiceID string) (*invoice.Invoice, error) {
	args := m.Called(ctx, stripeInvoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *InvoiceRepo) FindForUser(ctx context.Context, id, userID string) (*invoice.Invoice, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *InvoiceRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*invoice.Invoice, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*invoice.Invoice), args.Error(1)
}

func (m *InvoiceRepo) UpdateStatusByStripeID(ctx context.Context, stripeInvoiceID string, status invoice.Status, paidAt *time.Time) (int64, error) {
	args := m.Called(ctx, stripeInvoiceID, status, paidAt)
	return args.Get(0).(int64), args.Error(1)
}

type RefundRepo struct{ mock.Mock }

func (m *RefundRepo) Create(ctx context.Context, r *refund.Request) error {
	return m.Called(ctx, r).Error(0)
}

func (m *RefundRepo) FindByID(ctx context.Context, id string) (*refund.Request, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*refund.Request), args.Error(1)
}

func (m *RefundRepo) HasOpenForInvoice(ctx context.Context, invoiceID string) (bool, error) {
	args := m.Called(ctx, invoiceID)
	return args.Bool(0), args.Error(1)
}

func (m *RefundRepo) ListByUser(ctx context.Context, userID string) ([]*refund.Request, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*refund.Request), args.Error(1)
}

func (m *RefundRepo) ListByStatus(ctx context.Context, status refund.Status, limit int) ([]*refund.Request, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*refund.Request), args.Error(1)
}

func (m *RefundRepo) FindOpenByAmount(ctx context.Context, amount float64) (*refund.Request, error) {
	args := m.Called(ctx, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*refund.Request), args.Error(1)
}

func (m *RefundRepo) MarkRefunded(ctx context.Context, id, stripeRefundID string, processedBy *string, at time.Time) error {
	return m.Called(ctx, id, stripeRefundID, processedBy, at).Error(0)
}

func (m *RefundRepo) MarkRejected(ctx context.Context, id, note, processedBy string, at time.Time) error {
	return m.Called(ctx, id, note, processedBy, at).Error(0)
}

type UsageRepo struct{ mock.Mock }

func (m *UsageRepo) Append(ctx context.Context, r *usage.Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *UsageRepo) Sum(ctx context.Context, userID string, metric usage.Metric, since time.Time) (float64, error) {
	args := m.Called(ctx, userID, metric, since)
	return args.Get(0).(float64), args.Error(1)
}

func (m *UsageRepo) SumByMetric(ctx context.Context, userID string, since time.Time) (map[usage.Metric]float64, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[usage.Metric]float64), args.Error(1)
}

func (m *UsageRepo) List(ctx context.Context, userID string, metric usage.Metric, since time.Time, limit int) ([]*usage.Record, error) {
	args := m.Called(ctx, userID, metric, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*usage.Record), args.Error(1)
}

type PaymentMethodRepo struct{ mock.Mock }

func (m *PaymentMethodRepo) Create(ctx context.Context, pm *paymentmethod.PaymentMethod) error {
	return m.Called(ctx, pm).Error(0)
}

func (m *PaymentMethodRepo) ListByUser(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*paymentmethod.PaymentMethod), args.Error(1)
}

func (m *PaymentMethodRepo) FindForUser(ctx context.Context, id, userID string) (*paymentmethod.PaymentMethod, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentmethod.PaymentMethod), args.Error(1)
}

func (m *PaymentMethodRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *PaymentMethodRepo) SetDefault(ctx context.Context, id, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *PaymentMethodRepo) Delete(ctx context.Context, id, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

type AdminRepo struct{ mock.Mock }

func (m *AdminRepo) CountUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AdminRepo) CountSubscriptions(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AdminRepo) CountSubscriptionsByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *AdminRepo) CountSubscriptionsByTier(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *AdminRepo) CountSubscriptionsCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AdminRepo) CountCancellationsSince(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AdminRepo) ListActivePlans(ctx context.Context) ([]admin.ActivePlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]admin.ActivePlan), args.Error(1)
}

func (m *AdminRepo) SumPaidRevenue(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *AdminRepo) MonthlyRevenue(ctx context.Context, since time.Time) ([]admin.MonthlyRevenue, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]admin.MonthlyRevenue), args.Error(1)
}

func (m *AdminRepo) CountRefundsByStatus(ctx context.Context, status refund.Status) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AdminRepo) ListUsers(ctx context.Context, f admin.UserFilters) ([]*admin.UserListItem, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*admin.UserListItem), args.Get(1).(int64), args.Error(2)
}
