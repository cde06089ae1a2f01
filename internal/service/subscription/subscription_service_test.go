package subscription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/paymentmethod"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/tier"
	"saas-billing/internal/events"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/payment"
	"saas-billing/internal/pkg/session"
	"saas-billing/internal/service/email"
	tiersvc "saas-billing/internal/service/tier"
	"saas-billing/internal/testutil/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticPrices map[string]string

func (p staticPrices) PriceID(tierName, cycle string) string {
	return p[tierName+"/"+cycle]
}

type fixture struct {
	svc      *SubscriptionService
	subs     *mocks.SubscriptionRepo
	invoices *mocks.InvoiceRepo
	users    *mocks.UserRepo
	pms      *mocks.PaymentMethodRepo
	tiers    *mocks.TierRepo
	gateway  *mocks.Gateway
	audit    *mocks.AuditLog
	mailer   *mocks.Mailer
	events   *mocks.Publisher
	redis    *redis.Client
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		subs:     &mocks.SubscriptionRepo{},
		invoices: &mocks.InvoiceRepo{},
		users:    &mocks.UserRepo{},
		pms:      &mocks.PaymentMethodRepo{},
		tiers:    &mocks.TierRepo{},
		gateway:  &mocks.Gateway{},
		audit:    &mocks.AuditLog{},
		mailer:   &mocks.Mailer{},
		events:   &mocks.Publisher{},
		redis:    client,
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := zap.NewNop()
	f.svc = NewSubscriptionService(
		f.subs, f.invoices, f.users, f.pms,
		tiersvc.NewTierService(f.tiers, f.audit, logger),
		f.gateway,
		staticPrices{"Pro/MONTHLY": "price_pro_m", "Pro/YEARLY": "price_pro_y"},
		session.NewLocker(client),
		f.audit,
		email.NewNotifier(f.mailer, logger, "https://app.example.com"),
		f.events,
		logger,
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func proTier() *tier.Tier {
	yearly := 290.0
	maxProjects := 10
	return &tier.Tier{
		ID: "tier_pro", Name: "Pro", PriceMonthly: 29, PriceYearly: &yearly,
		Features: []string{"10 projects"}, IsActive: true,
		Limits: tier.Limits{MaxProjects: &maxProjects, MaxStorageGB: 50},
	}
}

func validCheckout() *subscription.CheckoutRequest {
	return &subscription.CheckoutRequest{
		TierID:       "tier_pro",
		BillingCycle: "MONTHLY",
		CustomerName: "Jane Doe",
		BillingAddress: &subscription.Address{
			Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "us",
		},
		IPAddress: "203.0.113.9",
		UserAgent: "test",
	}
}

const userID = "01HZXUSERAAAAAAAAAAAAAAAAA"

func (f *fixture) happyPath() {
	f.providerPath()
	f.invoices.On("CreateIfAbsent", mock.Anything, mock.AnythingOfType("*invoice.Invoice")).Return(true, nil)
}

// providerPath stubs every checkout step up to the invoice write.
func (f *fixture) providerPath() {
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(proTier(), nil)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(nil, xerrors.ErrNotFound)
	f.users.On("FindByID", mock.Anything, userID).Return(&auth.User{ID: userID, Email: "jane@example.com", Name: "Jane"}, nil)
	f.gateway.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(r payment.CustomerRequest) bool {
		return r.Email == "jane@example.com" && r.Address.Country == "US" && r.UserID == userID
	})).Return("cus_123", nil)
	f.users.On("SetStripeCustomerID", mock.Anything, userID, "cus_123").Return(nil)
	f.gateway.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(r payment.SubscriptionRequest) bool {
		return r.PriceID == "price_pro_m" && r.CustomerID == "cus_123" &&
			r.Description == "Pro - Monthly Subscription" && r.Metadata["userId"] == userID
	})).Return(&payment.SubscriptionResult{
		ID: "sub_123", Status: "incomplete", CurrentPeriodEnd: f.now.Add(30 * 24 * time.Hour).Unix(),
		LatestInvoiceID: "in_123", HostedInvoiceURL: "https://pay.stripe.com/in_123",
	}, nil)
	f.subs.On("Upsert", mock.Anything, mock.AnythingOfType("*subscription.Subscription")).Return(nil)
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)
	f.happyPath()

	resp, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	require.NoError(t, err)

	assert.Contains(t, []subscription.Status{subscription.StatusTrial, subscription.StatusActive}, resp.Subscription.Status)
	assert.Equal(t, "Pro", resp.Subscription.Tier.Name)
	assert.Equal(t, 29.0, resp.Subscription.Tier.Price)
	assert.Equal(t, 29.0, resp.Invoice.Amount)
	assert.Equal(t, f.now.Add(7*24*time.Hour), resp.Invoice.DueDate)
	assert.True(t, strings.HasPrefix(resp.Invoice.InvoiceNumber, "INV-"))
	assert.True(t, strings.HasSuffix(resp.Invoice.InvoiceNumber, "-01HZXUSE"))
	assert.Equal(t, "Successfully subscribed to Pro plan!", resp.Message)
	assert.Equal(t, "https://pay.stripe.com/in_123", resp.URL)
	assert.Equal(t, 50, resp.Subscription.Limits.MaxStorageGB)

	f.invoices.AssertCalled(t, "CreateIfAbsent", mock.Anything, mock.MatchedBy(func(inv *invoice.Invoice) bool {
		return inv.Status == invoice.StatusPending && inv.Tax == 0 && inv.Total == 29 &&
			inv.StripeInvoiceID != nil && *inv.StripeInvoiceID == "in_123"
	}))
	assert.Equal(t, []string{audit.ActionSubscriptionCreated}, f.audit.Actions())
	assert.Equal(t, "203.0.113.9", f.audit.Entries[0].IPAddress)
	assert.Equal(t, []string{"Subscription Confirmed"}, f.mailer.Subjects())
	assert.Equal(t, []string{events.SubscriptionCreated}, f.events.Types())

	exists, err := f.redis.Exists(context.Background(), session.CheckoutLockKey(userID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "lock released")
}

func TestCheckout_ValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *subscription.CheckoutRequest)
		want   string
	}{
		{"missing address", func(r *subscription.CheckoutRequest) { r.BillingAddress = nil }, "Billing address with country is required for export transactions"},
		{"missing country", func(r *subscription.CheckoutRequest) { r.BillingAddress.Country = " " }, "Billing address with country is required for export transactions"},
		{"bad country beats missing tier", func(r *subscription.CheckoutRequest) {
			r.BillingAddress.Country = "USA"
			r.TierID = ""
		}, "Country code must be 2-letter ISO code (e.g., US, GB, IN)"},
		{"missing tier", func(r *subscription.CheckoutRequest) { r.TierID = "" }, "Tier ID is required"},
		{"bad cycle", func(r *subscription.CheckoutRequest) { r.BillingCycle = "WEEKLY" }, "Billing cycle must be MONTHLY or YEARLY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validCheckout()
			tt.mutate(req)

			_, err := f.svc.Checkout(context.Background(), userID, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, xerrors.ErrBadRequest)
			assert.Equal(t, tt.want, xerrors.MessageOrDefault(err, ""))
			f.tiers.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
			f.gateway.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckout_TierChecks(t *testing.T) {
	t.Run("missing tier", func(t *testing.T) {
		f := newFixture(t)
		f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(nil, xerrors.ErrNotFound)

		_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
		assert.Equal(t, "Subscription tier not found", xerrors.MessageOrDefault(err, ""))
	})

	t.Run("inactive tier", func(t *testing.T) {
		f := newFixture(t)
		inactive := proTier()
		inactive.IsActive = false
		f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(inactive, nil)

		_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
		assert.Equal(t, "This tier is no longer available", xerrors.MessageOrDefault(err, ""))
	})
}

func TestCheckout_ExistingSubscriptionBlocksWithoutProviderCalls(t *testing.T) {
	f := newFixture(t)
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(proTier(), nil)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(&subscription.Subscription{
		ID: "s1", Status: subscription.StatusActive, Tier: &tier.Tier{Name: "Starter"},
	}, nil)

	_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	require.Error(t, err)
	assert.Equal(t, "You already have an active subscription", xerrors.MessageOrDefault(err, ""))
	xe, ok := xerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"currentPlan": "Starter"}, xe.Data)
	assert.Empty(t, f.gateway.Calls)
}

func TestCheckout_LockHeld(t *testing.T) {
	f := newFixture(t)
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(proTier(), nil)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(nil, xerrors.ErrNotFound)
	f.users.On("FindByID", mock.Anything, userID).Return(&auth.User{ID: userID}, nil)
	require.NoError(t, f.redis.Set(context.Background(), session.CheckoutLockKey(userID), "other", time.Minute).Err())

	_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	assert.Equal(t, "A checkout is already in progress", xerrors.MessageOrDefault(err, ""))
	assert.Empty(t, f.gateway.Calls)
	f.subs.AssertNotCalled(t, "FindByUserID", mock.Anything, mock.Anything)
}

func TestCheckout_ExistingSubscriptionReadUnderLock(t *testing.T) {
	f := newFixture(t)
	var lockedDuringRead bool
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(proTier(), nil)
	f.subs.On("FindByUserID", mock.Anything, userID).
		Run(func(mock.Arguments) {
			n, err := f.redis.Exists(context.Background(), session.CheckoutLockKey(userID)).Result()
			lockedDuringRead = err == nil && n == 1
		}).
		Return(&subscription.Subscription{ID: "s1", Status: subscription.StatusActive}, nil)

	_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	assert.Equal(t, "You already have an active subscription", xerrors.MessageOrDefault(err, ""))
	assert.True(t, lockedDuringRead, "subscription read happens while the checkout lock is held")

	exists, err := f.redis.Exists(context.Background(), session.CheckoutLockKey(userID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "lock released on the rejection path")
}

func TestCheckout_ConcurrentRequestsCreateOneSubscription(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	proceed := make(chan struct{})
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(proTier(), nil)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(nil, xerrors.ErrNotFound).Once()
	f.subs.On("FindByUserID", mock.Anything, userID).
		Return(&subscription.Subscription{ID: "s1", Status: subscription.StatusActive}, nil)
	cus := "cus_existing"
	f.users.On("FindByID", mock.Anything, userID).Return(&auth.User{ID: userID, Email: "j@x.com", StripeCustomerID: &cus}, nil)
	f.gateway.On("CreateSubscription", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-proceed
		}).
		Return(&payment.SubscriptionResult{ID: "sub_1", Status: "active"}, nil)
	f.subs.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	f.invoices.On("Create", mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.svc.Checkout(context.Background(), userID, validCheckout())
	}()
	<-entered

	_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	assert.Equal(t, "A checkout is already in progress", xerrors.MessageOrDefault(err, ""))

	close(proceed)
	wg.Wait()
	require.NoError(t, firstErr)

	_, err = f.svc.Checkout(context.Background(), userID, validCheckout())
	assert.Equal(t, "You already have an active subscription", xerrors.MessageOrDefault(err, ""))
	f.gateway.AssertNumberOfCalls(t, "CreateSubscription", 1)
	f.subs.AssertNumberOfCalls(t, "FindByUserID", 2)
}

func TestCheckout_InvoiceAlreadyMirroredByWebhook(t *testing.T) {
	f := newFixture(t)
	f.providerPath()
	webhookDue := f.now.Add(3 * 24 * time.Hour)
	f.invoices.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(false, nil)
	f.invoices.On("FindByStripeID", mock.Anything, "in_123").Return(&invoice.Invoice{
		ID: "inv_webhook", InvoiceNumber: "INV-WEBHOOK", Total: 29, DueDate: &webhookDue,
	}, nil)

	resp, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	require.NoError(t, err)
	assert.Equal(t, "inv_webhook", resp.Invoice.ID)
	assert.Equal(t, "INV-WEBHOOK", resp.Invoice.InvoiceNumber)
	assert.Equal(t, webhookDue, resp.Invoice.DueDate)
	f.invoices.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Equal(t, []string{audit.ActionSubscriptionCreated}, f.audit.Actions())
}

func TestCheckout_MissingPriceIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	cus := "cus_existing"
	enterprise := proTier()
	enterprise.Name = "Enterprise"
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(enterprise, nil)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(nil, xerrors.ErrNotFound)
	f.users.On("FindByID", mock.Anything, userID).Return(&auth.User{ID: userID, StripeCustomerID: &cus}, nil)

	_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	assert.ErrorIs(t, err, xerrors.ErrConfiguration)
	assert.Equal(t, "Subscription pricing not configured", xerrors.MessageOrDefault(err, ""))
	f.gateway.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
}

func TestCheckout_ProviderFailureWritesNothingLocally(t *testing.T) {
	f := newFixture(t)
	cus := "cus_existing"
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(proTier(), nil)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(nil, xerrors.ErrNotFound)
	f.users.On("FindByID", mock.Anything, userID).Return(&auth.User{ID: userID, StripeCustomerID: &cus}, nil)
	f.gateway.On("CreateSubscription", mock.Anything, mock.Anything).
		Return(nil, xerrors.New(xerrors.ErrPaymentProvider, "payment provider request failed"))

	_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	assert.ErrorIs(t, err, xerrors.ErrPaymentProvider)
	f.subs.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	f.invoices.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.invoices.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
	assert.Empty(t, f.audit.Entries)
}

func TestCheckout_AuditFailureFailsRequest(t *testing.T) {
	f := newFixture(t)
	f.happyPath()
	f.audit.Err = errors.New("audit db down")

	_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	require.Error(t, err)
	assert.Empty(t, f.mailer.Sent)
}

func TestCheckout_EmailFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.happyPath()
	f.mailer.Err = errors.New("smtp down")

	_, err := f.svc.Checkout(context.Background(), userID, validCheckout())
	assert.NoError(t, err)
}

func TestCheckout_ReusesStripeCustomerAndAllowsAfterCancel(t *testing.T) {
	f := newFixture(t)
	cus := "cus_existing"
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(proTier(), nil)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(&subscription.Subscription{ID: "s1", Status: subscription.StatusCancelled}, nil)
	f.users.On("FindByID", mock.Anything, userID).Return(&auth.User{ID: userID, Email: "j@x.com", StripeCustomerID: &cus}, nil)
	f.gateway.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(r payment.SubscriptionRequest) bool {
		return r.CustomerID == "cus_existing" && r.PriceID == "price_pro_y" && r.Description == "Pro - Annual Subscription"
	})).Return(&payment.SubscriptionResult{ID: "sub_9", Status: "active"}, nil)
	f.subs.On("Upsert", mock.Anything, mock.MatchedBy(func(s *subscription.Subscription) bool {
		return s.Status == subscription.StatusActive && s.RenewalDate.Equal(f.now)
	})).Return(nil)
	f.invoices.On("Create", mock.Anything, mock.MatchedBy(func(inv *invoice.Invoice) bool {
		return inv.Total == 290 && inv.StripeInvoiceID == nil
	})).Return(nil)

	req := validCheckout()
	req.BillingCycle = "YEARLY"
	resp, err := f.svc.Checkout(context.Background(), userID, req)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, resp.Subscription.Status)
	f.gateway.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
}

func stripeID(s string) *string { return &s }

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(&subscription.Subscription{
		ID: "s1", UserID: userID, Status: subscription.StatusActive, StripeSubscriptionID: stripeID("sub_1"),
	}, nil)
	f.gateway.On("CancelSubscription", mock.Anything, "sub_1").Return(nil)
	f.subs.On("MarkCancelled", mock.Anything, "s1", f.now).Return(nil)

	sub, err := f.svc.Cancel(context.Background(), userID, audit.Source{IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, sub.Status)
	assert.Equal(t, []string{audit.ActionSubscriptionCancelled}, f.audit.Actions())
	assert.Equal(t, []string{events.SubscriptionCancelled}, f.events.Types())
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	sub := &subscription.Subscription{ID: "s1", UserID: userID, Status: subscription.StatusActive, StripeSubscriptionID: stripeID("sub_1")}
	f.subs.On("FindByUserID", mock.Anything, userID).Return(sub, nil)
	f.gateway.On("PauseSubscription", mock.Anything, "sub_1").Return(nil)
	f.gateway.On("ResumeSubscription", mock.Anything, "sub_1").Return(nil)
	f.subs.On("UpdateStatus", mock.Anything, "s1", mock.Anything, (*time.Time)(nil)).Return(nil)

	paused, err := f.svc.Pause(context.Background(), userID, audit.Source{})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPaused, paused.Status)

	_, err = f.svc.Pause(context.Background(), userID, audit.Source{})
	assert.Equal(t, "Subscription is already paused", xerrors.MessageOrDefault(err, ""))

	resumed, err := f.svc.Resume(context.Background(), userID, audit.Source{})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, resumed.Status)

	assert.Equal(t, []string{audit.ActionSubscriptionPaused, audit.ActionSubscriptionResumed}, f.audit.Actions())
}

func TestChangePlan(t *testing.T) {
	f := newFixture(t)
	f.subs.On("FindByUserID", mock.Anything, userID).Return(&subscription.Subscription{
		ID: "s1", UserID: userID, TierID: "tier_pro", BillingCycle: subscription.CycleMonthly,
		Status: subscription.StatusActive, StripeSubscriptionID: stripeID("sub_1"),
	}, nil)
	f.tiers.On("FindByID", mock.Anything, "tier_pro").Return(proTier(), nil)
	f.gateway.On("UpdateSubscriptionPrice", mock.Anything, "sub_1", "price_pro_y", mock.Anything).
		Return(&payment.SubscriptionResult{ID: "sub_1", Status: "active"}, nil)
	f.subs.On("UpdatePlan", mock.Anything, "s1", "tier_pro", subscription.CycleYearly).Return(nil)

	sub, err := f.svc.ChangePlan(context.Background(), userID, &subscription.ChangePlanRequest{TierID: "tier_pro", BillingCycle: "YEARLY"})
	require.NoError(t, err)
	assert.Equal(t, subscription.CycleYearly, sub.BillingCycle)
	assert.Equal(t, []string{audit.ActionSubscriptionUpdated}, f.audit.Actions())

	_, err = f.svc.ChangePlan(context.Background(), userID, &subscription.ChangePlanRequest{TierID: "tier_pro", BillingCycle: "YEARLY"})
	assert.Equal(t, "You are already on this plan", xerrors.MessageOrDefault(err, ""))
}

func TestGetCurrentAndInvoices(t *testing.T) {
	f := newFixture(t)
	f.subs.On("FindByUserID", mock.Anything, "nobody").Return(nil, xerrors.ErrNotFound)
	f.invoices.On("FindForUser", mock.Anything, "inv_other", userID).Return(nil, xerrors.ErrNotFound)

	_, err := f.svc.GetCurrent(context.Background(), "nobody")
	assert.Equal(t, "No subscription found", xerrors.MessageOrDefault(err, ""))

	_, err = f.svc.GetInvoice(context.Background(), userID, "inv_other")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
	assert.Equal(t, "Invoice not found", xerrors.MessageOrDefault(err, ""))
}

func TestAttachPaymentMethod_FirstBecomesDefault(t *testing.T) {
	f := newFixture(t)
	cus := "cus_1"
	f.users.On("FindByID", mock.Anything, userID).Return(&auth.User{ID: userID, StripeCustomerID: &cus}, nil)
	f.gateway.On("AttachPaymentMethod", mock.Anything, "cus_1", "pm_card").
		Return(&payment.Card{ID: "pm_card", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}, nil)
	f.pms.On("CountByUser", mock.Anything, userID).Return(0, nil)
	f.pms.On("Create", mock.Anything, mock.MatchedBy(func(pm *paymentmethod.PaymentMethod) bool {
		return pm.IsDefault && pm.Last4 == "4242"
	})).Return(nil)
	f.gateway.On("SetDefaultPaymentMethod", mock.Anything, "cus_1", "pm_card").Return(nil)

	pm, err := f.svc.AttachPaymentMethod(context.Background(), userID, "pm_card")
	require.NoError(t, err)
	assert.True(t, pm.IsDefault)
	f.gateway.AssertExpectations(t)
}

func TestAttachPaymentMethod_SecondIsNotDefault(t *testing.T) {
	f := newFixture(t)
	cus := "cus_1"
	f.users.On("FindByID", mock.Anything, userID).Return(&auth.User{ID: userID, StripeCustomerID: &cus}, nil)
	f.gateway.On("AttachPaymentMethod", mock.Anything, "cus_1", "pm_2").Return(&payment.Card{ID: "pm_2"}, nil)
	f.pms.On("CountByUser", mock.Anything, userID).Return(1, nil)
	f.pms.On("Create", mock.Anything, mock.Anything).Return(nil)

	pm, err := f.svc.AttachPaymentMethod(context.Background(), userID, "pm_2")
	require.NoError(t, err)
	assert.False(t, pm.IsDefault)
	f.gateway.AssertNotCalled(t, "SetDefaultPaymentMethod", mock.Anything, mock.Anything, mock.Anything)
}

func TestDetachPaymentMethod_NotOwned(t *testing.T) {
	f := newFixture(t)
	f.pms.On("FindForUser", mock.Anything, "pm_x", userID).Return(nil, xerrors.ErrNotFound)

	err := f.svc.DetachPaymentMethod(context.Background(), userID, "pm_x")
	assert.Equal(t, "Payment method not found", xerrors.MessageOrDefault(err, ""))
	f.gateway.AssertNotCalled(t, "DetachPaymentMethod", mock.Anything, mock.Anything)
}
