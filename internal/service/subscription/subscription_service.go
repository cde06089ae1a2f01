// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/paymentmethod"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/events"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/metrics"
	"saas-billing/internal/pkg/payment"
	"saas-billing/internal/pkg/session"
	"saas-billing/internal/pkg/validation"
	"saas-billing/internal/service/email"
	tiersvc "saas-billing/internal/service/tier"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	checkoutLockTTL = 2 * time.Minute
	invoiceDueIn    = 7 * 24 * time.Hour
)

// PriceResolver maps a tier and billing cycle to a provider price id.
type PriceResolver interface {
	PriceID(tierName, cycle string) string
}

type SubscriptionService struct {
	subscriptions  subscription.Repository
	invoices       invoice.Repository
	users          auth.UserRepository
	paymentMethods paymentmethod.Repository
	tiers          *tiersvc.TierService
	gateway        payment.Gateway
	prices         PriceResolver
	locker         *session.Locker
	audit          audit.Logger
	notifier       *email.Notifier
	events         events.Publisher
	logger         *zap.Logger
	now            func() time.Time
}

func NewSubscriptionService(
	subscriptions subscription.Repository,
	invoices invoice.Repository,
	users auth.UserRepository,
	paymentMethods paymentmethod.Repository,
	tiers *tiersvc.TierService,
	gateway payment.Gateway,
	prices PriceResolver,
	locker *session.Locker,
	auditLog audit.Logger,
	notifier *email.Notifier,
	publisher events.Publisher,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptions:  subscriptions,
		invoices:       invoices,
		users:          users,
		paymentMethods: paymentMethods,
		tiers:          tiers,
		gateway:        gateway,
		prices:         prices,
		locker:         locker,
		audit:          auditLog,
		notifier:       notifier,
		events:         publisher,
		logger:         logger,
		now:            time.Now,
	}
}

func badRequest(msg string) *xerrors.Error {
	return xerrors.New(xerrors.ErrBadRequest, msg)
}

// validateCheckout runs the request-only checks. They precede every
// repository and provider call.
func validateCheckout(req *subscription.CheckoutRequest) error {
	if req.BillingAddress == nil || strings.TrimSpace(req.BillingAddress.Country) == "" {
		return badRequest("Billing address with country is required for export transactions")
	}
	if !validation.IsISO2(req.BillingAddress.Country) {
		return badRequest("Country code must be 2-letter ISO code (e.g., US, GB, IN)")
	}
	if strings.TrimSpace(req.TierID) == "" {
		return badRequest("Tier ID is required")
	}
	if !subscription.BillingCycle(req.BillingCycle).Valid() {
		return badRequest("Billing cycle must be MONTHLY or YEARLY")
	}
	return nil
}

// canCheckout reports whether an existing subscription allows a new one.
func canCheckout(s *subscription.Subscription) bool {
	return s.Status == subscription.StatusCancelled || s.Status == subscription.StatusExpired
}

// Checkout subscribes userID to a tier. Provider writes happen before any
// local write, and local writes are sequential with no rollback.
func (s *SubscriptionService) Checkout(ctx context.Context, userID string, req *subscription.CheckoutRequest) (resp *subscription.CheckoutResponse, err error) {
	defer func() {
		metrics.CheckoutsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	}()

	if err := validateCheckout(req); err != nil {
		return nil, err
	}
	cycle := subscription.BillingCycle(req.BillingCycle)

	t, err := s.tiers.Get(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, badRequest("This tier is no longer available")
	}

	// The existing-subscription check runs under the lock so two concurrent
	// checkouts cannot both pass it.
	release, err := s.locker.Acquire(ctx, session.CheckoutLockKey(userID), checkoutLockTTL)
	if err != nil {
		if errors.Is(err, session.ErrLockHeld) {
			return nil, badRequest("A checkout is already in progress")
		}
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	existing, err := s.subscriptions.FindByUserID(ctx, userID)
	switch {
	case err == nil:
		if !canCheckout(existing) {
			currentPlan := existing.TierID
			if existing.Tier != nil {
				currentPlan = existing.Tier.Name
			}
			return nil, badRequest("You already have an active subscription").
				WithData(map[string]interface{}{"currentPlan": currentPlan})
		}
	case !errors.Is(err, xerrors.ErrNotFound):
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.New(xerrors.ErrNotFound, "User not found")
		}
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, user, req)
	if err != nil {
		return nil, err
	}

	priceID := s.prices.PriceID(t.Name, string(cycle))
	if priceID == "" {
		s.logger.Error("missing stripe price id",
			zap.String("tier", t.Name),
			zap.String("cycle", string(cycle)),
		)
		return nil, xerrors.New(xerrors.ErrConfiguration, "Subscription pricing not configured")
	}

	description := fmt.Sprintf("%s - %s Subscription", t.Name, cycle.Label())
	result, err := s.gateway.CreateSubscription(ctx, payment.SubscriptionRequest{
		CustomerID:  customerID,
		PriceID:     priceID,
		Description: description,
		Metadata: map[string]string{
			"userId":       userID,
			"tierId":       t.ID,
			"billingCycle": string(cycle),
		},
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub := &subscription.Subscription{
		ID:                   ulid.Make().String(),
		UserID:               userID,
		TierID:               t.ID,
		Status:               subscription.StatusTrial,
		BillingCycle:         cycle,
		StartDate:            now,
		RenewalDate:          now,
		StripeSubscriptionID: &result.ID,
	}
	if result.Status == "active" {
		sub.Status = subscription.StatusActive
	}
	if result.CurrentPeriodEnd > 0 {
		sub.RenewalDate = time.Unix(result.CurrentPeriodEnd, 0)
	}
	if result.TrialEnd > 0 {
		trialEnd := time.Unix(result.TrialEnd, 0)
		sub.TrialEndsAt = &trialEnd
	}
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	amount := tiersvc.PriceFor(t, cycle)
	due := now.Add(invoiceDueIn)
	inv := &invoice.Invoice{
		ID:             ulid.Make().String(),
		UserID:         userID,
		SubscriptionID: &sub.ID,
		InvoiceNumber:  fmt.Sprintf("INV-%d-%s", now.UnixMilli(), prefix(userID, 8)),
		Subtotal:       amount,
		Tax:            0,
		Total:          amount,
		Status:         invoice.StatusPending,
		Description:    description,
		PeriodStart:    now,
		PeriodEnd:      sub.RenewalDate,
		DueDate:        &due,
	}
	if result.LatestInvoiceID != "" {
		inv.StripeInvoiceID = &result.LatestInvoiceID
	}
	if result.HostedInvoiceURL != "" {
		inv.HostedInvoiceURL = &result.HostedInvoiceURL
	}
	if inv, err = s.saveCheckoutInvoice(ctx, inv); err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, &audit.Entry{
		Action:   audit.ActionSubscriptionCreated,
		Entity:   "Subscription",
		EntityID: sub.ID,
		UserID:   &userID,
		NewValues: map[string]interface{}{
			"tier":                 t.Name,
			"billingCycle":         string(cycle),
			"stripeSubscriptionId": result.ID,
			"amount":               amount,
		},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	s.notifier.SubscriptionConfirmed(ctx, user.Email, user.Name, t.Name, cycle.Label(), amount)
	events.Emit(ctx, s.events, s.logger, events.New(events.SubscriptionCreated, userID, sub.ID, map[string]interface{}{
		"tier":         t.Name,
		"billingCycle": string(cycle),
		"status":       string(sub.Status),
	}))

	s.logger.Info("subscription created",
		zap.String("user_id", userID),
		zap.String("subscription_id", sub.ID),
		zap.String("tier", t.Name),
		zap.String("stripe_subscription_id", result.ID),
	)

	return &subscription.CheckoutResponse{
		Subscription: subscription.CheckoutSubscription{
			ID:           sub.ID,
			Status:       sub.Status,
			Tier:         subscription.TierSummary{ID: t.ID, Name: t.Name, Price: amount},
			BillingCycle: cycle,
			StartDate:    sub.StartDate,
			RenewalDate:  sub.RenewalDate,
			Features:     t.Features,
			Limits: subscription.LimitsView{
				MaxStorageGB: t.Limits.MaxStorageGB,
				MaxAPICalls:  t.Limits.MaxAPICalls,
				MaxProjects:  t.Limits.MaxProjects,
				MaxUsers:     t.Limits.MaxUsers,
			},
		},
		Invoice: subscription.CheckoutInvoice{
			ID:            inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			Amount:        inv.Total,
			DueDate:       dueOf(inv, due),
		},
		Message: fmt.Sprintf("Successfully subscribed to %s plan!", t.Name),
		URL:     result.HostedInvoiceURL,
	}, nil
}

// saveCheckoutInvoice mirrors the provider's first invoice. The invoice.created
// webhook can land before this write; the row it stored is returned instead.
func (s *SubscriptionService) saveCheckoutInvoice(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, error) {
	if inv.StripeInvoiceID == nil {
		if err := s.invoices.Create(ctx, inv); err != nil {
			return nil, fmt.Errorf("failed to save invoice: %w", err)
		}
		return inv, nil
	}

	created, err := s.invoices.CreateIfAbsent(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}
	if created {
		return inv, nil
	}

	stored, err := s.invoices.FindByStripeID(ctx, *inv.StripeInvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirrored invoice: %w", err)
	}
	s.logger.Info("checkout invoice already mirrored",
		zap.String("invoice_id", stored.ID),
		zap.String("stripe_invoice_id", *inv.StripeInvoiceID),
	)
	return stored, nil
}

func dueOf(inv *invoice.Invoice, fallback time.Time) time.Time {
	if inv.DueDate != nil {
		return *inv.DueDate
	}
	return fallback
}

// ensureCustomer reuses the user's provider customer or creates one.
func (s *SubscriptionService) ensureCustomer(ctx context.Context, user *auth.User, req *subscription.CheckoutRequest) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = user.Name
	}
	creq := payment.CustomerRequest{
		Email:   user.Email,
		Name:    name,
		Address: toPaymentAddress(req.BillingAddress),
		UserID:  user.ID,
	}
	if req.ShippingAddress != nil && req.ShippingAddress.Line1 != "" {
		shipping := toPaymentAddress(req.ShippingAddress)
		creq.Shipping = &shipping
	}

	customerID, err := s.gateway.CreateCustomer(ctx, creq)
	if err != nil {
		return "", err
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", fmt.Errorf("failed to save customer id: %w", err)
	}
	user.StripeCustomerID = &customerID
	return customerID, nil
}

func toPaymentAddress(a *subscription.Address) payment.Address {
	if a == nil {
		return payment.Address{}
	}
	return payment.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
