// internal/service/webhook/webhook.go
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/refund"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/events"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/metrics"
	"saas-billing/internal/pkg/payment"
	"saas-billing/internal/pkg/session"
	"saas-billing/internal/service/email"

	"github.com/oklog/ulid/v2"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
)

// DedupTTL is how long a processed event id is remembered. Stripe retries
// for up to three days.
const DedupTTL = 72 * time.Hour

type handlerFunc func(ctx context.Context, e *payment.Event) error

// WebhookService applies verified Stripe events to local state. Every
// handler sets rows to a target state, so replays converge.
type WebhookService struct {
	gateway       payment.Gateway
	subscriptions subscription.Repository
	invoices      invoice.Repository
	refunds       refund.Repository
	users         auth.UserRepository
	locker        *session.Locker
	notifier      *email.Notifier
	events        events.Publisher
	logger        *zap.Logger
	now           func() time.Time

	handlers map[string]handlerFunc
}

func NewWebhookService(
	gateway payment.Gateway,
	subscriptions subscription.Repository,
	invoices invoice.Repository,
	refunds refund.Repository,
	users auth.UserRepository,
	locker *session.Locker,
	notifier *email.Notifier,
	publisher events.Publisher,
	logger *zap.Logger,
) *WebhookService {
	s := &WebhookService{
		gateway:       gateway,
		subscriptions: subscriptions,
		invoices:      invoices,
		refunds:       refunds,
		users:         users,
		locker:        locker,
		notifier:      notifier,
		events:        publisher,
		logger:        logger,
		now:           time.Now,
	}
	s.handlers = map[string]handlerFunc{
		"customer.subscription.created": s.onSubscriptionCreated,
		"customer.subscription.updated": s.onSubscriptionUpdated,
		"customer.subscription.deleted": s.onSubscriptionDeleted,
		"invoice.created":               s.onInvoiceCreated,
		"invoice.payment_succeeded":     s.onInvoicePaid,
		"invoice.payment_failed":        s.onInvoiceFailed,
		"charge.refunded":               s.onChargeRefunded,
	}
	return s
}

// Handle verifies payload and dispatches it. Verification failures touch
// nothing. An event id is marked processed only after its handler succeeds.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return xerrors.New(xerrors.ErrBadRequest, "Missing signature")
	}

	event, err := s.gateway.ConstructEvent(payload, signature)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return err
	}

	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	seen, err := s.locker.IsEventProcessed(ctx, event.ID)
	if err != nil {
		log.Warn("webhook dedup lookup failed, processing anyway", zap.Error(err))
	}
	if seen {
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
		log.Info("webhook event already processed")
		return nil
	}

	handler, ok := s.handlers[event.Type]
	if !ok {
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		log.Info("unhandled webhook event type")
		return nil
	}

	if err := handler(ctx, event); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		log.Error("webhook handler failed", zap.Error(err))
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues(event.Type, "success").Inc()

	if err := s.locker.MarkEventProcessed(ctx, event.ID, DedupTTL); err != nil {
		log.Warn("failed to mark webhook event processed", zap.Error(err))
	}
	return nil
}

func decode(e *payment.Event, v interface{}) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// ========== Subscriptions ==========

func (s *WebhookService) onSubscriptionCreated(ctx context.Context, e *payment.Event) error {
	var sub stripe.Subscription
	if err := decode(e, &sub); err != nil {
		return err
	}
	s.logger.Info("stripe subscription created",
		zap.String("stripe_subscription_id", sub.ID),
		zap.String("status", string(sub.Status)),
	)
	return nil
}

func (s *WebhookService) onSubscriptionUpdated(ctx context.Context, e *payment.Event) error {
	var sub stripe.Subscription
	if err := decode(e, &sub); err != nil {
		return err
	}

	local, err := s.subscriptions.FindByStripeID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("subscription not found for update", zap.String("stripe_subscription_id", sub.ID))
			return nil
		}
		return err
	}

	status := payment.MapSubscriptionStatus(string(sub.Status))
	var renewal *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		renewal = &t
	}
	if err := s.subscriptions.UpdateStatus(ctx, local.ID, status, renewal); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	events.Emit(ctx, s.events, s.logger, events.New(events.SubscriptionUpdated, local.UserID, local.ID, map[string]interface{}{
		"status": string(status),
	}))
	return nil
}

func (s *WebhookService) onSubscriptionDeleted(ctx context.Context, e *payment.Event) error {
	var sub stripe.Subscription
	if err := decode(e, &sub); err != nil {
		return err
	}

	local, err := s.subscriptions.FindByStripeID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("subscription not found for deletion", zap.String("stripe_subscription_id", sub.ID))
			return nil
		}
		return err
	}

	if err := s.subscriptions.MarkCancelled(ctx, local.ID, s.now()); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	events.Emit(ctx, s.events, s.logger, events.New(events.SubscriptionCancelled, local.UserID, local.ID, nil))
	return nil
}

// ========== Invoices ==========

func customerID(inv *stripe.Invoice) string {
	if inv.Customer == nil {
		return ""
	}
	return inv.Customer.ID
}

// userForCustomer returns nil when no local user owns the customer.
func (s *WebhookService) userForCustomer(ctx context.Context, customer string) (*auth.User, error) {
	if customer == "" {
		return nil, nil
	}
	u, err := s.users.FindByStripeCustomerID(ctx, customer)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (s *WebhookService) onInvoiceCreated(ctx context.Context, e *payment.Event) error {
	var inv stripe.Invoice
	if err := decode(e, &inv); err != nil {
		return err
	}

	user, err := s.userForCustomer(ctx, customerID(&inv))
	if err != nil {
		return err
	}
	if user == nil {
		s.logger.Warn("no user for invoice customer",
			zap.String("stripe_invoice_id", inv.ID),
			zap.String("stripe_customer_id", customerID(&inv)),
		)
		return nil
	}

	now := s.now()
	number := inv.Number
	if number == "" {
		number = fmt.Sprintf("INV-%d", now.UnixMilli())
	}
	description := inv.Description
	if description == "" {
		description = "Subscription Invoice"
	}

	local := &invoice.Invoice{
		ID:              ulid.Make().String(),
		UserID:          user.ID,
		InvoiceNumber:   number,
		StripeInvoiceID: &inv.ID,
		Subtotal:        payment.FromCents(inv.Subtotal),
		Tax:             0,
		Total:           payment.FromCents(inv.Total),
		Status:          invoice.StatusPending,
		Description:     description,
		PeriodStart:     time.Unix(inv.PeriodStart, 0),
		PeriodEnd:       time.Unix(inv.PeriodEnd, 0),
	}
	if inv.DueDate > 0 {
		due := time.Unix(inv.DueDate, 0)
		local.DueDate = &due
	}
	if inv.HostedInvoiceURL != "" {
		local.HostedInvoiceURL = &inv.HostedInvoiceURL
	}
	if inv.Subscription != nil && inv.Subscription.ID != "" {
		if sub, err := s.subscriptions.FindByStripeID(ctx, inv.Subscription.ID); err == nil {
			local.SubscriptionID = &sub.ID
		}
	}

	created, err := s.invoices.CreateIfAbsent(ctx, local)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	if !created {
		s.logger.Info("invoice already recorded", zap.String("stripe_invoice_id", inv.ID))
	}
	return nil
}

func (s *WebhookService) onInvoicePaid(ctx context.Context, e *payment.Event) error {
	var inv stripe.Invoice
	if err := decode(e, &inv); err != nil {
		return err
	}

	paidAt := s.now()
	n, err := s.invoices.UpdateStatusByStripeID(ctx, inv.ID, invoice.StatusPaid, &paidAt)
	if err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	if n == 0 {
		s.logger.Warn("no local invoice for paid stripe invoice", zap.String("stripe_invoice_id", inv.ID))
	}

	user, err := s.userForCustomer(ctx, customerID(&inv))
	if err != nil {
		s.logger.Warn("failed to resolve invoice customer", zap.Error(err))
		return nil
	}
	if user == nil {
		return nil
	}

	amount := payment.FromCents(inv.AmountPaid)
	s.notifier.PaymentReceived(ctx, user.Email, amount)
	events.Emit(ctx, s.events, s.logger, events.New(events.InvoicePaid, user.ID, inv.ID, map[string]interface{}{
		"amount": amount,
	}))
	return nil
}

func (s *WebhookService) onInvoiceFailed(ctx context.Context, e *payment.Event) error {
	var inv stripe.Invoice
	if err := decode(e, &inv); err != nil {
		return err
	}

	if _, err := s.invoices.UpdateStatusByStripeID(ctx, inv.ID, invoice.StatusFailed, nil); err != nil {
		return fmt.Errorf("failed to mark invoice failed: %w", err)
	}

	user, err := s.userForCustomer(ctx, customerID(&inv))
	if err != nil {
		s.logger.Warn("failed to resolve invoice customer", zap.Error(err))
		return nil
	}
	if user == nil {
		return nil
	}

	amount := payment.FromCents(inv.AmountDue)
	s.notifier.PaymentFailed(ctx, user.Email, amount)
	events.Emit(ctx, s.events, s.logger, events.New(events.InvoiceFailed, user.ID, inv.ID, map[string]interface{}{
		"amount": amount,
	}))
	return nil
}

// ========== Refunds ==========

func (s *WebhookService) onChargeRefunded(ctx context.Context, e *payment.Event) error {
	var ch stripe.Charge
	if err := decode(e, &ch); err != nil {
		return err
	}

	refundID := ch.ID
	var requestID string
	if ch.Refunds != nil {
		for i, r := range ch.Refunds.Data {
			if i == 0 {
				refundID = r.ID
			}
			if id := r.Metadata["refundRequestId"]; id != "" && requestID == "" {
				requestID = id
			}
		}
	}

	req, err := s.matchRefund(ctx, requestID, &ch)
	if err != nil {
		return err
	}
	if req == nil {
		s.logger.Warn("no refund request matches charge", zap.String("stripe_charge_id", ch.ID))
		return nil
	}
	if req.Status == refund.StatusRefunded {
		return nil
	}

	if err := s.refunds.MarkRefunded(ctx, req.ID, refundID, nil, s.now()); err != nil {
		return fmt.Errorf("failed to mark refund: %w", err)
	}
	events.Emit(ctx, s.events, s.logger, events.New(events.RefundRefunded, req.UserID, req.ID, map[string]interface{}{
		"amount": req.Amount,
	}))
	return nil
}

// matchRefund prefers the refundRequestId metadata and falls back to the
// oldest open request with the refunded amount.
func (s *WebhookService) matchRefund(ctx context.Context, requestID string, ch *stripe.Charge) (*refund.Request, error) {
	if requestID != "" {
		req, err := s.refunds.FindByID(ctx, requestID)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}

	cents := ch.AmountRefunded
	if cents == 0 {
		cents = ch.Amount
	}
	req, err := s.refunds.FindOpenByAmount(ctx, payment.FromCents(cents))
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}
