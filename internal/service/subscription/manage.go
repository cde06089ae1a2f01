package subscription

import (
	"context"
	"errors"
	"fmt"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/events"
	xerrors "saas-billing/internal/pkg/errors"

	"go.uber.org/zap"
)

const invoiceListLimit = 100

var errNoSubscription = xerrors.New(xerrors.ErrNotFound, "No subscription found")

// GetCurrent returns the caller's subscription with its tier.
func (s *SubscriptionService) GetCurrent(ctx context.Context, userID string) (*subscription.Subscription, error) {
	sub, err := s.subscriptions.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, errNoSubscription
		}
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) live(ctx context.Context, userID string) (*subscription.Subscription, error) {
	sub, err := s.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusCancelled || sub.Status == subscription.StatusExpired {
		return nil, errNoSubscription
	}
	return sub, nil
}

// ChangePlan moves the subscription to another tier or cycle, letting the
// provider prorate the difference.
func (s *SubscriptionService) ChangePlan(ctx context.Context, userID string, req *subscription.ChangePlanRequest) (*subscription.Subscription, error) {
	cycle := subscription.BillingCycle(req.BillingCycle)
	if !cycle.Valid() {
		return nil, badRequest("Billing cycle must be MONTHLY or YEARLY")
	}

	sub, err := s.live(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.TierID == req.TierID && sub.BillingCycle == cycle {
		return nil, badRequest("You are already on this plan")
	}

	t, err := s.tiers.Get(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, badRequest("This tier is no longer available")
	}

	priceID := s.prices.PriceID(t.Name, string(cycle))
	if priceID == "" {
		return nil, xerrors.New(xerrors.ErrConfiguration, "Subscription pricing not configured")
	}

	if sub.StripeSubscriptionID != nil {
		if _, err := s.gateway.UpdateSubscriptionPrice(ctx, *sub.StripeSubscriptionID, priceID, map[string]string{
			"userId":       userID,
			"tierId":       t.ID,
			"billingCycle": string(cycle),
		}); err != nil {
			return nil, err
		}
	}

	if err := s.subscriptions.UpdatePlan(ctx, sub.ID, t.ID, cycle); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}

	old := map[string]interface{}{"tierId": sub.TierID, "billingCycle": string(sub.BillingCycle)}
	sub.TierID = t.ID
	sub.BillingCycle = cycle
	sub.Tier = t

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionSubscriptionUpdated,
		Entity:    "Subscription",
		EntityID:  sub.ID,
		UserID:    &userID,
		OldValues: old,
		NewValues: map[string]interface{}{"tierId": t.ID, "tier": t.Name, "billingCycle": string(cycle)},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	events.Emit(ctx, s.events, s.logger, events.New(events.SubscriptionUpdated, userID, sub.ID, map[string]interface{}{
		"tier":         t.Name,
		"billingCycle": string(cycle),
	}))
	return sub, nil
}

// Pause stops collection while keeping the subscription.
func (s *SubscriptionService) Pause(ctx context.Context, userID string, src audit.Source) (*subscription.Subscription, error) {
	sub, err := s.live(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusPaused {
		return nil, badRequest("Subscription is already paused")
	}

	if sub.StripeSubscriptionID != nil {
		if err := s.gateway.PauseSubscription(ctx, *sub.StripeSubscriptionID); err != nil {
			return nil, err
		}
	}
	return s.transition(ctx, sub, subscription.StatusPaused, audit.ActionSubscriptionPaused, events.SubscriptionPaused, src)
}

func (s *SubscriptionService) Resume(ctx context.Context, userID string, src audit.Source) (*subscription.Subscription, error) {
	sub, err := s.live(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscription.StatusPaused {
		return nil, badRequest("Subscription is not paused")
	}

	if sub.StripeSubscriptionID != nil {
		if err := s.gateway.ResumeSubscription(ctx, *sub.StripeSubscriptionID); err != nil {
			return nil, err
		}
	}
	return s.transition(ctx, sub, subscription.StatusActive, audit.ActionSubscriptionResumed, events.SubscriptionResumed, src)
}

// Cancel ends the subscription immediately.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string, src audit.Source) (*subscription.Subscription, error) {
	sub, err := s.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusCancelled {
		return nil, badRequest("Subscription is already cancelled")
	}

	if sub.StripeSubscriptionID != nil {
		if err := s.gateway.CancelSubscription(ctx, *sub.StripeSubscriptionID); err != nil {
			return nil, err
		}
	}

	at := s.now()
	if err := s.subscriptions.MarkCancelled(ctx, sub.ID, at); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	old := sub.Status
	sub.Status = subscription.StatusCancelled
	sub.CancelledAt = &at

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionSubscriptionCancelled,
		Entity:    "Subscription",
		EntityID:  sub.ID,
		UserID:    &userID,
		OldValues: map[string]interface{}{"status": string(old)},
		NewValues: map[string]interface{}{"status": string(sub.Status)},
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
	})
	events.Emit(ctx, s.events, s.logger, events.New(events.SubscriptionCancelled, userID, sub.ID, nil))
	return sub, nil
}

func (s *SubscriptionService) transition(ctx context.Context, sub *subscription.Subscription, to subscription.Status, action, eventType string, src audit.Source) (*subscription.Subscription, error) {
	if err := s.subscriptions.UpdateStatus(ctx, sub.ID, to, nil); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	from := sub.Status
	sub.Status = to

	s.record(ctx, &audit.Entry{
		Action:    action,
		Entity:    "Subscription",
		EntityID:  sub.ID,
		UserID:    &sub.UserID,
		OldValues: map[string]interface{}{"status": string(from)},
		NewValues: map[string]interface{}{"status": string(to)},
		IPAddress: src.IPAddress,
		UserAgent: src.UserAgent,
	})
	events.Emit(ctx, s.events, s.logger, events.New(eventType, sub.UserID, sub.ID, map[string]interface{}{"status": string(to)}))
	return sub, nil
}

// record writes an audit entry after the provider has already changed, so
// a failed write is logged rather than returned.
func (s *SubscriptionService) record(ctx context.Context, e *audit.Entry) {
	if err := s.audit.Log(ctx, e); err != nil {
		s.logger.Error("failed to write audit entry",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}

// ========== Invoices ==========

func (s *SubscriptionService) ListInvoices(ctx context.Context, userID string) ([]*invoice.Invoice, error) {
	return s.invoices.ListByUser(ctx, userID, invoiceListLimit)
}

// GetInvoice returns one of the caller's invoices. Other users' invoices
// are reported as missing.
func (s *SubscriptionService) GetInvoice(ctx context.Context, userID, id string) (*invoice.Invoice, error) {
	inv, err := s.invoices.FindForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.New(xerrors.ErrNotFound, "Invoice not found")
		}
		return nil, err
	}
	return inv, nil
}
