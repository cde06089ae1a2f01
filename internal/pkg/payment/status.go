package payment

import (
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/subscription"
)

// MapSubscriptionStatus translates a Stripe subscription status. Unknown
// values are treated as active.
func MapSubscriptionStatus(s string) subscription.Status {
	switch s {
	case "trialing":
		return subscription.StatusTrial
	case "active":
		return subscription.StatusActive
	case "past_due", "unpaid":
		return subscription.StatusPastDue
	case "paused":
		return subscription.StatusPaused
	case "canceled":
		return subscription.StatusCancelled
	case "incomplete_expired":
		return subscription.StatusExpired
	default:
		return subscription.StatusActive
	}
}

// MapInvoiceStatus translates a Stripe invoice status.
func MapInvoiceStatus(s string) invoice.Status {
	switch s {
	case "paid":
		return invoice.StatusPaid
	case "uncollectible":
		return invoice.StatusFailed
	case "void":
		return invoice.StatusCancelled
	default:
		return invoice.StatusPending
	}
}
