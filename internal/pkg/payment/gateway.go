// internal/pkg/payment/gateway.go
package payment

import (
	"context"
	"encoding/json"
	"math"
)

// Gateway is the payment provider surface used by the billing services.
// Amounts crossing it are in minor units (cents).
type Gateway interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) (*SubscriptionResult, error)
	PauseSubscription(ctx context.Context, subscriptionID string) error
	ResumeSubscription(ctx context.Context, subscriptionID string) error
	CancelSubscription(ctx context.Context, subscriptionID string) error

	GetInvoiceCharge(ctx context.Context, invoiceID string) (string, error)
	CreateRefund(ctx context.Context, req RefundRequest) (string, error)

	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*Card, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error

	ConstructEvent(payload []byte, signature string) (*Event, error)
}

type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

type CustomerRequest struct {
	Email    string
	Name     string
	Address  Address
	Shipping *Address
	UserID   string
}

type SubscriptionRequest struct {
	CustomerID  string
	PriceID     string
	Description string
	Metadata    map[string]string
}

// SubscriptionResult is the provider's view of a subscription after a write.
type SubscriptionResult struct {
	ID               string
	Status           string
	CurrentPeriodEnd int64
	TrialEnd         int64
	LatestInvoiceID  string
	HostedInvoiceURL string
}

type RefundRequest struct {
	ChargeID        string
	AmountCents     int64
	RefundRequestID string
}

type Card struct {
	ID       string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// Event is a verified webhook event. Raw holds the event's data.object.
type Event struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

// ToCents converts major units to cents, rounding half away from zero.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts cents to major units.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}
