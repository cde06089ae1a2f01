// internal/domain/paymentmethod/entity.go
package paymentmethod

import (
	"context"
	"time"
)

// PaymentMethod mirrors a card attached to the user's Stripe customer.
type PaymentMethod struct {
	ID                    string    `json:"id" db:"id"`
	UserID                string    `json:"userId" db:"user_id"`
	StripePaymentMethodID string    `json:"stripePaymentMethodId" db:"stripe_payment_method_id"`
	Brand                 string    `json:"brand" db:"brand"`
	Last4                 string    `json:"last4" db:"last4"`
	ExpMonth              int       `json:"expMonth" db:"exp_month"`
	ExpYear               int       `json:"expYear" db:"exp_year"`
	IsDefault             bool      `json:"isDefault" db:"is_default"`
	CreatedAt             time.Time `json:"createdAt" db:"created_at"`
}

type AttachRequest struct {
	PaymentMethodID string `json:"paymentMethodId" binding:"required"`
}

// Repository is the persistence contract for stored payment methods.
type Repository interface {
	Create(ctx context.Context, pm *PaymentMethod) error
	ListByUser(ctx context.Context, userID string) ([]*PaymentMethod, error)
	FindForUser(ctx context.Context, id, userID string) (*PaymentMethod, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	// SetDefault clears the flag on the user's other methods.
	SetDefault(ctx context.Context, id, userID string) error
	Delete(ctx context.Context, id, userID string) error
}
