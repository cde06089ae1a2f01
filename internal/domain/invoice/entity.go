// internal/domain/invoice/entity.go
package invoice

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

type Invoice struct {
	ID               string     `json:"id" db:"id"`
	UserID           string     `json:"userId" db:"user_id"`
	SubscriptionID   *string    `json:"subscriptionId,omitempty" db:"subscription_id"`
	InvoiceNumber    string     `json:"invoiceNumber" db:"invoice_number"`
	StripeInvoiceID  *string    `json:"stripeInvoiceId,omitempty" db:"stripe_invoice_id"`
	Subtotal         float64    `json:"subtotal" db:"subtotal"`
	Tax              float64    `json:"tax" db:"tax"`
	Total            float64    `json:"total" db:"total"`
	Status           Status     `json:"status" db:"status"`
	Description      string     `json:"description" db:"description"`
	PeriodStart      time.Time  `json:"periodStart" db:"period_start"`
	PeriodEnd        time.Time  `json:"periodEnd" db:"period_end"`
	DueDate          *time.Time `json:"dueDate,omitempty" db:"due_date"`
	PaidAt           *time.Time `json:"paidAt,omitempty" db:"paid_at"`
	HostedInvoiceURL *string    `json:"hostedInvoiceUrl,omitempty" db:"hosted_invoice_url"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
}

// Repository is the persistence contract for invoices.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	// CreateIfAbsent inserts unless an invoice with the same stripe_invoice_id
	// exists. It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, inv *Invoice) (bool, error)
	FindByID(ctx context.Context, id string) (*Invoice, error)
	FindByStripeID(ctx context.Context, stripeInvoiceID string) (*Invoice, error)
	FindForUser(ctx context.Context, id, userID string) (*Invoice, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Invoice, error)
	// UpdateStatusByStripeID updates every invoice mirroring a provider invoice.
	UpdateStatusByStripeID(ctx context.Context, stripeInvoiceID string, status Status, paidAt *time.Time) (int64, error)
}
