// internal/domain/refund/entity.go
package refund

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRefunded Status = "REFUNDED"
	StatusRejected Status = "REJECTED"
)

// Open reports whether a request still awaits a decision.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusApproved
}

type Request struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"userId" db:"user_id"`
	InvoiceID      string     `json:"invoiceId" db:"invoice_id"`
	Amount         float64    `json:"amount" db:"amount"`
	Reason         string     `json:"reason" db:"reason"`
	Status         Status     `json:"status" db:"status"`
	StripeRefundID *string    `json:"stripeRefundId,omitempty" db:"stripe_refund_id"`
	AdminNote      *string    `json:"adminNote,omitempty" db:"admin_note"`
	ProcessedBy    *string    `json:"processedBy,omitempty" db:"processed_by"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty" db:"processed_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`

	User *Requester `json:"user,omitempty"`
}

// Requester is the user attached to a request in admin views.
type Requester struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Repository is the persistence contract for refund requests.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	FindByID(ctx context.Context, id string) (*Request, error)
	HasOpenForInvoice(ctx context.Context, invoiceID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*Request, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error)
	// FindOpenByAmount returns the oldest open request for amount.
	FindOpenByAmount(ctx context.Context, amount float64) (*Request, error)
	MarkRefunded(ctx context.Context, id, stripeRefundID string, processedBy *string, at time.Time) error
	MarkRejected(ctx context.Context, id, note, processedBy string, at time.Time) error
}
