// internal/repository/postgres/invoice_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"saas-billing/internal/domain/invoice"

	"github.com/jackc/pgx/v5/pgxpool"
)

type InvoiceRepository struct {
	db *pgxpool.Pool
}

func NewInvoiceRepository(db *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, user_id, subscription_id, invoice_number, stripe_invoice_id,
	subtotal, tax, total, status, description, period_start, period_end,
	due_date, paid_at, hosted_invoice_url, created_at`

const insertInvoice = `
	INSERT INTO invoices (
		id, user_id, subscription_id, invoice_number, stripe_invoice_id,
		subtotal, tax, total, status, description, period_start, period_end,
		due_date, paid_at, hosted_invoice_url
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

func scanInvoice(row interface{ Scan(...any) error }) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.SubscriptionID, &inv.InvoiceNumber, &inv.StripeInvoiceID,
		&inv.Subtotal, &inv.Tax, &inv.Total, &inv.Status, &inv.Description, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.DueDate, &inv.PaidAt, &inv.HostedInvoiceURL, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func invoiceArgs(inv *invoice.Invoice) []any {
	return []any{
		inv.ID, inv.UserID, inv.SubscriptionID, inv.InvoiceNumber, inv.StripeInvoiceID,
		inv.Subtotal, inv.Tax, inv.Total, inv.Status, inv.Description, inv.PeriodStart, inv.PeriodEnd,
		inv.DueDate, inv.PaidAt, inv.HostedInvoiceURL,
	}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	err := r.db.QueryRow(ctx, insertInvoice+` RETURNING created_at`, invoiceArgs(inv)...).Scan(&inv.CreatedAt)
	return mapError(err, "create invoice")
}

// CreateIfAbsent makes replays of the provider's invoice.created event a no-op.
func (r *InvoiceRepository) CreateIfAbsent(ctx context.Context, inv *invoice.Invoice) (bool, error) {
	result, err := r.db.Exec(ctx, insertInvoice+` ON CONFLICT (stripe_invoice_id) DO NOTHING`, invoiceArgs(inv)...)
	if err != nil {
		return false, mapError(err, "create invoice")
	}
	return result.RowsAffected() > 0, nil
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "find invoice")
	}
	return inv, nil
}

func (r *InvoiceRepository) FindByStripeID(ctx context.Context, stripeInvoiceID string) (*invoice.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE stripe_invoice_id = $1`, stripeInvoiceID))
	if err != nil {
		return nil, mapError(err, "find invoice by stripe id")
	}
	return inv, nil
}

// FindForUser hides invoices owned by other users behind ErrNotFound.
func (r *InvoiceRepository) FindForUser(ctx context.Context, id, userID string) (*invoice.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, mapError(err, "find invoice")
	}
	return inv, nil
}

func (r *InvoiceRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*invoice.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []*invoice.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *InvoiceRepository) UpdateStatusByStripeID(ctx context.Context, stripeInvoiceID string, status invoice.Status, paidAt *time.Time) (int64, error) {
	query := `
		UPDATE invoices
		SET status = $1, paid_at = COALESCE($2, paid_at)
		WHERE stripe_invoice_id = $3
	`
	result, err := r.db.Exec(ctx, query, status, paidAt, stripeInvoiceID)
	if err != nil {
		return 0, mapError(err, "update invoice status")
	}
	return result.RowsAffected(), nil
}
