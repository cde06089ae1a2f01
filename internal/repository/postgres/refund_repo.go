// internal/repository/postgres/refund_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"saas-billing/internal/domain/refund"
	xerrors "saas-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RefundRepository struct {
	db *pgxpool.Pool
}

func NewRefundRepository(db *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{db: db}
}

const refundWithUser = `SELECT r.id, r.user_id, r.invoice_id, r.amount, r.reason, r.status,
	r.stripe_refund_id, r.admin_note, r.processed_by, r.processed_at,
	r.created_at, r.updated_at, u.id, u.email, u.name
	FROM refund_requests r
	JOIN users u ON u.id = r.user_id`

func scanRefund(row interface{ Scan(...any) error }) (*refund.Request, error) {
	var r refund.Request
	u := &refund.Requester{}
	err := row.Scan(
		&r.ID, &r.UserID, &r.InvoiceID, &r.Amount, &r.Reason, &r.Status,
		&r.StripeRefundID, &r.AdminNote, &r.ProcessedBy, &r.ProcessedAt,
		&r.CreatedAt, &r.UpdatedAt, &u.ID, &u.Email, &u.Name,
	)
	if err != nil {
		return nil, err
	}
	r.User = u
	return &r, nil
}

func (r *RefundRepository) Create(ctx context.Context, req *refund.Request) error {
	query := `
		INSERT INTO refund_requests (id, user_id, invoice_id, amount, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		req.ID, req.UserID, req.InvoiceID, req.Amount, req.Reason, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	return mapError(err, "create refund request")
}

func (r *RefundRepository) FindByID(ctx context.Context, id string) (*refund.Request, error) {
	req, err := scanRefund(r.db.QueryRow(ctx, refundWithUser+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "find refund request")
	}
	return req, nil
}

func (r *RefundRepository) HasOpenForInvoice(ctx context.Context, invoiceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM refund_requests
			WHERE invoice_id = $1 AND status IN ($2, $3)
		)`, invoiceID, refund.StatusPending, refund.StatusApproved).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check open refunds: %w", err)
	}
	return exists, nil
}

func (r *RefundRepository) ListByUser(ctx context.Context, userID string) ([]*refund.Request, error) {
	return r.list(ctx, refundWithUser+` WHERE r.user_id = $1 ORDER BY r.created_at DESC`, userID)
}

// ListByStatus lists requests oldest first. An empty status lists all.
func (r *RefundRepository) ListByStatus(ctx context.Context, status refund.Status, limit int) ([]*refund.Request, error) {
	if status == "" {
		return r.list(ctx, refundWithUser+` ORDER BY r.created_at DESC LIMIT $1`, limit)
	}
	return r.list(ctx, refundWithUser+` WHERE r.status = $1 ORDER BY r.created_at ASC LIMIT $2`, status, limit)
}

func (r *RefundRepository) list(ctx context.Context, query string, args ...any) ([]*refund.Request, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list refund requests: %w", err)
	}
	defer rows.Close()

	out := []*refund.Request{}
	for rows.Next() {
		req, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *RefundRepository) FindOpenByAmount(ctx context.Context, amount float64) (*refund.Request, error) {
	req, err := scanRefund(r.db.QueryRow(ctx, refundWithUser+`
		WHERE r.status IN ($1, $2) AND r.amount = $3
		ORDER BY r.created_at ASC
		LIMIT 1`, refund.StatusPending, refund.StatusApproved, amount))
	if err != nil {
		return nil, mapError(err, "find refund request by amount")
	}
	return req, nil
}

func (r *RefundRepository) MarkRefunded(ctx context.Context, id, stripeRefundID string, processedBy *string, at time.Time) error {
	query := `
		UPDATE refund_requests
		SET status = $1, stripe_refund_id = $2,
		    processed_by = COALESCE($3, processed_by),
		    processed_at = COALESCE(processed_at, $4),
		    updated_at = $4
		WHERE id = $5
	`
	result, err := r.db.Exec(ctx, query, refund.StatusRefunded, stripeRefundID, processedBy, at, id)
	if err != nil {
		return mapError(err, "mark refund refunded")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// MarkRejected closes an open request. Requests already refunded or rejected
// report ErrNotFound.
func (r *RefundRepository) MarkRejected(ctx context.Context, id, note, processedBy string, at time.Time) error {
	query := `
		UPDATE refund_requests
		SET status = $1, admin_note = $2, processed_by = $3, processed_at = $4, updated_at = $4
		WHERE id = $5 AND status IN ($6, $7)
	`
	result, err := r.db.Exec(ctx, query, refund.StatusRejected, note, processedBy, at, id,
		refund.StatusPending, refund.StatusApproved)
	if err != nil {
		return mapError(err, "reject refund request")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
