// internal/repository/postgres/payment_method_repo.go
package postgres

import (
	"context"
	"fmt"

	"saas-billing/internal/domain/paymentmethod"
	xerrors "saas-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type PaymentMethodRepository struct {
	db *DB
}

func NewPaymentMethodRepository(db *DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

const paymentMethodColumns = `id, user_id, stripe_payment_method_id, brand, last4,
	exp_month, exp_year, is_default, created_at`

func scanPaymentMethod(row interface{ Scan(...any) error }) (*paymentmethod.PaymentMethod, error) {
	var pm paymentmethod.PaymentMethod
	err := row.Scan(&pm.ID, &pm.UserID, &pm.StripePaymentMethodID, &pm.Brand, &pm.Last4,
		&pm.ExpMonth, &pm.ExpYear, &pm.IsDefault, &pm.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func (r *PaymentMethodRepository) Create(ctx context.Context, pm *paymentmethod.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (
			id, user_id, stripe_payment_method_id, brand, last4, exp_month, exp_year, is_default
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.Pool().QueryRow(ctx, query,
		pm.ID, pm.UserID, pm.StripePaymentMethodID, pm.Brand, pm.Last4, pm.ExpMonth, pm.ExpYear, pm.IsDefault,
	).Scan(&pm.CreatedAt)
	return mapError(err, "create payment method")
}

func (r *PaymentMethodRepository) ListByUser(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+paymentMethodColumns+`
		FROM payment_methods WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	out := []*paymentmethod.PaymentMethod{}
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

func (r *PaymentMethodRepository) FindForUser(ctx context.Context, id, userID string) (*paymentmethod.PaymentMethod, error) {
	pm, err := scanPaymentMethod(r.db.Pool().QueryRow(ctx, `SELECT `+paymentMethodColumns+`
		FROM payment_methods WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, mapError(err, "find payment method")
	}
	return pm, nil
}

func (r *PaymentMethodRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM payment_methods WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count payment methods: %w", err)
	}
	return n, nil
}

// SetDefault moves the default flag in one transaction.
func (r *PaymentMethodRepository) SetDefault(ctx context.Context, id, userID string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE payment_methods SET is_default = FALSE WHERE user_id = $1 AND id <> $2`,
			userID, id); err != nil {
			return mapError(err, "clear default payment method")
		}

		result, err := tx.Exec(ctx,
			`UPDATE payment_methods SET is_default = TRUE WHERE id = $1 AND user_id = $2`,
			id, userID)
		if err != nil {
			return mapError(err, "set default payment method")
		}
		if result.RowsAffected() == 0 {
			return xerrors.ErrNotFound
		}
		return nil
	})
}

func (r *PaymentMethodRepository) Delete(ctx context.Context, id, userID string) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM payment_methods WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapError(err, "delete payment method")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
