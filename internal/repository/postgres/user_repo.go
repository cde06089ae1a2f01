// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"time"

	"saas-billing/internal/domain/auth"
	xerrors "saas-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, name, role, stripe_customer_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user. A duplicate email surfaces as ErrDuplicateEntry.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, role, stripe_customer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.StripeCustomerID,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapError(err, "create user")
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "find user")
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, mapError(err, "find user by email")
	}
	return u, nil
}

func (r *UserRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, customerID))
	if err != nil {
		return nil, mapError(err, "find user by stripe customer")
	}
	return u, nil
}

func (r *UserRepository) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	query := `UPDATE users SET stripe_customer_id = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, customerID, time.Now(), id)
	if err != nil {
		return mapError(err, "set stripe customer id")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id, role string) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, role, time.Now(), id)
	if err != nil {
		return mapError(err, "update user role")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
