// internal/domain/auth/entity.go
package auth

import (
	"context"
	"time"
)

// User is an account that can sign in. Email is stored normalized.
type User struct {
	ID               string    `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	Name             string    `json:"name" db:"name"`
	Role             string    `json:"role" db:"role"`
	StripeCustomerID *string   `json:"stripeCustomerId,omitempty" db:"stripe_customer_id"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// UserRepository is the persistence contract for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*User, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
	UpdateRole(ctx context.Context, id, role string) error
}
