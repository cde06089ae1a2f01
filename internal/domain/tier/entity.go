// internal/domain/tier/entity.go
package tier

import (
	"context"
	"time"
)

// Limits caps resource usage for a tier. Nil means unlimited.
type Limits struct {
	MaxUsers     *int `json:"maxUsers" db:"max_users"`
	MaxProjects  *int `json:"maxProjects" db:"max_projects"`
	MaxAPICalls  *int `json:"maxApiCalls" db:"max_api_calls"`
	MaxStorageGB int  `json:"maxStorageGB" db:"max_storage_gb"`
}

type Tier struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	PriceMonthly float64   `json:"priceMonthly" db:"price_monthly"`
	PriceYearly  *float64  `json:"priceYearly,omitempty" db:"price_yearly"`
	Features     []string  `json:"features" db:"features"`
	Limits       Limits    `json:"limits"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	SortOrder    int       `json:"sortOrder" db:"sort_order"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Repository is the persistence contract for the tier catalog.
type Repository interface {
	ListActive(ctx context.Context) ([]*Tier, error)
	ListAll(ctx context.Context) ([]*Tier, error)
	FindByID(ctx context.Context, id string) (*Tier, error)
	FindByName(ctx context.Context, name string) (*Tier, error)
	Create(ctx context.Context, t *Tier) error
	Update(ctx context.Context, t *Tier) error
	SetActive(ctx context.Context, id string, active bool) error
	Upsert(ctx context.Context, t *Tier) error
}
