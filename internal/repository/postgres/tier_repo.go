// internal/repository/postgres/tier_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"saas-billing/internal/domain/tier"
	xerrors "saas-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TierRepository struct {
	db *pgxpool.Pool
}

func NewTierRepository(db *pgxpool.Pool) *TierRepository {
	return &TierRepository{db: db}
}

const tierColumns = `id, name, description, price_monthly, price_yearly, features,
	max_users, max_projects, max_api_calls, max_storage_gb,
	is_active, sort_order, created_at, updated_at`

func scanTier(row interface{ Scan(...any) error }) (*tier.Tier, error) {
	var t tier.Tier
	var featuresJSON []byte

	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.PriceMonthly, &t.PriceYearly, &featuresJSON,
		&t.Limits.MaxUsers, &t.Limits.MaxProjects, &t.Limits.MaxAPICalls, &t.Limits.MaxStorageGB,
		&t.IsActive, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Features = []string{}
	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &t.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
	}
	return &t, nil
}

func marshalFeatures(features []string) ([]byte, error) {
	if features == nil {
		features = []string{}
	}
	b, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal features: %w", err)
	}
	return b, nil
}

// ListActive returns the public catalog.
func (r *TierRepository) ListActive(ctx context.Context) ([]*tier.Tier, error) {
	return r.list(ctx, `SELECT `+tierColumns+` FROM subscription_tiers
		WHERE is_active = TRUE ORDER BY sort_order ASC, price_monthly ASC`)
}

func (r *TierRepository) ListAll(ctx context.Context) ([]*tier.Tier, error) {
	return r.list(ctx, `SELECT `+tierColumns+` FROM subscription_tiers
		ORDER BY sort_order ASC, price_monthly ASC`)
}

func (r *TierRepository) list(ctx context.Context, query string) ([]*tier.Tier, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	defer rows.Close()

	tiers := []*tier.Tier{}
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (r *TierRepository) FindByID(ctx context.Context, id string) (*tier.Tier, error) {
	t, err := scanTier(r.db.QueryRow(ctx, `SELECT `+tierColumns+` FROM subscription_tiers WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "find tier")
	}
	return t, nil
}

func (r *TierRepository) FindByName(ctx context.Context, name string) (*tier.Tier, error) {
	t, err := scanTier(r.db.QueryRow(ctx, `SELECT `+tierColumns+` FROM subscription_tiers WHERE name = $1`, name))
	if err != nil {
		return nil, mapError(err, "find tier by name")
	}
	return t, nil
}

func (r *TierRepository) Create(ctx context.Context, t *tier.Tier) error {
	query := `
		INSERT INTO subscription_tiers (
			id, name, description, price_monthly, price_yearly, features,
			max_users, max_projects, max_api_calls, max_storage_gb,
			is_active, sort_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	featuresJSON, err := marshalFeatures(t.Features)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, query,
		t.ID, t.Name, t.Description, t.PriceMonthly, t.PriceYearly, featuresJSON,
		t.Limits.MaxUsers, t.Limits.MaxProjects, t.Limits.MaxAPICalls, t.Limits.MaxStorageGB,
		t.IsActive, t.SortOrder,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return mapError(err, "create tier")
}

func (r *TierRepository) Update(ctx context.Context, t *tier.Tier) error {
	query := `
		UPDATE subscription_tiers
		SET name = $1, description = $2, price_monthly = $3, price_yearly = $4, features = $5,
		    max_users = $6, max_projects = $7, max_api_calls = $8, max_storage_gb = $9,
		    sort_order = $10, updated_at = $11
		WHERE id = $12
	`
	featuresJSON, err := marshalFeatures(t.Features)
	if err != nil {
		return err
	}

	t.UpdatedAt = time.Now()
	result, err := r.db.Exec(ctx, query,
		t.Name, t.Description, t.PriceMonthly, t.PriceYearly, featuresJSON,
		t.Limits.MaxUsers, t.Limits.MaxProjects, t.Limits.MaxAPICalls, t.Limits.MaxStorageGB,
		t.SortOrder, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return mapError(err, "update tier")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *TierRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.Exec(ctx,
		`UPDATE subscription_tiers SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now(), id)
	if err != nil {
		return mapError(err, "set tier status")
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// Upsert writes a tier keyed by name. Used for catalog seeding.
func (r *TierRepository) Upsert(ctx context.Context, t *tier.Tier) error {
	query := `
		INSERT INTO subscription_tiers (
			id, name, description, price_monthly, price_yearly, features,
			max_users, max_projects, max_api_calls, max_storage_gb,
			is_active, sort_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			price_monthly = EXCLUDED.price_monthly,
			price_yearly = EXCLUDED.price_yearly,
			features = EXCLUDED.features,
			max_users = EXCLUDED.max_users,
			max_projects = EXCLUDED.max_projects,
			max_api_calls = EXCLUDED.max_api_calls,
			max_storage_gb = EXCLUDED.max_storage_gb,
			sort_order = EXCLUDED.sort_order,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	featuresJSON, err := marshalFeatures(t.Features)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, query,
		t.ID, t.Name, t.Description, t.PriceMonthly, t.PriceYearly, featuresJSON,
		t.Limits.MaxUsers, t.Limits.MaxProjects, t.Limits.MaxAPICalls, t.Limits.MaxStorageGB,
		t.IsActive, t.SortOrder,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return mapError(err, "upsert tier")
}
