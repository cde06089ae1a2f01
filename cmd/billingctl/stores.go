package main

import (
	"context"
	"fmt"

	"saas-billing/internal/config"
	"saas-billing/internal/db"
	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/tier"
	"saas-billing/internal/repository/postgres"
	auditsvc "saas-billing/internal/service/audit"
	authsvc "saas-billing/internal/service/auth"
	tiersvc "saas-billing/internal/service/tier"

	"go.uber.org/zap"
)

type Migrator interface {
	Migrate(ctx context.Context) error
}

type TierSeeder interface {
	SeedDefaults(ctx context.Context) ([]*tier.Tier, error)
}

type UserCreator interface {
	CreateUser(ctx context.Context, name, email, password, role string) (*auth.User, error)
}

// Stores is what the commands operate on. Close releases the connections.
type Stores struct {
	Schema Migrator
	Tiers  TierSeeder
	Users  UserCreator
	Close  func()
}

type opener func(ctx context.Context, logger *zap.Logger) (*Stores, error)

// openStores connects with the server's configuration and builds the same
// repositories and services the API uses.
func openStores(ctx context.Context, logger *zap.Logger) (*Stores, error) {
	cfg := config.Load()

	pool, err := db.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.OpenSQL(ctx, cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	auditLog, err := auditsvc.NewDBLogger(sqlDB)
	if err != nil {
		sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}

	return &Stores{
		Schema: postgres.NewDB(pool),
		Tiers:  tiersvc.NewTierService(postgres.NewTierRepository(pool), auditLog, logger),
		Users: authsvc.NewAuthService(
			postgres.NewUserRepository(pool),
			postgres.NewSubscriptionRepository(pool),
			nil, nil, nil,
			logger,
		),
		Close: func() {
			sqlDB.Close()
			pool.Close()
		},
	}, nil
}
