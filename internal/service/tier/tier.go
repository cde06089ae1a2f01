// internal/service/tier/tier.go
package tier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/tier"
	xerrors "saas-billing/internal/pkg/errors"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheEntries = 256
	activeKey    = "active"
)

var (
	errTierNotFound = xerrors.New(xerrors.ErrNotFound, "Subscription tier not found")
	errTierExists   = xerrors.New(xerrors.ErrDuplicateEntry, "A tier with this name already exists")
)

// TierService serves the tier catalog through an expirable in-process
// cache. Writes through this service invalidate it.
type TierService struct {
	repo   tier.Repository
	audit  audit.Logger
	logger *zap.Logger

	lists *lru.LRU[string, []*tier.Tier]
	byID  *lru.LRU[string, *tier.Tier]
}

func NewTierService(repo tier.Repository, auditLog audit.Logger, logger *zap.Logger) *TierService {
	return &TierService{
		repo:   repo,
		audit:  auditLog,
		logger: logger,
		lists:  lru.NewLRU[string, []*tier.Tier](4, nil, cacheTTL),
		byID:   lru.NewLRU[string, *tier.Tier](cacheEntries, nil, cacheTTL),
	}
}

// PriceFor returns the charge for one billing period. Yearly falls back
// to twelve monthly payments when no yearly price is set.
func PriceFor(t *tier.Tier, cycle subscription.BillingCycle) float64 {
	if cycle == subscription.CycleYearly {
		if t.PriceYearly != nil {
			return *t.PriceYearly
		}
		return t.PriceMonthly * 12
	}
	return t.PriceMonthly
}

// MonthlyEquivalent spreads a yearly price over twelve months.
func MonthlyEquivalent(t *tier.Tier, cycle subscription.BillingCycle) float64 {
	if cycle == subscription.CycleYearly {
		return PriceFor(t, cycle) / 12
	}
	return t.PriceMonthly
}

func (s *TierService) ListActive(ctx context.Context) ([]*tier.Tier, error) {
	if tiers, ok := s.lists.Get(activeKey); ok {
		return tiers, nil
	}
	tiers, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	s.lists.Add(activeKey, tiers)
	return tiers, nil
}

func (s *TierService) ListAll(ctx context.Context) ([]*tier.Tier, error) {
	return s.repo.ListAll(ctx)
}

// Get returns a tier, active or not.
func (s *TierService) Get(ctx context.Context, id string) (*tier.Tier, error) {
	if t, ok := s.byID.Get(id); ok {
		return t, nil
	}
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, errTierNotFound
		}
		return nil, err
	}
	s.byID.Add(id, t)
	return t, nil
}

func (s *TierService) invalidate() {
	s.lists.Purge()
	s.byID.Purge()
}

func (s *TierService) Create(ctx context.Context, adminID string, req *tier.CreateTierRequest) (*tier.Tier, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, xerrors.New(xerrors.ErrInvalidInput, "Tier name is required")
	}

	t := &tier.Tier{
		ID:           ulid.Make().String(),
		Name:         name,
		Description:  req.Description,
		PriceMonthly: req.PriceMonthly,
		PriceYearly:  req.PriceYearly,
		Features:     req.Features,
		Limits: tier.Limits{
			MaxUsers:     req.MaxUsers,
			MaxProjects:  req.MaxProjects,
			MaxAPICalls:  req.MaxAPICalls,
			MaxStorageGB: req.MaxStorageGB,
		},
		IsActive:  true,
		SortOrder: req.SortOrder,
	}
	if t.Features == nil {
		t.Features = []string{}
	}

	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			return nil, errTierExists
		}
		return nil, err
	}
	s.invalidate()

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionTierCreated,
		Entity:    "SubscriptionTier",
		EntityID:  t.ID,
		UserID:    &adminID,
		NewValues: map[string]interface{}{"name": t.Name, "priceMonthly": t.PriceMonthly},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	return t, nil
}

func (s *TierService) Update(ctx context.Context, adminID, id string, req *tier.UpdateTierRequest) (*tier.Tier, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, errTierNotFound
		}
		return nil, err
	}

	old := map[string]interface{}{"name": current.Name, "priceMonthly": current.PriceMonthly}
	updated := *current

	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.PriceMonthly != nil {
		updated.PriceMonthly = *req.PriceMonthly
	}
	if req.PriceYearly != nil {
		updated.PriceYearly = req.PriceYearly
	}
	if req.Features != nil {
		updated.Features = req.Features
	}
	if req.MaxUsers != nil {
		updated.Limits.MaxUsers = req.MaxUsers
	}
	if req.MaxProjects != nil {
		updated.Limits.MaxProjects = req.MaxProjects
	}
	if req.MaxAPICalls != nil {
		updated.Limits.MaxAPICalls = req.MaxAPICalls
	}
	if req.MaxStorageGB != nil {
		updated.Limits.MaxStorageGB = *req.MaxStorageGB
	}
	if req.SortOrder != nil {
		updated.SortOrder = *req.SortOrder
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			return nil, errTierExists
		}
		return nil, err
	}
	s.invalidate()

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionTierUpdated,
		Entity:    "SubscriptionTier",
		EntityID:  id,
		UserID:    &adminID,
		OldValues: old,
		NewValues: map[string]interface{}{"name": updated.Name, "priceMonthly": updated.PriceMonthly},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	return &updated, nil
}

func (s *TierService) SetActive(ctx context.Context, adminID, id string, req *tier.SetStatusRequest) error {
	if req.IsActive == nil {
		return xerrors.New(xerrors.ErrInvalidInput, "isActive is required")
	}
	if err := s.repo.SetActive(ctx, id, *req.IsActive); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return errTierNotFound
		}
		return err
	}
	s.invalidate()

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionTierUpdated,
		Entity:    "SubscriptionTier",
		EntityID:  id,
		UserID:    &adminID,
		NewValues: map[string]interface{}{"isActive": *req.IsActive},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	return nil
}

// record writes an audit entry. Catalog edits are not rolled back when the
// audit write fails.
func (s *TierService) record(ctx context.Context, e *audit.Entry) {
	if err := s.audit.Log(ctx, e); err != nil {
		s.logger.Error("failed to write audit entry",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// DefaultCatalog is the catalog written by SeedDefaults.
func DefaultCatalog() []*tier.Tier {
	return []*tier.Tier{
		{
			Name:         "Free",
			Description:  "Get started at no cost",
			PriceMonthly: 0,
			PriceYearly:  floatPtr(0),
			Features:     []string{"1 project", "Community support"},
			Limits:       tier.Limits{MaxUsers: intPtr(1), MaxProjects: intPtr(1), MaxAPICalls: intPtr(1000), MaxStorageGB: 1},
			IsActive:     true,
			SortOrder:    0,
		},
		{
			Name:         "Pro",
			Description:  "For growing teams",
			PriceMonthly: 29,
			PriceYearly:  floatPtr(290),
			Features:     []string{"10 projects", "Email support", "Advanced analytics"},
			Limits:       tier.Limits{MaxUsers: intPtr(10), MaxProjects: intPtr(10), MaxAPICalls: intPtr(100000), MaxStorageGB: 50},
			IsActive:     true,
			SortOrder:    1,
		},
		{
			Name:         "Enterprise",
			Description:  "Unlimited scale with priority support",
			PriceMonthly: 99,
			PriceYearly:  floatPtr(990),
			Features:     []string{"Unlimited projects", "Priority support", "SSO", "Audit logs"},
			Limits:       tier.Limits{MaxStorageGB: 500},
			IsActive:     true,
			SortOrder:    2,
		},
	}
}

// SeedDefaults upserts DefaultCatalog by name.
func (s *TierService) SeedDefaults(ctx context.Context) ([]*tier.Tier, error) {
	catalog := DefaultCatalog()
	for _, t := range catalog {
		t.ID = ulid.Make().String()
		if err := s.repo.Upsert(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to seed tier %s: %w", t.Name, err)
		}
	}
	s.invalidate()
	return catalog, nil
}
