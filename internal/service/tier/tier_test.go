package tier

import (
	"context"
	"testing"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/domain/tier"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/testutil/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPriceFor(t *testing.T) {
	yearly := 290.0
	tests := []struct {
		name  string
		tier  *tier.Tier
		cycle subscription.BillingCycle
		want  float64
	}{
		{"monthly", &tier.Tier{PriceMonthly: 29, PriceYearly: &yearly}, subscription.CycleMonthly, 29},
		{"yearly set", &tier.Tier{PriceMonthly: 29, PriceYearly: &yearly}, subscription.CycleYearly, 290},
		{"yearly fallback", &tier.Tier{PriceMonthly: 10}, subscription.CycleYearly, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PriceFor(tt.tier, tt.cycle), 0.0001)
		})
	}

	assert.InDelta(t, 290.0/12, MonthlyEquivalent(&tier.Tier{PriceMonthly: 29, PriceYearly: &yearly}, subscription.CycleYearly), 0.0001)
}

func TestListActiveIsCachedUntilWrite(t *testing.T) {
	repo := &mocks.TierRepo{}
	svc := NewTierService(repo, &mocks.AuditLog{}, zap.NewNop())
	ctx := context.Background()

	repo.On("ListActive", mock.Anything).Return([]*tier.Tier{{ID: "t1", Name: "Pro"}}, nil)
	repo.On("SetActive", mock.Anything, "t1", false).Return(nil)

	for i := 0; i < 3; i++ {
		tiers, err := svc.ListActive(ctx)
		require.NoError(t, err)
		assert.Len(t, tiers, 1)
	}
	repo.AssertNumberOfCalls(t, "ListActive", 1)

	off := false
	require.NoError(t, svc.SetActive(ctx, "admin", "t1", &tier.SetStatusRequest{IsActive: &off}))

	_, err := svc.ListActive(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "ListActive", 2)
}

func TestGetMissingTier(t *testing.T) {
	repo := &mocks.TierRepo{}
	svc := NewTierService(repo, &mocks.AuditLog{}, zap.NewNop())
	repo.On("FindByID", mock.Anything, "nope").Return(nil, xerrors.ErrNotFound)

	_, err := svc.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
	assert.Equal(t, "Subscription tier not found", xerrors.MessageOrDefault(err, ""))
}

func TestCreateTier(t *testing.T) {
	t.Run("audits creation", func(t *testing.T) {
		repo := &mocks.TierRepo{}
		log := &mocks.AuditLog{}
		svc := NewTierService(repo, log, zap.NewNop())
		repo.On("Create", mock.Anything, mock.AnythingOfType("*tier.Tier")).Return(nil)

		created, err := svc.Create(context.Background(), "admin", &tier.CreateTierRequest{Name: " Team ", PriceMonthly: 49})
		require.NoError(t, err)
		assert.Equal(t, "Team", created.Name)
		assert.True(t, created.IsActive)
		assert.NotNil(t, created.Features)
		assert.Equal(t, []string{audit.ActionTierCreated}, log.Actions())
	})

	t.Run("duplicate name", func(t *testing.T) {
		repo := &mocks.TierRepo{}
		svc := NewTierService(repo, &mocks.AuditLog{}, zap.NewNop())
		repo.On("Create", mock.Anything, mock.Anything).Return(xerrors.ErrDuplicateEntry)

		_, err := svc.Create(context.Background(), "admin", &tier.CreateTierRequest{Name: "Pro"})
		assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)
	})
}

func TestUpdateTierAppliesPartialChanges(t *testing.T) {
	repo := &mocks.TierRepo{}
	svc := NewTierService(repo, &mocks.AuditLog{}, zap.NewNop())

	repo.On("FindByID", mock.Anything, "t1").Return(&tier.Tier{ID: "t1", Name: "Pro", PriceMonthly: 29, Limits: tier.Limits{MaxStorageGB: 50}}, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(t *tier.Tier) bool {
		return t.Name == "Pro" && t.PriceMonthly == 39 && t.Limits.MaxStorageGB == 50
	})).Return(nil)

	price := 39.0
	updated, err := svc.Update(context.Background(), "admin", "t1", &tier.UpdateTierRequest{PriceMonthly: &price})
	require.NoError(t, err)
	assert.Equal(t, 39.0, updated.PriceMonthly)
	repo.AssertExpectations(t)
}

func TestSeedDefaults(t *testing.T) {
	repo := &mocks.TierRepo{}
	svc := NewTierService(repo, &mocks.AuditLog{}, zap.NewNop())
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	seeded, err := svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	require.Len(t, seeded, 3)
	assert.Equal(t, "Pro", seeded[1].Name)
	assert.Equal(t, 29.0, seeded[1].PriceMonthly)
	assert.Equal(t, 990.0, *seeded[2].PriceYearly)
	repo.AssertNumberOfCalls(t, "Upsert", 3)
}
