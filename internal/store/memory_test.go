package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/store"
)

func TestMemoryUpdateSKUVersioning(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	created, err := st.CreateSKU(ctx, models.SKU{Code: "PMP-100", Tier: models.TierSupport, Title: "Pump"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	created.Title = "Pump v2"
	updated, err := st.UpdateSKU(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	// The first writer's token is now stale.
	created.Title = "Pump v3"
	_, err = st.UpdateSKU(ctx, created)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = st.UpdateSKU(ctx, models.SKU{Code: "GHOST", Version: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryCopySemantics(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	created, err := st.CreateSKU(ctx, models.SKU{
		Code:  "PMP-100",
		Specs: map[string]string{"voltage": "230 V"},
	})
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the store.
	created.Specs["voltage"] = "hacked"
	stored, err := st.GetSKU(ctx, "PMP-100")
	require.NoError(t, err)
	assert.Equal(t, "230 V", stored.Specs["voltage"])
}

func TestMemoryListSKUsFilter(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, s := range []models.SKU{
		{Code: "A", Tier: models.TierHero},
		{Code: "B", Tier: models.TierKill},
		{Code: "C", Tier: models.TierSupport},
	} {
		_, err := st.CreateSKU(ctx, s)
		require.NoError(t, err)
	}

	heroes, err := st.ListSKUs(ctx, store.SKUFilter{Tier: models.TierHero})
	require.NoError(t, err)
	require.Len(t, heroes, 1)
	assert.Equal(t, "A", heroes[0].Code)

	alive, err := st.ListSKUs(ctx, store.SKUFilter{ExcludeTier: models.TierKill})
	require.NoError(t, err)
	assert.Len(t, alive, 2)
}

func TestMemoryApplyTierChangesAtomic(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.CreateSKU(ctx, models.SKU{Code: "A", Tier: models.TierHarvest})
	require.NoError(t, err)

	err = st.ApplyTierChanges(ctx, []store.TierChangeInput{
		{SKUCode: "A", NewTier: models.TierHero},
		{SKUCode: "GHOST", NewTier: models.TierKill},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	sku, err := st.GetSKU(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, models.TierHarvest, sku.Tier, "failed batch commits nothing")
}

func TestMemoryApplyTierChangesCommercialFields(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.CreateSKU(ctx, models.SKU{Code: "A", Tier: models.TierHarvest, Velocity: 400})
	require.NoError(t, err)

	err = st.ApplyTierChanges(ctx, []store.TierChangeInput{{
		SKUCode:    "A",
		NewTier:    models.TierSupport,
		Score:      0.5,
		Commercial: &store.CommercialFields{MarginPercent: 30, CPPC: 2, Velocity: 600, ReturnRate: 4},
		History:    models.TierHistory{SKUCode: "A", OldTier: models.TierHarvest, NewTier: models.TierSupport},
	}})
	require.NoError(t, err)

	sku, err := st.GetSKU(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, models.TierSupport, sku.Tier)
	assert.Equal(t, 400.0, sku.PrevQuarterVelocity, "old velocity rolls into previous quarter")
	assert.Equal(t, 600.0, sku.Velocity)

	history, err := st.ListTierHistory(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
