package tier_test

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/store"
	"github.com/shelfline/governance/internal/tier"
)

func seedBatchSKUs(t *testing.T, st *store.MemoryStore, batch []tier.CommercialRecord) {
	t.Helper()
	for _, rec := range batch {
		seed(t, st, models.SKU{Code: rec.SKUCode, Tier: models.TierHarvest})
	}
}

func cohortScores(batch []tier.CommercialRecord) []float64 {
	maxVelocity := 1.0
	for _, rec := range batch {
		if rec.Velocity > maxVelocity {
			maxVelocity = rec.Velocity
		}
	}
	scores := make([]float64, 0, len(batch))
	for _, rec := range batch {
		scores = append(scores, tier.BatchScore(rec, maxVelocity))
	}
	sort.Float64s(scores)
	return scores
}

func TestApplyCommercialBatchPercentiles(t *testing.T) {
	st := store.NewMemoryStore()
	batch := []tier.CommercialRecord{
		{SKUCode: "A", MarginPercent: 70, CPPC: 1, Velocity: 1000, ReturnRate: 2},
		{SKUCode: "B", MarginPercent: 50, CPPC: 2, Velocity: 600, ReturnRate: 5},
		{SKUCode: "C", MarginPercent: 35, CPPC: 4, Velocity: 300, ReturnRate: 8},
		{SKUCode: "D", MarginPercent: 20, CPPC: 8, Velocity: 120, ReturnRate: 12},
		{SKUCode: "E", MarginPercent: 8, CPPC: 15, Velocity: 30, ReturnRate: 20},
	}
	seedBatchSKUs(t, st, batch)

	c := tier.NewClassifier(st, nil)
	result, err := c.ApplyCommercialBatch(context.Background(), batch, "erp")
	require.NoError(t, err)

	// Five scores: p80 is the highest, p30 the second lowest, p10 the lowest.
	sorted := cohortScores(batch)
	assert.InDelta(t, sorted[4], result.Percentiles.P80, 1e-9)
	assert.InDelta(t, sorted[1], result.Percentiles.P30, 1e-9)
	assert.InDelta(t, sorted[0], result.Percentiles.P10, 1e-9)

	byCode := map[string]models.TierChange{}
	for _, ch := range result.Changes {
		byCode[ch.SKUCode] = ch
	}
	assert.Equal(t, models.TierHero, byCode["A"].NewTier)
	assert.Equal(t, models.TierSupport, byCode["B"].NewTier)
	assert.Equal(t, models.TierSupport, byCode["C"].NewTier)
	assert.Equal(t, models.TierSupport, byCode["D"].NewTier)

	// E scores exactly the p10 threshold and stays Harvest, so no change row.
	_, changed := byCode["E"]
	assert.False(t, changed)

	skuA, err := st.GetSKU(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 70.0, skuA.MarginPercent, "commercial fields are written with the tier change")
	assert.Equal(t, 1000.0, skuA.Velocity)
}

func TestApplyCommercialBatchNegativeMarginOverride(t *testing.T) {
	st := store.NewMemoryStore()
	batch := []tier.CommercialRecord{
		{SKUCode: "GOOD", MarginPercent: 60, CPPC: 1, Velocity: 800, ReturnRate: 3},
		{SKUCode: "BAD", MarginPercent: -10, CPPC: 0.5, Velocity: 900, ReturnRate: 1},
	}
	seedBatchSKUs(t, st, batch)

	c := tier.NewClassifier(st, nil)
	result, err := c.ApplyCommercialBatch(context.Background(), batch, "erp")
	require.NoError(t, err)

	byCode := map[string]models.TierChange{}
	for _, ch := range result.Changes {
		byCode[ch.SKUCode] = ch
	}
	require.Contains(t, byCode, "BAD")
	assert.Equal(t, models.TierKill, byCode["BAD"].NewTier,
		"negative margin overrides any cohort score")
	assert.Contains(t, byCode["BAD"].Rationale, "negative margin override")
}

func TestApplyCommercialBatchAutoPromotion(t *testing.T) {
	st := store.NewMemoryStore()
	batch := []tier.CommercialRecord{
		{SKUCode: "TOP", MarginPercent: 70, CPPC: 1, Velocity: 1000, ReturnRate: 2},
		{SKUCode: "MID", MarginPercent: 40, CPPC: 3, Velocity: 500, ReturnRate: 5},
		{SKUCode: "LOWISH", MarginPercent: 15, CPPC: 10, Velocity: 300, ReturnRate: 10},
		{SKUCode: "RISER", MarginPercent: 10, CPPC: 12, Velocity: 200, ReturnRate: 15},
	}
	seed(t, st, models.SKU{Code: "TOP", Tier: models.TierHarvest})
	seed(t, st, models.SKU{Code: "MID", Tier: models.TierHarvest})
	seed(t, st, models.SKU{Code: "LOWISH", Tier: models.TierHarvest})
	// Velocity 200 against a previous quarter of 100 clears the 1.30x bar.
	seed(t, st, models.SKU{Code: "RISER", Tier: models.TierHarvest, PrevQuarterVelocity: 100})

	c := tier.NewClassifier(st, nil)
	result, err := c.ApplyCommercialBatch(context.Background(), batch, "erp")
	require.NoError(t, err)

	assert.Equal(t, 1, result.AutoPromotions)
	var riser models.TierChange
	for _, ch := range result.Changes {
		if ch.SKUCode == "RISER" {
			riser = ch
		}
	}
	assert.Equal(t, models.TierSupport, riser.NewTier)
	assert.True(t, riser.AutoPromoted)
	assert.Contains(t, riser.Rationale, "auto-promoted")
}

func TestApplyCommercialBatchUnmatchedSKU(t *testing.T) {
	st := store.NewMemoryStore()
	batch := []tier.CommercialRecord{
		{SKUCode: "KNOWN", MarginPercent: 60, CPPC: 1, Velocity: 800, ReturnRate: 3},
		{SKUCode: "GHOST", MarginPercent: 50, CPPC: 2, Velocity: 400, ReturnRate: 5},
	}
	seed(t, st, models.SKU{Code: "KNOWN", Tier: models.TierHarvest})

	c := tier.NewClassifier(st, nil)
	result, err := c.ApplyCommercialBatch(context.Background(), batch, "erp")
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "GHOST")
	assert.Equal(t, 1, result.Applied, "the rest of the batch still applies")
}

type failingApplyStore struct {
	*store.MemoryStore
}

func (f *failingApplyStore) ApplyTierChanges(context.Context, []store.TierChangeInput) error {
	return fmt.Errorf("connection reset")
}

func TestApplyCommercialBatchRollsBackAsOne(t *testing.T) {
	mem := store.NewMemoryStore()
	batch := []tier.CommercialRecord{
		{SKUCode: "A", MarginPercent: 70, CPPC: 1, Velocity: 1000, ReturnRate: 2},
		{SKUCode: "B", MarginPercent: 8, CPPC: 15, Velocity: 30, ReturnRate: 20},
	}
	seedBatchSKUs(t, mem, batch)

	c := tier.NewClassifier(&failingApplyStore{mem}, nil)
	result, err := c.ApplyCommercialBatch(context.Background(), batch, "erp")
	require.Error(t, err)

	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 0, result.AutoPromotions)
	assert.Empty(t, result.Changes)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "batch rolled back")

	skuA, getErr := mem.GetSKU(context.Background(), "A")
	require.NoError(t, getErr)
	assert.Equal(t, models.TierHarvest, skuA.Tier, "nothing committed")
}
