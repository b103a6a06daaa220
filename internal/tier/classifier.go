// Package tier computes commercial scores and assigns investment tiers.
// Two triggers exist: the periodic population-wide recalculation and the
// externally pushed commercial batch. Every tier change writes exactly one
// history row and triggers a re-validation of the SKU.
package tier

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/store"
)

// Score weights shared by both triggers.
const (
	marginWeight   = 0.40
	cppcWeight     = 0.25
	velocityWeight = 0.20
	returnWeight   = 0.15
)

// Periodic recalculation bands (0-100 score).
const (
	heroBand    = 60.0
	supportBand = 40.0
)

// Auto-promotion requires current velocity above this multiple of the
// previous quarter's.
const promotionVelocityRatio = 1.30

// staleSaleWindow is the no-sale horizon that triggers the Kill condition.
const staleSaleWindow = 90 * 24 * time.Hour

// Revalidator re-runs the gate pipeline after a tier change. Failures are
// logged, never fatal to the change itself.
type Revalidator interface {
	Revalidate(ctx context.Context, code string) error
}

type Classifier struct {
	store      store.Store
	revalidate Revalidator
	now        func() time.Time
}

func NewClassifier(st store.Store, revalidate Revalidator) *Classifier {
	return &Classifier{store: st, revalidate: revalidate, now: time.Now}
}

// CommercialScore is the periodic 0-100 composite.
func CommercialScore(marginPercent, cppc, velocity, returnRate float64) float64 {
	cppcComponent := 1.0
	if cppc > 0 {
		cppcComponent = math.Min(1/cppc, 1)
	}
	return 100 * (marginWeight*(marginPercent/100) +
		cppcWeight*cppcComponent +
		velocityWeight*math.Min(velocity/1000, 1) +
		returnWeight*(1-returnRate/100))
}

// RecalculateAll reassigns tiers across the non-Kill population. Each SKU
// is applied in isolation: one SKU's failure is collected and the sweep
// continues.
func (c *Classifier) RecalculateAll(ctx context.Context, actor string) ([]models.TierChange, error) {
	skus, err := c.store.ListSKUs(ctx, store.SKUFilter{ExcludeTier: models.TierKill})
	if err != nil {
		return nil, fmt.Errorf("list skus: %w", err)
	}

	// Top-20% reference percentiles, diagnostic only.
	margins := make([]float64, 0, len(skus))
	volumes := make([]float64, 0, len(skus))
	for _, sku := range skus {
		margins = append(margins, sku.MarginPercent)
		volumes = append(volumes, sku.Velocity)
	}
	sort.Float64s(margins)
	sort.Float64s(volumes)
	log.Printf("[tier] recalculation over %d skus: p80 margin=%.2f p80 volume=%.0f",
		len(skus), percentile(margins, 0.8), percentile(volumes, 0.8))

	var changes []models.TierChange
	for _, sku := range skus {
		newTier, score, rationale := c.classify(sku)
		if newTier == sku.Tier {
			continue
		}
		change := store.TierChangeInput{
			SKUCode: sku.Code,
			NewTier: newTier,
			Score:   score,
			History: models.TierHistory{
				SKUCode:   sku.Code,
				OldTier:   sku.Tier,
				NewTier:   newTier,
				Rationale: rationale,
				ChangedBy: actor,
			},
			Audit: models.AuditEntry{
				SKUCode:   sku.Code,
				EventType: "tier.changed",
				Actor:     actor,
				Payload: map[string]interface{}{
					"oldTier":   string(sku.Tier),
					"newTier":   string(newTier),
					"score":     score,
					"rationale": rationale,
				},
			},
		}
		if err := c.store.ApplyTierChanges(ctx, []store.TierChangeInput{change}); err != nil {
			log.Printf("[tier] apply change for %s: %v", sku.Code, err)
			continue
		}
		changes = append(changes, models.TierChange{
			SKUCode:   sku.Code,
			OldTier:   sku.Tier,
			NewTier:   newTier,
			Score:     score,
			Rationale: rationale,
		})
		if c.revalidate != nil {
			if err := c.revalidate.Revalidate(ctx, sku.Code); err != nil {
				log.Printf("[tier] revalidate %s after tier change: %v", sku.Code, err)
			}
		}
	}
	return changes, nil
}

// classify applies the periodic rules to one SKU snapshot.
func (c *Classifier) classify(sku models.SKU) (models.Tier, float64, string) {
	if sku.StrategicHero {
		return models.TierHero, sku.CommercialScore, "strategic hero flag set"
	}

	now := c.now()
	noRecentSale := sku.LastSaleAt == nil || now.Sub(*sku.LastSaleAt) > staleSaleWindow
	if sku.MarginPercent <= 0 || noRecentSale || sku.Velocity == 0 {
		return models.TierKill, 0, fmt.Sprintf(
			"kill condition: margin=%.2f%% velocity=%.0f lastSale=%s",
			sku.MarginPercent, sku.Velocity, formatLastSale(sku.LastSaleAt))
	}

	score := CommercialScore(sku.MarginPercent, sku.CPPC, sku.Velocity, sku.ReturnRate)
	rationale := fmt.Sprintf(
		"score=%.2f (margin=%.2f%% cppc=%.2f velocity=%.0f returnRate=%.2f%%), bands hero>=%.0f support>=%.0f harvest>0",
		score, sku.MarginPercent, sku.CPPC, sku.Velocity, sku.ReturnRate, heroBand, supportBand)

	switch {
	case score >= heroBand:
		return models.TierHero, score, rationale
	case score >= supportBand:
		return models.TierSupport, score, rationale
	case score > 0:
		return models.TierHarvest, score, rationale
	}
	return models.TierKill, score, rationale
}

func formatLastSale(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02")
}

// percentile returns sorted[floor(n*p)], clamped to the last element.
// An empty cohort yields 0 rather than an error.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
