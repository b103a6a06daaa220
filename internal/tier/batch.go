package tier

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/store"
)

// CommercialRecord is one row of an ERP commercial data push.
type CommercialRecord struct {
	SKUCode       string  `json:"skuCode"`
	MarginPercent float64 `json:"marginPercent"`
	CPPC          float64 `json:"cppc"`
	Velocity      float64 `json:"velocity"`
	ReturnRate    float64 `json:"returnRate"`
}

// Percentiles are the cohort thresholds computed over one batch.
type Percentiles struct {
	P80 float64 `json:"p80"`
	P30 float64 `json:"p30"`
	P10 float64 `json:"p10"`
}

// BatchResult reports one commercial batch application.
type BatchResult struct {
	Applied        int                 `json:"applied"`
	AutoPromotions int                 `json:"autoPromotions"`
	Errors         []string            `json:"errors,omitempty"`
	Percentiles    Percentiles         `json:"percentiles"`
	Changes        []models.TierChange `json:"changes,omitempty"`
}

// BatchScore is the relative in-cohort composite (0-1 scale).
func BatchScore(rec CommercialRecord, maxVelocity float64) float64 {
	return marginWeight*(rec.MarginPercent/100) +
		cppcWeight*(1/math.Max(rec.CPPC, 0.01)) +
		velocityWeight*(rec.Velocity/maxVelocity) +
		returnWeight*(1-rec.ReturnRate/100)
}

// ApplyCommercialBatch scores the batch cohort, assigns tiers by cohort
// percentile, and commits every change in one transaction. Any failure in
// applying the batch rolls the whole thing back and reports zero applied.
func (c *Classifier) ApplyCommercialBatch(ctx context.Context, batch []CommercialRecord, actor string) (BatchResult, error) {
	result := BatchResult{}
	if len(batch) == 0 {
		return result, nil
	}

	maxVelocity := 1.0
	for _, rec := range batch {
		if rec.Velocity > maxVelocity {
			maxVelocity = rec.Velocity
		}
	}

	scores := make(map[string]float64, len(batch))
	cohort := make([]float64, 0, len(batch))
	for _, rec := range batch {
		s := BatchScore(rec, maxVelocity)
		scores[rec.SKUCode] = s
		cohort = append(cohort, s)
	}
	sort.Float64s(cohort)
	result.Percentiles = Percentiles{
		P80: percentile(cohort, 0.8),
		P30: percentile(cohort, 0.3),
		P10: percentile(cohort, 0.1),
	}

	var (
		changes    []store.TierChangeInput
		summaries  []models.TierChange
		promotions int
	)
	for _, rec := range batch {
		sku, err := c.store.GetSKU(ctx, rec.SKUCode)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.SKUCode, err))
			continue
		}

		score := scores[rec.SKUCode]
		newTier, rationale := bandByCohort(rec, score, result.Percentiles)

		autoPromoted := false
		if newTier == models.TierHarvest &&
			sku.PrevQuarterVelocity > 0 &&
			rec.Velocity > promotionVelocityRatio*sku.PrevQuarterVelocity {
			newTier = models.TierSupport
			autoPromoted = true
			promotions++
			rationale += fmt.Sprintf("; auto-promoted to support: velocity %.0f > %.2fx previous quarter %.0f",
				rec.Velocity, promotionVelocityRatio, sku.PrevQuarterVelocity)
		}

		if newTier == sku.Tier {
			continue
		}

		changes = append(changes, store.TierChangeInput{
			SKUCode: sku.Code,
			NewTier: newTier,
			Score:   score,
			Commercial: &store.CommercialFields{
				MarginPercent: rec.MarginPercent,
				CPPC:          rec.CPPC,
				Velocity:      rec.Velocity,
				ReturnRate:    rec.ReturnRate,
			},
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
					"trigger":   "commercial_batch",
					"oldTier":   string(sku.Tier),
					"newTier":   string(newTier),
					"score":     score,
					"rationale": rationale,
				},
			},
		})
		summaries = append(summaries, models.TierChange{
			SKUCode:      sku.Code,
			OldTier:      sku.Tier,
			NewTier:      newTier,
			Score:        score,
			Rationale:    rationale,
			AutoPromoted: autoPromoted,
		})
	}

	if err := c.store.ApplyTierChanges(ctx, changes); err != nil {
		result.Applied = 0
		result.AutoPromotions = 0
		result.Changes = nil
		result.Errors = append(result.Errors, fmt.Sprintf("batch rolled back: %v", err))
		return result, fmt.Errorf("apply commercial batch: %w", err)
	}

	result.Applied = len(changes)
	result.AutoPromotions = promotions
	result.Changes = summaries

	for _, ch := range summaries {
		if c.revalidate == nil {
			break
		}
		if err := c.revalidate.Revalidate(ctx, ch.SKUCode); err != nil {
			log.Printf("[tier] revalidate %s after batch tier change: %v", ch.SKUCode, err)
		}
	}
	return result, nil
}

// bandByCohort assigns a tier from the cohort thresholds. A negative margin
// overrides everything.
func bandByCohort(rec CommercialRecord, score float64, p Percentiles) (models.Tier, string) {
	rationale := fmt.Sprintf(
		"batch score=%.4f (margin=%.2f%% cppc=%.2f velocity=%.0f returnRate=%.2f%%), cohort p80=%.4f p30=%.4f p10=%.4f",
		score, rec.MarginPercent, rec.CPPC, rec.Velocity, rec.ReturnRate, p.P80, p.P30, p.P10)

	if rec.MarginPercent < 0 {
		return models.TierKill, "negative margin override; " + rationale
	}
	switch {
	case score >= p.P80:
		return models.TierHero, rationale
	case score >= p.P30:
		return models.TierSupport, rationale
	case score >= p.P10:
		return models.TierHarvest, rationale
	}
	return models.TierKill, rationale
}
