package gates

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/similarity"
)

// expertReviewMaxAge is how recent the expert review date must be.
const expertReviewMaxAge = 365 * 24 * time.Hour

// CommercialPolicy (G6) rejects content effort that contradicts the tier:
// any edit on a Kill SKU is itself a violation signal, and Harvest is
// restricted to Specification-only effort.
type CommercialPolicy struct{}

func (CommercialPolicy) ID() string   { return "G6" }
func (CommercialPolicy) Name() string { return "commercial_policy" }

func (g CommercialPolicy) Evaluate(_ context.Context, sku *models.SKU) models.GateOutcome {
	if sku.Tier == models.TierKill {
		return fail(g.ID(), g.Name(), "kill tier: content effort is not permitted", true)
	}
	if sku.Tier == models.TierHarvest && len(sku.SecondaryIntents) > 0 {
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("harvest tier allows no secondary intents, %d assigned", len(sku.SecondaryIntents)), true)
	}
	return pass(g.ID(), g.Name())
}

// ExpertAuthority (G7) requires a named expert author, credentials, and a
// review within the last year. Blocking for Hero and Support; informational
// for the lower tiers.
type ExpertAuthority struct {
	Now func() time.Time
}

func (ExpertAuthority) ID() string   { return "G7" }
func (ExpertAuthority) Name() string { return "expert_authority" }

func (g ExpertAuthority) Evaluate(_ context.Context, sku *models.SKU) models.GateOutcome {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	blocking := sku.Tier == models.TierHero || sku.Tier == models.TierSupport

	switch {
	case sku.ExpertAuthor == "":
		return fail(g.ID(), g.Name(), "expert author missing", blocking)
	case sku.ExpertCredentials == "":
		return fail(g.ID(), g.Name(), "expert credentials missing", blocking)
	case sku.ExpertReviewedAt == nil:
		return fail(g.ID(), g.Name(), "no expert review recorded", blocking)
	case now().Sub(*sku.ExpertReviewedAt) > expertReviewMaxAge:
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("expert review from %s is older than one year", sku.ExpertReviewedAt.Format("2006-01-02")), blocking)
	}
	return pass(g.ID(), g.Name())
}

// Chain returns the seven gates in their fixed evaluation order.
func Chain(brandName string, scorer similarity.Client, minSimilarity float64, clusters ClusterResolver) []Gate {
	return []Gate{
		BasicInfo{},
		PrimaryIntent{},
		SecondaryIntent{},
		AnswerBlock{BrandName: brandName, Scorer: scorer, MinSimilarity: minSimilarity},
		TechnicalSpec{Clusters: clusters},
		CommercialPolicy{},
		ExpertAuthority{},
	}
}
