package gates

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shelfline/governance/internal/models"
)

// ApprovedIntents is the fixed nine-term buyer-intent taxonomy. Matching is
// case-insensitive.
var ApprovedIntents = []string{
	"Compatibility",
	"Inspiration",
	"Problem-Solving",
	"Specification",
	"Comparison",
	"Installation",
	"Troubleshooting",
	"Regulatory",
	"Replacement",
}

// intentStems maps each taxonomy term to the stemmed keyword the answer
// block must contain.
var intentStems = map[string]string{
	"compatibility":   "compat",
	"inspiration":     "inspir",
	"problem-solving": "solut",
	"specification":   "spec",
	"comparison":      "compar",
	"installation":    "install",
	"troubleshooting": "shoot",
	"regulatory":      "safe",
	"replacement":     "replac",
}

// IntentApproved reports whether name is in the taxonomy, ignoring case.
func IntentApproved(name string) bool {
	_, ok := intentStems[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// IntentStem returns the stemmed keyword for an approved intent, or "".
func IntentStem(name string) string {
	return intentStems[strings.ToLower(strings.TrimSpace(name))]
}

// BasicInfo (G1) requires a code, a title, and a short description of at
// least 50 characters.
type BasicInfo struct{}

func (BasicInfo) ID() string   { return "G1" }
func (BasicInfo) Name() string { return "basic_info" }

func (g BasicInfo) Evaluate(_ context.Context, sku *models.SKU) models.GateOutcome {
	if strings.TrimSpace(sku.Code) == "" {
		return fail(g.ID(), g.Name(), "sku code missing", true)
	}
	if strings.TrimSpace(sku.Title) == "" {
		return fail(g.ID(), g.Name(), "title missing", true)
	}
	if utf8.RuneCountInString(strings.TrimSpace(sku.ShortDescription)) < 50 {
		return fail(g.ID(), g.Name(), "short description missing or under 50 characters", true)
	}
	return pass(g.ID(), g.Name())
}

// PrimaryIntent (G2) requires exactly one primary intent drawn from the
// approved taxonomy.
type PrimaryIntent struct{}

func (PrimaryIntent) ID() string   { return "G2" }
func (PrimaryIntent) Name() string { return "primary_intent" }

func (g PrimaryIntent) Evaluate(_ context.Context, sku *models.SKU) models.GateOutcome {
	if strings.TrimSpace(sku.PrimaryIntent) == "" {
		return fail(g.ID(), g.Name(), "no primary intent assigned", true)
	}
	if !IntentApproved(sku.PrimaryIntent) {
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("primary intent %q is not in the approved taxonomy", sku.PrimaryIntent), true)
	}
	return pass(g.ID(), g.Name())
}

// SecondaryIntent (G3) enforces disjointness from the primary, uniqueness
// among the secondaries, the ≤3 cap, and the Hero/Support minimum of one
// secondary intent.
type SecondaryIntent struct{}

func (SecondaryIntent) ID() string   { return "G3" }
func (SecondaryIntent) Name() string { return "secondary_intent" }

func (g SecondaryIntent) Evaluate(_ context.Context, sku *models.SKU) models.GateOutcome {
	primary := strings.ToLower(strings.TrimSpace(sku.PrimaryIntent))
	seen := make(map[string]struct{}, len(sku.SecondaryIntents))
	for _, sec := range sku.SecondaryIntents {
		key := strings.ToLower(strings.TrimSpace(sec))
		if key == primary && primary != "" {
			return fail(g.ID(), g.Name(),
				fmt.Sprintf("secondary intent %q duplicates the primary intent", sec), true)
		}
		if _, dup := seen[key]; dup {
			return fail(g.ID(), g.Name(),
				fmt.Sprintf("secondary intent %q is listed more than once", sec), true)
		}
		seen[key] = struct{}{}
	}
	if len(sku.SecondaryIntents) > 3 {
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("%d secondary intents assigned, maximum is 3", len(sku.SecondaryIntents)), true)
	}
	if (sku.Tier == models.TierHero || sku.Tier == models.TierSupport) && len(sku.SecondaryIntents) < 1 {
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("%s tier requires at least one secondary intent", sku.Tier), true)
	}
	return pass(g.ID(), g.Name())
}
