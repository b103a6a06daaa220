package gates

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shelfline/governance/internal/models"
)

// ClusterResolver looks up a cluster definition by id.
type ClusterResolver interface {
	GetCluster(ctx context.Context, id string) (models.Cluster, error)
}

// standardUnits is the fixed whitelist of numeric-unit suffixes a spec
// value may carry.
var standardUnits = map[string]bool{
	"mm": true, "cm": true, "m": true, "in": true, "ft": true,
	"g": true, "kg": true, "lb": true,
	"ml": true, "l": true,
	"w": true, "kw": true, "v": true, "a": true, "ah": true, "hz": true,
	"bar": true, "psi": true, "rpm": true, "db": true,
	"°c": true, "°f": true, "%": true,
}

// numericUnitRe matches values shaped like "25 mm", "240V" or "1.5kW": a
// number followed by a unit suffix. Free-text values do not match and are
// not subject to the whitelist.
var numericUnitRe = regexp.MustCompile(`^[0-9]+(?:[.,][0-9]+)?\s*([a-zA-Z°%]+)$`)

// TechnicalSpec (G5) requires an assigned cluster, every spec the cluster
// demands, and whitelisted units on numeric values. Missing configuration
// surfaces as a gate failure, never as a system error.
type TechnicalSpec struct {
	Clusters ClusterResolver
}

func (TechnicalSpec) ID() string   { return "G5" }
func (TechnicalSpec) Name() string { return "technical_spec" }

func (g TechnicalSpec) Evaluate(ctx context.Context, sku *models.SKU) models.GateOutcome {
	if sku.ClusterID == "" {
		return fail(g.ID(), g.Name(), "no cluster assigned", true)
	}

	cluster, err := g.Clusters.GetCluster(ctx, sku.ClusterID)
	if err != nil {
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("cluster %s is not configured: %v", sku.ClusterID, err), true)
	}

	var missing []string
	for _, required := range cluster.RequiredSpecs {
		if strings.TrimSpace(sku.Specs[required]) == "" {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("missing required specifications: %s", strings.Join(missing, ", ")), true)
	}

	for name, value := range sku.Specs {
		if unit, ok := unitSuffix(value); ok && !standardUnits[unit] {
			return fail(g.ID(), g.Name(),
				fmt.Sprintf("specification %q uses non-standard unit %q", name, unit), true)
		}
	}

	return pass(g.ID(), g.Name())
}

// unitSuffix extracts the unit from a numeric-unit value, lowercased.
// Returns ok=false for values without a numeric-unit shape.
func unitSuffix(value string) (string, bool) {
	m := numericUnitRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
