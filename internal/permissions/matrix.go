// Package permissions implements the field-level permission matrix: a pure
// decision function over (role, tier, field-or-action). A field is editable
// only if the role's capability group allows it AND the SKU's current tier
// exposes the field.
package permissions

import (
	"github.com/shelfline/governance/internal/models"
)

// Field names accepted by the matrix. These are the gated SKU fields.
const (
	FieldTitle             = "title"
	FieldShortDescription  = "short_description"
	FieldLongDescription   = "long_description"
	FieldAnswerBlock       = "answer_block"
	FieldBestFor           = "best_for"
	FieldNotFor            = "not_for"
	FieldMetaTitle         = "meta_title"
	FieldMetaDescription   = "meta_description"
	FieldPrimaryIntent     = "primary_intent"
	FieldSecondaryIntents  = "secondary_intents"
	FieldSpecs             = "specs"
	FieldExpertAuthor      = "expert_author"
	FieldExpertCredentials = "expert_credentials"
	FieldExpertReviewedAt  = "expert_reviewed_at"
	FieldCluster           = "cluster"
)

// Actions gated by role alone.
const (
	ActionPublish              = "publish"
	ActionAssignCluster        = "assign_cluster"
	ActionEditTaxonomy         = "edit_taxonomy"
	ActionRecalculateTiers     = "recalculate_tiers"
	ActionApplyCommercialBatch = "apply_commercial_batch"
)

// capability groups partitioning the fields.
type group int

const (
	groupContent group = iota
	groupExpert
	groupCluster
	groupUnknown
)

func fieldGroup(field string) group {
	switch field {
	case FieldTitle, FieldShortDescription, FieldLongDescription,
		FieldAnswerBlock, FieldBestFor, FieldNotFor,
		FieldMetaTitle, FieldMetaDescription,
		FieldPrimaryIntent, FieldSecondaryIntents, FieldSpecs:
		return groupContent
	case FieldExpertAuthor, FieldExpertCredentials, FieldExpertReviewedAt:
		return groupExpert
	case FieldCluster:
		return groupCluster
	}
	return groupUnknown
}

// roleGroups is the fixed allow-set per role. Viewer edits nothing.
var roleGroups = map[models.Role]map[group]bool{
	models.RoleAdmin:          {groupContent: true, groupExpert: true, groupCluster: true},
	models.RoleGovernanceLead: {groupContent: true, groupCluster: true},
	models.RoleContentEditor:  {groupContent: true},
	models.RoleExpertReviewer: {groupExpert: true},
	models.RoleFinance:        {},
	models.RoleViewer:         {},
}

// roleActions is the fixed action allow-set per role. Cluster assignment and
// taxonomy edits belong to the governance lead; tier recalculation and
// commercial pushes belong to finance. Admin holds everything.
var roleActions = map[models.Role]map[string]bool{
	models.RoleAdmin: {
		ActionPublish:              true,
		ActionAssignCluster:        true,
		ActionEditTaxonomy:         true,
		ActionRecalculateTiers:     true,
		ActionApplyCommercialBatch: true,
	},
	models.RoleGovernanceLead: {
		ActionPublish:       true,
		ActionAssignCluster: true,
		ActionEditTaxonomy:  true,
	},
	models.RoleContentEditor: {
		ActionPublish: true,
	},
	models.RoleExpertReviewer: {},
	models.RoleFinance: {
		ActionRecalculateTiers:     true,
		ActionApplyCommercialBatch: true,
	},
	models.RoleViewer: {},
}

// harvestFields is the narrow intent-oriented set a Harvest SKU still
// exposes. Answer block, best-for/not-for and expert fields are hidden.
var harvestFields = map[string]bool{
	FieldTitle:            true,
	FieldShortDescription: true,
	FieldLongDescription:  true,
	FieldMetaTitle:        true,
	FieldMetaDescription:  true,
	FieldPrimaryIntent:    true,
	FieldSecondaryIntents: true,
	FieldSpecs:            true,
	FieldCluster:          true,
}

// TierAllowsField is the tier-level visibility matrix, independent of role.
// Kill hides and locks everything.
func TierAllowsField(tier models.Tier, field string) bool {
	switch tier {
	case models.TierKill:
		return false
	case models.TierHarvest:
		return harvestFields[field]
	case models.TierHero, models.TierSupport:
		return fieldGroup(field) != groupUnknown
	}
	return false
}

// CanEdit reports whether role may mutate field on a SKU in the given tier.
func CanEdit(role models.Role, tier models.Tier, field string) bool {
	g := fieldGroup(field)
	if g == groupUnknown {
		return false
	}
	if !roleGroups[role][g] {
		return false
	}
	return TierAllowsField(tier, field)
}

// CanPerform reports whether role may execute the named action.
func CanPerform(role models.Role, action string) bool {
	return roleActions[role][action]
}

// CanOverrideGateFailures is hard-coded false for every role. No
// configuration may force a blocking gate to pass.
func CanOverrideGateFailures(models.Role) bool {
	return false
}

// DeniedFields returns the subset of fields role may not edit on tier, in
// input order. Empty means the whole mutation is permitted.
func DeniedFields(role models.Role, tier models.Tier, fields []string) []string {
	var denied []string
	for _, f := range fields {
		if !CanEdit(role, tier, f) {
			denied = append(denied, f)
		}
	}
	return denied
}
