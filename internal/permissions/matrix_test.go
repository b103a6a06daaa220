package permissions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/permissions"
)

func TestKillTierLocksEveryField(t *testing.T) {
	fields := []string{
		permissions.FieldTitle,
		permissions.FieldShortDescription,
		permissions.FieldAnswerBlock,
		permissions.FieldSpecs,
		permissions.FieldExpertAuthor,
		permissions.FieldCluster,
	}
	for _, role := range models.Roles {
		for _, field := range fields {
			assert.False(t, permissions.CanEdit(role, models.TierKill, field),
				"role %s should not edit %s on kill tier", role, field)
		}
	}
}

func TestHarvestHidesAnswerBlockAndExpertFields(t *testing.T) {
	assert.False(t, permissions.CanEdit(models.RoleAdmin, models.TierHarvest, permissions.FieldAnswerBlock))
	assert.False(t, permissions.CanEdit(models.RoleAdmin, models.TierHarvest, permissions.FieldBestFor))
	assert.False(t, permissions.CanEdit(models.RoleAdmin, models.TierHarvest, permissions.FieldNotFor))
	assert.False(t, permissions.CanEdit(models.RoleExpertReviewer, models.TierHarvest, permissions.FieldExpertAuthor))

	assert.True(t, permissions.CanEdit(models.RoleContentEditor, models.TierHarvest, permissions.FieldTitle))
	assert.True(t, permissions.CanEdit(models.RoleContentEditor, models.TierHarvest, permissions.FieldSpecs))
}

func TestRoleGroupsPartitionFields(t *testing.T) {
	// Content editor owns content fields but nothing expert- or cluster-side.
	assert.True(t, permissions.CanEdit(models.RoleContentEditor, models.TierHero, permissions.FieldAnswerBlock))
	assert.False(t, permissions.CanEdit(models.RoleContentEditor, models.TierHero, permissions.FieldExpertAuthor))
	assert.False(t, permissions.CanEdit(models.RoleContentEditor, models.TierHero, permissions.FieldCluster))

	// Expert reviewer is the inverse.
	assert.True(t, permissions.CanEdit(models.RoleExpertReviewer, models.TierHero, permissions.FieldExpertReviewedAt))
	assert.False(t, permissions.CanEdit(models.RoleExpertReviewer, models.TierHero, permissions.FieldTitle))

	// Governance lead additionally owns cluster assignment.
	assert.True(t, permissions.CanEdit(models.RoleGovernanceLead, models.TierHero, permissions.FieldCluster))
	assert.False(t, permissions.CanEdit(models.RoleGovernanceLead, models.TierHero, permissions.FieldExpertAuthor))

	// Finance and viewer edit nothing at all.
	assert.False(t, permissions.CanEdit(models.RoleFinance, models.TierHero, permissions.FieldTitle))
	assert.False(t, permissions.CanEdit(models.RoleViewer, models.TierHero, permissions.FieldTitle))
}

func TestUnknownFieldNeverEditable(t *testing.T) {
	assert.False(t, permissions.CanEdit(models.RoleAdmin, models.TierHero, "price"))
	assert.False(t, permissions.TierAllowsField(models.TierHero, "price"))
}

func TestActions(t *testing.T) {
	assert.True(t, permissions.CanPerform(models.RoleFinance, permissions.ActionApplyCommercialBatch))
	assert.True(t, permissions.CanPerform(models.RoleFinance, permissions.ActionRecalculateTiers))
	assert.False(t, permissions.CanPerform(models.RoleFinance, permissions.ActionPublish))

	assert.True(t, permissions.CanPerform(models.RoleGovernanceLead, permissions.ActionEditTaxonomy))
	assert.False(t, permissions.CanPerform(models.RoleContentEditor, permissions.ActionAssignCluster))
	assert.False(t, permissions.CanPerform(models.RoleViewer, permissions.ActionPublish))
}

func TestNoRoleOverridesGateFailures(t *testing.T) {
	for _, role := range models.Roles {
		assert.False(t, permissions.CanOverrideGateFailures(role), "role %s", role)
	}
}

func TestDeniedFieldsKeepsInputOrder(t *testing.T) {
	denied := permissions.DeniedFields(models.RoleContentEditor, models.TierHero, []string{
		permissions.FieldCluster,
		permissions.FieldTitle,
		permissions.FieldExpertAuthor,
	})
	assert.Equal(t, []string{permissions.FieldCluster, permissions.FieldExpertAuthor}, denied)
}
