package governance_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/governance/internal/gates"
	"github.com/shelfline/governance/internal/governance"
	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/notify"
	"github.com/shelfline/governance/internal/permissions"
	"github.com/shelfline/governance/internal/store"
	"github.com/shelfline/governance/internal/tier"
	"github.com/shelfline/governance/internal/validation"
)

func answerText(stem string) string {
	base := "Proper " + stem + " of this pump takes under an hour with common hand tools. "
	for len([]rune(base)) < 260 {
		base += "Check the inlet seal before first use and keep the filter clear. "
	}
	return string([]rune(base)[:260])
}

func newService(t *testing.T) (*governance.Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	validator := validation.New(gates.Chain("Shelfline", nil, 0.75, st), st, nil)
	return governance.New(st, validator, notify.LogSink{}), st
}

func seedHero(t *testing.T, st *store.MemoryStore) models.SKU {
	t.Helper()
	reviewed := time.Now().Add(-30 * 24 * time.Hour)
	recent := time.Now().Add(-5 * 24 * time.Hour)
	sku, err := st.CreateSKU(context.Background(), models.SKU{
		Code:             "PMP-100",
		Tier:             models.TierHero,
		Title:            "Submersible Drainage Pump 400W",
		ShortDescription: strings.Repeat("Drains flooded cellars fast. ", 3),
		AnswerBlock:      answerText("installation"),
		PrimaryIntent:    "Installation",
		SecondaryIntents: []string{"Troubleshooting"},
		ClusterID:        "pumps",
		Specs: map[string]string{
			"flow_rate": "7500 l",
			"voltage":   "230 V",
		},
		ExpertAuthor:      "R. Molenaar",
		ExpertCredentials: "Certified installer",
		ExpertReviewedAt:  &reviewed,
		MarginPercent:     40,
		CPPC:              2,
		Velocity:          500,
		ReturnRate:        5,
		LastSaleAt:        &recent,
	})
	require.NoError(t, err)
	require.NoError(t, st.PutCluster(context.Background(), models.Cluster{
		ID:            "pumps",
		RequiredSpecs: []string{"flow_rate", "voltage"},
	}))
	return sku
}

func TestUpdateFieldsAppliesPermittedChanges(t *testing.T) {
	svc, st := newService(t)
	sku := seedHero(t, st)

	editor := governance.Actor{Name: "editor@test", Role: models.RoleContentEditor}
	updated, err := svc.UpdateFields(context.Background(), editor, sku.Code, sku.Version, map[string]interface{}{
		permissions.FieldTitle:            "Submersible Drainage Pump 400W Pro",
		permissions.FieldSecondaryIntents: []string{"Comparison"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Submersible Drainage Pump 400W Pro", updated.Title)
	assert.Equal(t, []string{"Comparison"}, updated.SecondaryIntents)
	assert.Equal(t, sku.Version+1, updated.Version)

	entries := st.AuditEntries(sku.Code)
	require.NotEmpty(t, entries)
	assert.Equal(t, "sku.updated", entries[len(entries)-1].EventType)
}

func TestUpdateFieldsRejectsDeniedFieldsBeforeWriting(t *testing.T) {
	svc, st := newService(t)
	sku := seedHero(t, st)

	editor := governance.Actor{Name: "editor@test", Role: models.RoleContentEditor}
	_, err := svc.UpdateFields(context.Background(), editor, sku.Code, sku.Version, map[string]interface{}{
		permissions.FieldTitle:        "New title",
		permissions.FieldExpertAuthor: "someone",
		permissions.FieldCluster:      "other",
	})

	var authz *governance.AuthorizationError
	require.ErrorAs(t, err, &authz)
	assert.ElementsMatch(t, []string{permissions.FieldExpertAuthor, permissions.FieldCluster}, authz.Fields)

	// Nothing was written, including the permitted field.
	stored, getErr := st.GetSKU(context.Background(), sku.Code)
	require.NoError(t, getErr)
	assert.Equal(t, sku.Title, stored.Title)
	assert.Equal(t, sku.Version, stored.Version)
}

func TestUpdateFieldsStaleVersion(t *testing.T) {
	svc, st := newService(t)
	sku := seedHero(t, st)

	editor := governance.Actor{Name: "editor@test", Role: models.RoleContentEditor}
	_, err := svc.UpdateFields(context.Background(), editor, sku.Code, sku.Version, map[string]interface{}{
		permissions.FieldTitle: "First writer",
	})
	require.NoError(t, err)

	_, err = svc.UpdateFields(context.Background(), editor, sku.Code, sku.Version, map[string]interface{}{
		permissions.FieldTitle: "Second writer",
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestUpdateFieldsTypeMismatch(t *testing.T) {
	svc, st := newService(t)
	sku := seedHero(t, st)

	editor := governance.Actor{Name: "editor@test", Role: models.RoleContentEditor}
	_, err := svc.UpdateFields(context.Background(), editor, sku.Code, sku.Version, map[string]interface{}{
		permissions.FieldTitle: 42,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected string")
}

func TestEvaluateRunsPipeline(t *testing.T) {
	svc, st := newService(t)
	sku := seedHero(t, st)

	run, err := svc.Evaluate(context.Background(), sku.Code, governance.Actor{Name: "lead", Role: models.RoleGovernanceLead}, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusValid, run.Status)
	assert.Len(t, run.Outcomes, 7)
}

func TestSubmitForReview(t *testing.T) {
	svc, st := newService(t)
	sku := seedHero(t, st)

	viewer := governance.Actor{Name: "viewer", Role: models.RoleViewer}
	err := svc.SubmitForReview(context.Background(), viewer, sku.Code)
	var perm *governance.PermissionError
	assert.ErrorAs(t, err, &perm)

	editor := governance.Actor{Name: "editor", Role: models.RoleContentEditor}
	require.NoError(t, svc.SubmitForReview(context.Background(), editor, sku.Code))

	stored, err := st.GetSKU(context.Background(), sku.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.ValidationStatus)
}

func TestRecalculateAllTiersRequiresRole(t *testing.T) {
	svc, st := newService(t)
	seedHero(t, st)

	_, err := svc.RecalculateAllTiers(context.Background(), governance.Actor{Role: models.RoleContentEditor})
	var perm *governance.PermissionError
	assert.ErrorAs(t, err, &perm)

	_, err = svc.RecalculateAllTiers(context.Background(), governance.Actor{Name: "cfo", Role: models.RoleFinance})
	assert.NoError(t, err)
}

func TestApplyCommercialBatchRequiresRole(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.ApplyCommercialBatch(context.Background(),
		governance.Actor{Role: models.RoleGovernanceLead}, []tier.CommercialRecord{})
	var perm *governance.PermissionError
	assert.ErrorAs(t, err, &perm)

	_, err = svc.ApplyCommercialBatch(context.Background(),
		governance.Actor{Role: models.RoleFinance}, []tier.CommercialRecord{})
	assert.NoError(t, err)
}

func TestTierChangeTriggersRevalidation(t *testing.T) {
	svc, st := newService(t)
	sku := seedHero(t, st)

	// Force the hero into a kill condition so the sweep demotes it.
	stored, err := st.GetSKU(context.Background(), sku.Code)
	require.NoError(t, err)
	stored.Velocity = 0
	_, err = st.UpdateSKU(context.Background(), stored)
	require.NoError(t, err)

	changes, err := svc.RecalculateAllTiers(context.Background(), governance.Actor{Name: "cfo", Role: models.RoleFinance})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.TierKill, changes[0].NewTier)

	// The revalidation ran against the demoted SKU and recorded a run.
	runs, err := st.ListValidationRuns(context.Background(), sku.Code, 10)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	assert.Equal(t, models.StatusInvalid, runs[0].Status, "kill tier fails the commercial policy gate")
}

func TestProcessWeeklyDecayDelegates(t *testing.T) {
	svc, st := newService(t)
	seedHero(t, st)

	changed, err := svc.ProcessWeeklyDecay(context.Background(), "PMP-100", 0, models.QuorumMet, "run-1")
	require.NoError(t, err)
	assert.True(t, changed)

	state, err := st.GetDecayState(context.Background(), "PMP-100")
	require.NoError(t, err)
	assert.Equal(t, models.DecayYellowFlag, state.Stage)
}

func TestCanEditPassthrough(t *testing.T) {
	svc, _ := newService(t)
	assert.True(t, svc.CanEdit(models.RoleContentEditor, models.TierHero, permissions.FieldTitle))
	assert.False(t, svc.CanEdit(models.RoleContentEditor, models.TierKill, permissions.FieldTitle))
}
