package decay_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/governance/internal/decay"
	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/notify"
	"github.com/shelfline/governance/internal/store"
)

type recordingSink struct {
	messages []notify.Message
}

func (s *recordingSink) Notify(_ context.Context, msg notify.Message) error {
	s.messages = append(s.messages, msg)
	return nil
}

func seedHero(t *testing.T, st *store.MemoryStore, code string) {
	t.Helper()
	_, err := st.CreateSKU(context.Background(), models.SKU{Code: code, Tier: models.TierHero})
	require.NoError(t, err)
}

func TestEscalationLadder(t *testing.T) {
	st := store.NewMemoryStore()
	seedHero(t, st, "HERO-1")
	sink := &recordingSink{}
	e := decay.NewEscalator(st, sink)

	runs := []struct {
		runID string
		stage models.DecayStage
	}{
		{"run-1", models.DecayYellowFlag},
		{"run-2", models.DecayAlert},
		{"run-3", models.DecayAutoBrief},
		{"run-4", models.DecayEscalated},
		{"run-5", models.DecayEscalated},
	}
	for i, step := range runs {
		changed, err := e.ProcessWeekly(context.Background(), "HERO-1", 0, models.QuorumMet, step.runID)
		require.NoError(t, err)
		assert.True(t, changed, "week %d", i+1)

		state, err := st.GetDecayState(context.Background(), "HERO-1")
		require.NoError(t, err)
		assert.Equal(t, i+1, state.Weeks)
		assert.Equal(t, step.stage, state.Stage)
	}

	// Exactly one brief, created at week three.
	briefs, err := st.ListBriefs(context.Background(), "HERO-1")
	require.NoError(t, err)
	require.Len(t, briefs, 1)
	assert.Equal(t, decay.BriefType, briefs[0].Type)
	assert.Equal(t, models.BriefDraft, briefs[0].Status)
	assert.Equal(t, "3-week citation decay", briefs[0].Reason)

	require.Len(t, sink.messages, 5)
	assert.Equal(t, notify.SeverityWarning, sink.messages[1].Severity)
	assert.Equal(t, notify.SeverityCritical, sink.messages[3].Severity)
}

func TestSameRunIDIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	seedHero(t, st, "HERO-1")
	e := decay.NewEscalator(st, notify.LogSink{})

	changed, err := e.ProcessWeekly(context.Background(), "HERO-1", 0, models.QuorumMet, "run-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = e.ProcessWeekly(context.Background(), "HERO-1", 0, models.QuorumMet, "run-1")
	require.NoError(t, err)
	assert.False(t, changed, "replaying the same audit run must not advance the counter")

	state, err := st.GetDecayState(context.Background(), "HERO-1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Weeks)
}

func TestCitationScoreResetsStreak(t *testing.T) {
	st := store.NewMemoryStore()
	seedHero(t, st, "HERO-1")
	e := decay.NewEscalator(st, notify.LogSink{})

	for _, runID := range []string{"run-1", "run-2"} {
		_, err := e.ProcessWeekly(context.Background(), "HERO-1", 0, models.QuorumMet, runID)
		require.NoError(t, err)
	}

	healed, err := e.ProcessWeekly(context.Background(), "HERO-1", 3.5, models.QuorumMet, "run-3")
	require.NoError(t, err)
	assert.True(t, healed)

	state, err := st.GetDecayState(context.Background(), "HERO-1")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Weeks)
	assert.Equal(t, models.DecayNone, state.Stage)

	// Healthy staying healthy is not a mutation.
	changed, err := e.ProcessWeekly(context.Background(), "HERO-1", 2.0, models.QuorumMet, "run-4")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestResetThenDecayCreatesSecondBrief(t *testing.T) {
	st := store.NewMemoryStore()
	seedHero(t, st, "HERO-1")
	e := decay.NewEscalator(st, notify.LogSink{})

	run := 0
	week := func(score float64) {
		run++
		_, err := e.ProcessWeekly(context.Background(), "HERO-1", score, models.QuorumMet,
			"run-"+string(rune('a'+run)))
		require.NoError(t, err)
	}

	week(0)
	week(0)
	week(0) // first brief
	week(1) // heal
	week(0)
	week(0)
	week(0) // second streak, second brief

	briefs, err := st.ListBriefs(context.Background(), "HERO-1")
	require.NoError(t, err)
	assert.Len(t, briefs, 2, "one brief per uninterrupted streak")
}

func TestQuorumFreezeBlocksEscalation(t *testing.T) {
	st := store.NewMemoryStore()
	seedHero(t, st, "HERO-1")
	e := decay.NewEscalator(st, notify.LogSink{})

	for _, quorum := range []models.QuorumStatus{models.QuorumFreeze, models.QuorumPause} {
		changed, err := e.ProcessWeekly(context.Background(), "HERO-1", 0, quorum, "run-1")
		require.NoError(t, err)
		assert.False(t, changed, "quorum %s", quorum)
	}

	_, err := st.GetDecayState(context.Background(), "HERO-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "no state written while frozen")
}

func TestNonHeroOutOfScope(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := st.CreateSKU(context.Background(), models.SKU{Code: "SUP-1", Tier: models.TierSupport})
	require.NoError(t, err)
	e := decay.NewEscalator(st, notify.LogSink{})

	changed, err := e.ProcessWeekly(context.Background(), "SUP-1", 0, models.QuorumMet, "run-1")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestProcessCycleCoversHeroPopulation(t *testing.T) {
	st := store.NewMemoryStore()
	seedHero(t, st, "HERO-1")
	seedHero(t, st, "HERO-2")
	_, err := st.CreateSKU(context.Background(), models.SKU{Code: "SUP-1", Tier: models.TierSupport})
	require.NoError(t, err)
	e := decay.NewEscalator(st, notify.LogSink{})

	// HERO-1 has citations this week, HERO-2 is absent from the score map.
	changed, err := e.ProcessCycle(context.Background(), "run-1",
		map[string]float64{"HERO-1": 4.2}, models.QuorumMet)
	require.NoError(t, err)
	assert.Equal(t, 1, changed, "only HERO-2 decays")

	state, err := st.GetDecayState(context.Background(), "HERO-2")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Weeks)
	assert.Equal(t, models.DecayYellowFlag, state.Stage)
}
