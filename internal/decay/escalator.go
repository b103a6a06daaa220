// Package decay runs the weekly citation-decay state machine over Hero
// SKUs. The counter of consecutive zero-citation weeks maps to escalation
// stages; the third week produces exactly one remediation brief per
// uninterrupted streak.
package decay

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/notify"
	"github.com/shelfline/governance/internal/store"
)

// BriefType is the remediation brief kind created at week three.
const BriefType = "refresh"

type Escalator struct {
	store store.Store
	sink  notify.Sink
}

func NewEscalator(st store.Store, sink notify.Sink) *Escalator {
	return &Escalator{store: st, sink: sink}
}

// stageForWeeks maps the consecutive-zero-week counter to a stage.
// Counters beyond four stay Escalated.
func stageForWeeks(weeks int) models.DecayStage {
	switch {
	case weeks <= 0:
		return models.DecayNone
	case weeks == 1:
		return models.DecayYellowFlag
	case weeks == 2:
		return models.DecayAlert
	case weeks == 3:
		return models.DecayAutoBrief
	}
	return models.DecayEscalated
}

func severityForStage(stage models.DecayStage) notify.Severity {
	switch stage {
	case models.DecayAlert:
		return notify.SeverityWarning
	case models.DecayEscalated:
		return notify.SeverityCritical
	}
	return notify.SeverityInfo
}

// ProcessWeekly advances (or resets) one SKU's decay state for a given
// audit run. It returns true when the state was mutated; false when the
// SKU is out of scope, the quorum froze processing, the run id was already
// processed, or a healthy SKU stayed healthy.
func (e *Escalator) ProcessWeekly(ctx context.Context, skuCode string, citationScore float64, quorum models.QuorumStatus, runID string) (bool, error) {
	sku, err := e.store.GetSKU(ctx, skuCode)
	if err != nil {
		return false, fmt.Errorf("get sku: %w", err)
	}
	if sku.Tier != models.TierHero {
		return false, nil
	}
	if quorum == models.QuorumFreeze || quorum == models.QuorumPause {
		log.Printf("[decay] sku %s: quorum %s, escalation frozen", skuCode, quorum)
		return false, nil
	}

	state, err := e.store.GetDecayState(ctx, skuCode)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("get decay state: %w", err)
		}
		state = models.DecayState{SKUCode: skuCode, Stage: models.DecayNone}
	}

	// Re-running the cycle against an already-processed audit run must not
	// double-count decay weeks.
	if runID != "" && state.LastRunID == runID {
		return false, nil
	}

	if citationScore > 0 {
		healed := state.Weeks != 0 || state.Stage != models.DecayNone
		state.Weeks = 0
		state.Stage = models.DecayNone
		state.LastRunID = runID
		if err := e.store.PutDecayState(ctx, state); err != nil {
			return false, fmt.Errorf("put decay state: %w", err)
		}
		if healed {
			e.audit(ctx, skuCode, state, runID, "self-healed")
		}
		return healed, nil
	}

	state.Weeks++
	state.Stage = stageForWeeks(state.Weeks)
	state.LastRunID = runID
	if err := e.store.PutDecayState(ctx, state); err != nil {
		return false, fmt.Errorf("put decay state: %w", err)
	}

	if state.Weeks == 3 {
		brief := models.ContentBrief{
			SKUCode: skuCode,
			Type:    BriefType,
			Reason:  "3-week citation decay",
			Status:  models.BriefDraft,
		}
		if _, err := e.store.CreateBrief(ctx, brief); err != nil {
			return true, fmt.Errorf("create brief: %w", err)
		}
	}

	notify.Send(ctx, e.sink, notify.Message{
		Severity: severityForStage(state.Stage),
		Text:     fmt.Sprintf("citation decay week %d (%s)", state.Weeks, state.Stage),
		SKUCode:  skuCode,
	})
	e.audit(ctx, skuCode, state, runID, "decayed")
	return true, nil
}

// ProcessCycle runs one audit run across the whole Hero population.
// Missing scores count as zero-citation weeks. Per-SKU failures are
// collected and do not abort the cycle.
func (e *Escalator) ProcessCycle(ctx context.Context, runID string, scores map[string]float64, quorum models.QuorumStatus) (int, error) {
	heroes, err := e.store.ListSKUs(ctx, store.SKUFilter{Tier: models.TierHero})
	if err != nil {
		return 0, fmt.Errorf("list hero skus: %w", err)
	}

	processed := 0
	for _, sku := range heroes {
		changed, err := e.ProcessWeekly(ctx, sku.Code, scores[sku.Code], quorum, runID)
		if err != nil {
			log.Printf("[decay] process %s in run %s: %v", sku.Code, runID, err)
			continue
		}
		if changed {
			processed++
		}
	}
	return processed, nil
}

func (e *Escalator) audit(ctx context.Context, skuCode string, state models.DecayState, runID, event string) {
	entry := models.AuditEntry{
		SKUCode:   skuCode,
		EventType: "decay." + event,
		Payload: map[string]interface{}{
			"weeks": state.Weeks,
			"stage": string(state.Stage),
			"runId": runID,
		},
	}
	if err := e.store.AppendAuditEntry(ctx, entry); err != nil {
		log.Printf("[decay] append audit entry for %s: %v", skuCode, err)
	}
}
