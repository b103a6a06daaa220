// Package validation orchestrates the gate pipeline: run the seven gates in
// order, record every outcome, and derive the SKU's publishability.
package validation

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/shelfline/governance/internal/gates"
	"github.com/shelfline/governance/internal/models"
)

// Store is the persistence surface the validator needs.
type Store interface {
	AppendValidationRun(ctx context.Context, run models.ValidationRun) error
	AppendAuditEntry(ctx context.Context, entry models.AuditEntry) error
	SetValidationStatus(ctx context.Context, code string, status models.ValidationStatus) error
}

// Archiver receives completed runs for long-term archive. Optional;
// archive failure never fails a validation.
type Archiver interface {
	ArchiveRun(ctx context.Context, run models.ValidationRun) error
}

// Options modifies a single Run invocation.
type Options struct {
	// Actor is recorded on the run and its audit entries when known.
	Actor string

	// OverridePending lets the derived status replace a persisted Pending
	// status. Without it, Pending survives so the SKU keeps its place in
	// the manual review queue.
	OverridePending bool
}

type Validator struct {
	gates    []gates.Gate
	store    Store
	archiver Archiver
}

func New(chain []gates.Gate, store Store, archiver Archiver) *Validator {
	return &Validator{gates: chain, store: store, archiver: archiver}
}

// Run evaluates every gate against the SKU snapshot, appends the run and
// one audit entry per outcome, and persists the derived status (subject to
// the Pending exception). The returned run is the append-only record; it is
// complete even when persistence of individual audit entries fails.
func (v *Validator) Run(ctx context.Context, sku *models.SKU, opts Options) (models.ValidationRun, error) {
	run := models.ValidationRun{
		ID:        uuid.New().String(),
		SKUCode:   sku.Code,
		Actor:     opts.Actor,
		CreatedAt: time.Now().UTC(),
	}

	var (
		primaryReason string
		degraded      bool
	)
	for _, gate := range v.gates {
		outcome := gate.Evaluate(ctx, sku)
		run.Outcomes = append(run.Outcomes, outcome)

		if !outcome.Passed {
			if outcome.Blocking && primaryReason == "" {
				primaryReason = outcome.Reason
			}
			if outcome.Degraded() {
				degraded = true
			}
		}

		entry := models.AuditEntry{
			SKUCode:   sku.Code,
			EventType: "gate.evaluated",
			Actor:     opts.Actor,
			Payload: map[string]interface{}{
				"gate":     outcome.GateID,
				"name":     outcome.Name,
				"passed":   outcome.Passed,
				"blocking": outcome.Blocking,
				"reason":   outcome.Reason,
			},
		}
		if err := v.store.AppendAuditEntry(ctx, entry); err != nil {
			log.Printf("[validation] append audit entry for %s/%s: %v", sku.Code, outcome.GateID, err)
		}
	}

	switch {
	case degraded:
		run.Status = models.StatusDegraded
		run.Publishable = false
		run.NextAction = "retry automatically"
	case primaryReason != "":
		run.Status = models.StatusInvalid
		run.Publishable = false
		run.NextAction = primaryReason
	default:
		run.Status = models.StatusValid
		run.Publishable = true
	}

	if err := v.store.AppendValidationRun(ctx, run); err != nil {
		return run, err
	}

	// A persisted Pending status means the SKU is queued for manual review;
	// the derived status does not displace it unless explicitly overridden.
	if sku.ValidationStatus == models.StatusPending && !opts.OverridePending {
		log.Printf("[validation] sku %s is pending review, derived status %s not persisted", sku.Code, run.Status)
	} else if err := v.store.SetValidationStatus(ctx, sku.Code, run.Status); err != nil {
		return run, err
	}

	if v.archiver != nil {
		if err := v.archiver.ArchiveRun(ctx, run); err != nil {
			log.Printf("[validation] archive run %s: %v", run.ID, err)
		}
	}

	return run, nil
}
