// Package gates implements the seven governance rule checks a SKU must pass
// before publication. Each gate is one Evaluate variant; the validator runs
// them in the fixed chain order and never short-circuits, so every run
// records all seven outcomes.
package gates

import (
	"context"

	"github.com/shelfline/governance/internal/models"
)

// Gate is one governance rule check.
type Gate interface {
	ID() string
	Name() string
	Evaluate(ctx context.Context, sku *models.SKU) models.GateOutcome
}

func pass(id, name string) models.GateOutcome {
	return models.GateOutcome{GateID: id, Name: name, Passed: true}
}

func passNote(id, name, note string) models.GateOutcome {
	return models.GateOutcome{GateID: id, Name: name, Passed: true, Reason: note}
}

func fail(id, name, reason string, blocking bool) models.GateOutcome {
	return models.GateOutcome{GateID: id, Name: name, Passed: false, Blocking: blocking, Reason: reason}
}
