// Package store is the persistence boundary of the governance engine. SKUs
// are the only mutable records; validation runs, tier history, briefs and
// audit entries are append-only. Two implementations exist: MemoryStore for
// tests and bootstrap, PGStore for production.
package store

import (
	"context"
	"errors"

	"github.com/shelfline/governance/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict rejects a mutation whose optimistic version token
	// no longer matches the stored SKU. Conflicting writers are rejected,
	// not merged.
	ErrVersionConflict = errors.New("sku version conflict")
)

// SKUFilter narrows ListSKUs. Zero value lists everything.
type SKUFilter struct {
	Tier        models.Tier
	ExcludeTier models.Tier
	Limit       int
}

// CommercialFields carries the batch-pushed commercial numbers written
// alongside a tier change.
type CommercialFields struct {
	MarginPercent float64
	CPPC          float64
	Velocity      float64
	ReturnRate    float64
}

// TierChangeInput is one tier transition inside an atomic batch: the new
// tier and score, the optional commercial fields, plus the history row and
// audit entry recorded with it.
type TierChangeInput struct {
	SKUCode    string
	NewTier    models.Tier
	Score      float64
	Commercial *CommercialFields
	History    models.TierHistory
	Audit      models.AuditEntry
}

type Store interface {
	// SKUs. UpdateSKU checks sku.Version against the stored row and
	// increments it; a stale token yields ErrVersionConflict.
	CreateSKU(ctx context.Context, sku models.SKU) (models.SKU, error)
	GetSKU(ctx context.Context, code string) (models.SKU, error)
	ListSKUs(ctx context.Context, filter SKUFilter) ([]models.SKU, error)
	UpdateSKU(ctx context.Context, sku models.SKU) (models.SKU, error)
	SetValidationStatus(ctx context.Context, code string, status models.ValidationStatus) error

	// Clusters.
	GetCluster(ctx context.Context, id string) (models.Cluster, error)
	PutCluster(ctx context.Context, cluster models.Cluster) error

	// Append-only records.
	AppendValidationRun(ctx context.Context, run models.ValidationRun) error
	ListValidationRuns(ctx context.Context, code string, limit int) ([]models.ValidationRun, error)
	AppendAuditEntry(ctx context.Context, entry models.AuditEntry) error
	ListTierHistory(ctx context.Context, code string) ([]models.TierHistory, error)

	// ApplyTierChanges commits every change or none of them.
	ApplyTierChanges(ctx context.Context, changes []TierChangeInput) error

	// Decay.
	GetDecayState(ctx context.Context, code string) (models.DecayState, error)
	PutDecayState(ctx context.Context, state models.DecayState) error
	CreateBrief(ctx context.Context, brief models.ContentBrief) (models.ContentBrief, error)
	ListBriefs(ctx context.Context, code string) ([]models.ContentBrief, error)

	Ping(ctx context.Context) error
}
