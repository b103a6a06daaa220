package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfline/governance/internal/models"
)

type MemoryStore struct {
	mu       sync.RWMutex
	skus     map[string]models.SKU
	clusters map[string]models.Cluster
	runs     []models.ValidationRun
	audit    []models.AuditEntry
	history  []models.TierHistory
	decay    map[string]models.DecayState
	briefs   []models.ContentBrief
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		skus:     map[string]models.SKU{},
		clusters: map[string]models.Cluster{},
		decay:    map[string]models.DecayState{},
	}
}

func copySKU(s models.SKU) models.SKU {
	out := s
	if s.Specs != nil {
		out.Specs = make(map[string]string, len(s.Specs))
		for k, v := range s.Specs {
			out.Specs[k] = v
		}
	}
	out.SecondaryIntents = append([]string(nil), s.SecondaryIntents...)
	return out
}

func (m *MemoryStore) CreateSKU(ctx context.Context, sku models.SKU) (models.SKU, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	sku.Version = 1
	sku.CreatedAt = now
	sku.UpdatedAt = now
	if sku.ValidationStatus == "" {
		sku.ValidationStatus = models.StatusDraft
	}
	m.skus[sku.Code] = copySKU(sku)
	return sku, nil
}

func (m *MemoryStore) GetSKU(ctx context.Context, code string) (models.SKU, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sku, ok := m.skus[code]
	if !ok {
		return models.SKU{}, ErrNotFound
	}
	return copySKU(sku), nil
}

func (m *MemoryStore) ListSKUs(ctx context.Context, filter SKUFilter) ([]models.SKU, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SKU
	for _, sku := range m.skus {
		if filter.Tier != "" && sku.Tier != filter.Tier {
			continue
		}
		if filter.ExcludeTier != "" && sku.Tier == filter.ExcludeTier {
			continue
		}
		out = append(out, copySKU(sku))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateSKU(ctx context.Context, sku models.SKU) (models.SKU, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.skus[sku.Code]
	if !ok {
		return models.SKU{}, ErrNotFound
	}
	if current.Version != sku.Version {
		return models.SKU{}, ErrVersionConflict
	}
	sku.Version++
	sku.CreatedAt = current.CreatedAt
	sku.UpdatedAt = time.Now().UTC()
	m.skus[sku.Code] = copySKU(sku)
	return sku, nil
}

func (m *MemoryStore) SetValidationStatus(ctx context.Context, code string, status models.ValidationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sku, ok := m.skus[code]
	if !ok {
		return ErrNotFound
	}
	sku.ValidationStatus = status
	sku.UpdatedAt = time.Now().UTC()
	m.skus[code] = sku
	return nil
}

func (m *MemoryStore) GetCluster(ctx context.Context, id string) (models.Cluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cluster, ok := m.clusters[id]
	if !ok {
		return models.Cluster{}, ErrNotFound
	}
	return cluster, nil
}

func (m *MemoryStore) PutCluster(ctx context.Context, cluster models.Cluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters[cluster.ID] = cluster
	return nil
}

func (m *MemoryStore) AppendValidationRun(ctx context.Context, run models.ValidationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryStore) ListValidationRuns(ctx context.Context, code string, limit int) ([]models.ValidationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ValidationRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].SKUCode == code {
			out = append(out, m.runs[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendAuditEntry(ctx context.Context, entry models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.audit = append(m.audit, entry)
	return nil
}

// AuditEntries returns the audit rows recorded for a SKU, oldest first.
// Test helper; the interface exposes append only.
func (m *MemoryStore) AuditEntries(code string) []models.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AuditEntry
	for _, e := range m.audit {
		if e.SKUCode == code {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) ListTierHistory(ctx context.Context, code string) ([]models.TierHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.TierHistory
	for _, h := range m.history {
		if h.SKUCode == code {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *MemoryStore) ApplyTierChanges(ctx context.Context, changes []TierChangeInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stage against copies so a missing SKU mid-batch leaves nothing
	// committed.
	staged := make(map[string]models.SKU, len(changes))
	for _, ch := range changes {
		sku, ok := m.skus[ch.SKUCode]
		if !ok {
			return ErrNotFound
		}
		sku.Tier = ch.NewTier
		sku.CommercialScore = ch.Score
		if ch.Commercial != nil {
			sku.MarginPercent = ch.Commercial.MarginPercent
			sku.CPPC = ch.Commercial.CPPC
			sku.PrevQuarterVelocity = sku.Velocity
			sku.Velocity = ch.Commercial.Velocity
			sku.ReturnRate = ch.Commercial.ReturnRate
		}
		sku.UpdatedAt = time.Now().UTC()
		staged[ch.SKUCode] = sku
	}

	for _, ch := range changes {
		m.skus[ch.SKUCode] = staged[ch.SKUCode]
		h := ch.History
		if h.ID == "" {
			h.ID = uuid.New().String()
		}
		if h.CreatedAt.IsZero() {
			h.CreatedAt = time.Now().UTC()
		}
		m.history = append(m.history, h)
		a := ch.Audit
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		m.audit = append(m.audit, a)
	}
	return nil
}

func (m *MemoryStore) GetDecayState(ctx context.Context, code string) (models.DecayState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.decay[code]
	if !ok {
		return models.DecayState{}, ErrNotFound
	}
	return state, nil
}

func (m *MemoryStore) PutDecayState(ctx context.Context, state models.DecayState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.UpdatedAt = time.Now().UTC()
	m.decay[state.SKUCode] = state
	return nil
}

func (m *MemoryStore) CreateBrief(ctx context.Context, brief models.ContentBrief) (models.ContentBrief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if brief.ID == "" {
		brief.ID = uuid.New().String()
	}
	if brief.CreatedAt.IsZero() {
		brief.CreatedAt = time.Now().UTC()
	}
	m.briefs = append(m.briefs, brief)
	return brief, nil
}

func (m *MemoryStore) ListBriefs(ctx context.Context, code string) ([]models.ContentBrief, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ContentBrief
	for _, b := range m.briefs {
		if b.SKUCode == code {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
