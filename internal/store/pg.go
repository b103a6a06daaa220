package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shelfline/governance/internal/models"
)

// PGStore persists governance records into Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const skuColumns = `code, tier, title, short_description, long_description, answer_block,
	best_for, not_for, meta_title, meta_description, specs, primary_intent, secondary_intents,
	expert_author, expert_credentials, expert_reviewed_at,
	margin_percent, velocity, prev_quarter_velocity, return_rate, cppc, commercial_score,
	last_sale_at, strategic_hero, validation_status, cluster_id, version, created_at, updated_at`

func scanSKU(row rowScanner) (models.SKU, error) {
	var (
		sku            models.SKU
		specs          []byte
		secondaries    []byte
		expertReviewed sql.NullTime
		lastSale       sql.NullTime
	)
	if err := row.Scan(
		&sku.Code, &sku.Tier, &sku.Title, &sku.ShortDescription, &sku.LongDescription, &sku.AnswerBlock,
		&sku.BestFor, &sku.NotFor, &sku.MetaTitle, &sku.MetaDescription, &specs, &sku.PrimaryIntent, &secondaries,
		&sku.ExpertAuthor, &sku.ExpertCredentials, &expertReviewed,
		&sku.MarginPercent, &sku.Velocity, &sku.PrevQuarterVelocity, &sku.ReturnRate, &sku.CPPC, &sku.CommercialScore,
		&lastSale, &sku.StrategicHero, &sku.ValidationStatus, &sku.ClusterID, &sku.Version, &sku.CreatedAt, &sku.UpdatedAt,
	); err != nil {
		return models.SKU{}, err
	}
	if len(specs) > 0 {
		if err := json.Unmarshal(specs, &sku.Specs); err != nil {
			return models.SKU{}, fmt.Errorf("decode specs: %w", err)
		}
	}
	if len(secondaries) > 0 {
		if err := json.Unmarshal(secondaries, &sku.SecondaryIntents); err != nil {
			return models.SKU{}, fmt.Errorf("decode secondary intents: %w", err)
		}
	}
	if expertReviewed.Valid {
		t := expertReviewed.Time
		sku.ExpertReviewedAt = &t
	}
	if lastSale.Valid {
		t := lastSale.Time
		sku.LastSaleAt = &t
	}
	return sku, nil
}

func marshalJSON(v interface{}, fallback string) []byte {
	b, err := json.Marshal(v)
	if err != nil || v == nil {
		return []byte(fallback)
	}
	return b
}

func (p *PGStore) CreateSKU(ctx context.Context, sku models.SKU) (models.SKU, error) {
	if sku.ValidationStatus == "" {
		sku.ValidationStatus = models.StatusDraft
	}
	query := `
		INSERT INTO skus (code, tier, title, short_description, long_description, answer_block,
			best_for, not_for, meta_title, meta_description, specs, primary_intent, secondary_intents,
			expert_author, expert_credentials, expert_reviewed_at,
			margin_percent, velocity, prev_quarter_velocity, return_rate, cppc, commercial_score,
			last_sale_at, strategic_hero, validation_status, cluster_id, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,1)
		RETURNING ` + skuColumns
	row := p.db.QueryRowContext(ctx, query,
		sku.Code, sku.Tier, sku.Title, sku.ShortDescription, sku.LongDescription, sku.AnswerBlock,
		sku.BestFor, sku.NotFor, sku.MetaTitle, sku.MetaDescription,
		marshalJSON(sku.Specs, "{}"), sku.PrimaryIntent, marshalJSON(sku.SecondaryIntents, "[]"),
		sku.ExpertAuthor, sku.ExpertCredentials, sku.ExpertReviewedAt,
		sku.MarginPercent, sku.Velocity, sku.PrevQuarterVelocity, sku.ReturnRate, sku.CPPC, sku.CommercialScore,
		sku.LastSaleAt, sku.StrategicHero, sku.ValidationStatus, sku.ClusterID,
	)
	created, err := scanSKU(row)
	if err != nil {
		return models.SKU{}, fmt.Errorf("insert sku: %w", err)
	}
	return created, nil
}

func (p *PGStore) GetSKU(ctx context.Context, code string) (models.SKU, error) {
	query := `SELECT ` + skuColumns + ` FROM skus WHERE code=$1`
	sku, err := scanSKU(p.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SKU{}, ErrNotFound
		}
		return models.SKU{}, fmt.Errorf("get sku: %w", err)
	}
	return sku, nil
}

func (p *PGStore) ListSKUs(ctx context.Context, filter SKUFilter) ([]models.SKU, error) {
	query := `SELECT ` + skuColumns + ` FROM skus WHERE 1=1`
	args := []interface{}{}
	argPos := 1
	if filter.Tier != "" {
		query += fmt.Sprintf(" AND tier = $%d", argPos)
		args = append(args, filter.Tier)
		argPos++
	}
	if filter.ExcludeTier != "" {
		query += fmt.Sprintf(" AND tier <> $%d", argPos)
		args = append(args, filter.ExcludeTier)
		argPos++
	}
	query += " ORDER BY code"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list skus: %w", err)
	}
	defer rows.Close()

	var skus []models.SKU
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sku: %w", err)
		}
		skus = append(skus, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skus: %w", err)
	}
	return skus, nil
}

func (p *PGStore) UpdateSKU(ctx context.Context, sku models.SKU) (models.SKU, error) {
	query := `
		UPDATE skus SET
			tier=$3, title=$4, short_description=$5, long_description=$6, answer_block=$7,
			best_for=$8, not_for=$9, meta_title=$10, meta_description=$11, specs=$12,
			primary_intent=$13, secondary_intents=$14,
			expert_author=$15, expert_credentials=$16, expert_reviewed_at=$17,
			margin_percent=$18, velocity=$19, prev_quarter_velocity=$20, return_rate=$21,
			cppc=$22, commercial_score=$23, last_sale_at=$24, strategic_hero=$25,
			validation_status=$26, cluster_id=$27,
			version=version+1, updated_at=NOW()
		WHERE code=$1 AND version=$2
		RETURNING ` + skuColumns
	row := p.db.QueryRowContext(ctx, query,
		sku.Code, sku.Version,
		sku.Tier, sku.Title, sku.ShortDescription, sku.LongDescription, sku.AnswerBlock,
		sku.BestFor, sku.NotFor, sku.MetaTitle, sku.MetaDescription, marshalJSON(sku.Specs, "{}"),
		sku.PrimaryIntent, marshalJSON(sku.SecondaryIntents, "[]"),
		sku.ExpertAuthor, sku.ExpertCredentials, sku.ExpertReviewedAt,
		sku.MarginPercent, sku.Velocity, sku.PrevQuarterVelocity, sku.ReturnRate,
		sku.CPPC, sku.CommercialScore, sku.LastSaleAt, sku.StrategicHero,
		sku.ValidationStatus, sku.ClusterID,
	)
	updated, err := scanSKU(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Row missing or version mismatch; disambiguate for the caller.
			if _, getErr := p.GetSKU(ctx, sku.Code); getErr == nil {
				return models.SKU{}, ErrVersionConflict
			}
			return models.SKU{}, ErrNotFound
		}
		return models.SKU{}, fmt.Errorf("update sku: %w", err)
	}
	return updated, nil
}

func (p *PGStore) SetValidationStatus(ctx context.Context, code string, status models.ValidationStatus) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE skus SET validation_status=$2, updated_at=NOW() WHERE code=$1`, code, status)
	if err != nil {
		return fmt.Errorf("set validation status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) GetCluster(ctx context.Context, id string) (models.Cluster, error) {
	var (
		cluster models.Cluster
		specs   []byte
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, required_specs FROM clusters WHERE id=$1`, id).
		Scan(&cluster.ID, &cluster.Name, &specs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Cluster{}, ErrNotFound
		}
		return models.Cluster{}, fmt.Errorf("get cluster: %w", err)
	}
	if len(specs) > 0 {
		if err := json.Unmarshal(specs, &cluster.RequiredSpecs); err != nil {
			return models.Cluster{}, fmt.Errorf("decode required specs: %w", err)
		}
	}
	return cluster, nil
}

func (p *PGStore) PutCluster(ctx context.Context, cluster models.Cluster) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO clusters (id, name, required_specs)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, required_specs=EXCLUDED.required_specs`,
		cluster.ID, cluster.Name, marshalJSON(cluster.RequiredSpecs, "[]"))
	if err != nil {
		return fmt.Errorf("put cluster: %w", err)
	}
	return nil
}

func (p *PGStore) AppendValidationRun(ctx context.Context, run models.ValidationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO validation_runs (id, sku_code, outcomes, status, publishable, next_action, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		run.ID, run.SKUCode, marshalJSON(run.Outcomes, "[]"), run.Status, run.Publishable,
		run.NextAction, run.Actor, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert validation run: %w", err)
	}
	return nil
}

func (p *PGStore) ListValidationRuns(ctx context.Context, code string, limit int) ([]models.ValidationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, sku_code, outcomes, status, publishable, next_action, actor, created_at
		FROM validation_runs WHERE sku_code=$1 ORDER BY created_at DESC LIMIT $2`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("list validation runs: %w", err)
	}
	defer rows.Close()

	var runs []models.ValidationRun
	for rows.Next() {
		var (
			run      models.ValidationRun
			outcomes []byte
		)
		if err := rows.Scan(&run.ID, &run.SKUCode, &outcomes, &run.Status, &run.Publishable,
			&run.NextAction, &run.Actor, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan validation run: %w", err)
		}
		if len(outcomes) > 0 {
			if err := json.Unmarshal(outcomes, &run.Outcomes); err != nil {
				return nil, fmt.Errorf("decode outcomes: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation runs: %w", err)
	}
	return runs, nil
}

func (p *PGStore) AppendAuditEntry(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, sku_code, event_type, actor, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, entry.SKUCode, entry.EventType, entry.Actor,
		marshalJSON(entry.Payload, "{}"), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (p *PGStore) ListTierHistory(ctx context.Context, code string) ([]models.TierHistory, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, sku_code, old_tier, new_tier, rationale, changed_by, created_at
		FROM tier_history WHERE sku_code=$1 ORDER BY created_at`, code)
	if err != nil {
		return nil, fmt.Errorf("list tier history: %w", err)
	}
	defer rows.Close()

	var history []models.TierHistory
	for rows.Next() {
		var h models.TierHistory
		if err := rows.Scan(&h.ID, &h.SKUCode, &h.OldTier, &h.NewTier, &h.Rationale, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tier history: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tier history: %w", err)
	}
	return history, nil
}

// ApplyTierChanges commits the whole batch inside one transaction. Any
// failure rolls everything back; partial tier changes are never left
// committed.
func (p *PGStore) ApplyTierChanges(ctx context.Context, changes []TierChangeInput) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ch := range changes {
		var res sql.Result
		if ch.Commercial != nil {
			res, err = tx.ExecContext(ctx, `
				UPDATE skus SET tier=$2, commercial_score=$3,
					margin_percent=$4, cppc=$5,
					prev_quarter_velocity=velocity, velocity=$6, return_rate=$7,
					updated_at=NOW()
				WHERE code=$1`,
				ch.SKUCode, ch.NewTier, ch.Score,
				ch.Commercial.MarginPercent, ch.Commercial.CPPC,
				ch.Commercial.Velocity, ch.Commercial.ReturnRate)
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE skus SET tier=$2, commercial_score=$3, updated_at=NOW()
				WHERE code=$1`,
				ch.SKUCode, ch.NewTier, ch.Score)
		}
		if err != nil {
			return fmt.Errorf("update sku tier %s: %w", ch.SKUCode, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update sku tier %s: %w", ch.SKUCode, ErrNotFound)
		}

		h := ch.History
		if h.ID == "" {
			h.ID = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tier_history (id, sku_code, old_tier, new_tier, rationale, changed_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,NOW())`,
			h.ID, h.SKUCode, h.OldTier, h.NewTier, h.Rationale, h.ChangedBy); err != nil {
			return fmt.Errorf("insert tier history %s: %w", ch.SKUCode, err)
		}

		a := ch.Audit
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO audit_log (id, sku_code, event_type, actor, payload, created_at)
			VALUES ($1,$2,$3,$4,$5,NOW())`,
			a.ID, a.SKUCode, a.EventType, a.Actor, marshalJSON(a.Payload, "{}")); err != nil {
			return fmt.Errorf("insert audit entry %s: %w", ch.SKUCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tier changes: %w", err)
	}
	return nil
}

func (p *PGStore) GetDecayState(ctx context.Context, code string) (models.DecayState, error) {
	var state models.DecayState
	err := p.db.QueryRowContext(ctx, `
		SELECT sku_code, weeks, stage, last_run_id, updated_at
		FROM decay_states WHERE sku_code=$1`, code).
		Scan(&state.SKUCode, &state.Weeks, &state.Stage, &state.LastRunID, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DecayState{}, ErrNotFound
		}
		return models.DecayState{}, fmt.Errorf("get decay state: %w", err)
	}
	return state, nil
}

func (p *PGStore) PutDecayState(ctx context.Context, state models.DecayState) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO decay_states (sku_code, weeks, stage, last_run_id, updated_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (sku_code) DO UPDATE SET
			weeks=EXCLUDED.weeks, stage=EXCLUDED.stage,
			last_run_id=EXCLUDED.last_run_id, updated_at=NOW()`,
		state.SKUCode, state.Weeks, state.Stage, state.LastRunID)
	if err != nil {
		return fmt.Errorf("put decay state: %w", err)
	}
	return nil
}

func (p *PGStore) CreateBrief(ctx context.Context, brief models.ContentBrief) (models.ContentBrief, error) {
	if brief.ID == "" {
		brief.ID = uuid.New().String()
	}
	if brief.CreatedAt.IsZero() {
		brief.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO content_briefs (id, sku_code, type, reason, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		brief.ID, brief.SKUCode, brief.Type, brief.Reason, brief.Status, brief.CreatedAt)
	if err != nil {
		return models.ContentBrief{}, fmt.Errorf("insert content brief: %w", err)
	}
	return brief, nil
}

func (p *PGStore) ListBriefs(ctx context.Context, code string) ([]models.ContentBrief, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, sku_code, type, reason, status, created_at
		FROM content_briefs WHERE sku_code=$1 ORDER BY created_at`, code)
	if err != nil {
		return nil, fmt.Errorf("list briefs: %w", err)
	}
	defer rows.Close()

	var briefs []models.ContentBrief
	for rows.Next() {
		var b models.ContentBrief
		if err := rows.Scan(&b.ID, &b.SKUCode, &b.Type, &b.Reason, &b.Status, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan brief: %w", err)
		}
		briefs = append(briefs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate briefs: %w", err)
	}
	return briefs, nil
}
