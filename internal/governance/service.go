// Package governance is the caller-facing core: gated field mutation, gate
// validation, tier classification, weekly decay, and permission checks.
// The HTTP layer consumes this surface and nothing below it.
package governance

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shelfline/governance/internal/decay"
	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/notify"
	"github.com/shelfline/governance/internal/permissions"
	"github.com/shelfline/governance/internal/store"
	"github.com/shelfline/governance/internal/tier"
	"github.com/shelfline/governance/internal/validation"
)

// Actor identifies who is performing an operation.
type Actor struct {
	Name string
	Role models.Role
}

func (a Actor) String() string {
	if a.Name == "" {
		return string(a.Role)
	}
	return a.Name
}

// AuthorizationError rejects a mutation before anything is applied and
// names every offending field.
type AuthorizationError struct {
	Role   models.Role
	Tier   models.Tier
	Fields []string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role %s may not edit fields on %s tier: %s",
		e.Role, e.Tier, strings.Join(e.Fields, ", "))
}

// PermissionError rejects an action the role does not hold.
type PermissionError struct {
	Role   models.Role
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %s may not perform %s", e.Role, e.Action)
}

type Service struct {
	store      store.Store
	validator  *validation.Validator
	classifier *tier.Classifier
	escalator  *decay.Escalator
}

type revalidatorFunc func(ctx context.Context, code string) error

func (f revalidatorFunc) Revalidate(ctx context.Context, code string) error { return f(ctx, code) }

func New(st store.Store, validator *validation.Validator, sink notify.Sink) *Service {
	svc := &Service{store: st, validator: validator}
	svc.classifier = tier.NewClassifier(st, revalidatorFunc(svc.Revalidate))
	svc.escalator = decay.NewEscalator(st, sink)
	return svc
}

// CanEdit answers the permission matrix for one field.
func (s *Service) CanEdit(role models.Role, t models.Tier, field string) bool {
	return permissions.CanEdit(role, t, field)
}

// Evaluate runs the full gate pipeline against the current SKU snapshot.
func (s *Service) Evaluate(ctx context.Context, code string, actor Actor, overridePending bool) (models.ValidationRun, error) {
	sku, err := s.store.GetSKU(ctx, code)
	if err != nil {
		return models.ValidationRun{}, err
	}
	return s.validator.Run(ctx, &sku, validation.Options{
		Actor:           actor.String(),
		OverridePending: overridePending,
	})
}

// Revalidate re-runs the pipeline on behalf of the tier engine.
func (s *Service) Revalidate(ctx context.Context, code string) error {
	sku, err := s.store.GetSKU(ctx, code)
	if err != nil {
		return err
	}
	_, err = s.validator.Run(ctx, &sku, validation.Options{Actor: "system:tier"})
	return err
}

// UpdateFields applies a gated mutation. The permission matrix is checked
// for every requested field before anything is written; the version token
// must match the stored SKU or the writer is rejected.
func (s *Service) UpdateFields(ctx context.Context, actor Actor, code string, version int64, changes map[string]interface{}) (models.SKU, error) {
	sku, err := s.store.GetSKU(ctx, code)
	if err != nil {
		return models.SKU{}, err
	}

	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	if denied := permissions.DeniedFields(actor.Role, sku.Tier, fields); len(denied) > 0 {
		return models.SKU{}, &AuthorizationError{Role: actor.Role, Tier: sku.Tier, Fields: denied}
	}

	for _, field := range fields {
		if err := applyField(&sku, field, changes[field]); err != nil {
			return models.SKU{}, err
		}
	}

	sku.Version = version
	updated, err := s.store.UpdateSKU(ctx, sku)
	if err != nil {
		return models.SKU{}, err
	}

	entry := models.AuditEntry{
		SKUCode:   code,
		EventType: "sku.updated",
		Actor:     actor.String(),
		Payload:   map[string]interface{}{"fields": fields},
	}
	if err := s.store.AppendAuditEntry(ctx, entry); err != nil {
		log.Printf("[governance] append audit entry for %s: %v", code, err)
	}
	return updated, nil
}

// SubmitForReview moves the SKU toward publication by marking it Pending.
func (s *Service) SubmitForReview(ctx context.Context, actor Actor, code string) error {
	if !permissions.CanPerform(actor.Role, permissions.ActionPublish) {
		return &PermissionError{Role: actor.Role, Action: permissions.ActionPublish}
	}
	sku, err := s.store.GetSKU(ctx, code)
	if err != nil {
		return err
	}
	if sku.Tier == models.TierKill {
		return &PermissionError{Role: actor.Role, Action: permissions.ActionPublish}
	}
	if err := s.store.SetValidationStatus(ctx, code, models.StatusPending); err != nil {
		return err
	}
	entry := models.AuditEntry{
		SKUCode:   code,
		EventType: "sku.submitted",
		Actor:     actor.String(),
	}
	if err := s.store.AppendAuditEntry(ctx, entry); err != nil {
		log.Printf("[governance] append audit entry for %s: %v", code, err)
	}
	return nil
}

// RecalculateAllTiers runs the periodic population-wide recalculation.
func (s *Service) RecalculateAllTiers(ctx context.Context, actor Actor) ([]models.TierChange, error) {
	if !permissions.CanPerform(actor.Role, permissions.ActionRecalculateTiers) {
		return nil, &PermissionError{Role: actor.Role, Action: permissions.ActionRecalculateTiers}
	}
	return s.classifier.RecalculateAll(ctx, actor.String())
}

// ApplyCommercialBatch applies an ERP commercial data push, all or nothing.
func (s *Service) ApplyCommercialBatch(ctx context.Context, actor Actor, batch []tier.CommercialRecord) (tier.BatchResult, error) {
	if !permissions.CanPerform(actor.Role, permissions.ActionApplyCommercialBatch) {
		return tier.BatchResult{}, &PermissionError{Role: actor.Role, Action: permissions.ActionApplyCommercialBatch}
	}
	return s.classifier.ApplyCommercialBatch(ctx, batch, actor.String())
}

// ProcessWeeklyDecay advances one SKU's decay state for an audit run.
func (s *Service) ProcessWeeklyDecay(ctx context.Context, code string, citationScore float64, quorum models.QuorumStatus, runID string) (bool, error) {
	return s.escalator.ProcessWeekly(ctx, code, citationScore, quorum, runID)
}

// ProcessDecayCycle runs one audit run over the whole Hero population.
func (s *Service) ProcessDecayCycle(ctx context.Context, runID string, scores map[string]float64, quorum models.QuorumStatus) (int, error) {
	return s.escalator.ProcessCycle(ctx, runID, scores, quorum)
}

// applyField coerces and writes one field value onto the SKU snapshot.
func applyField(sku *models.SKU, field string, value interface{}) error {
	switch field {
	case permissions.FieldTitle:
		return setString(&sku.Title, field, value)
	case permissions.FieldShortDescription:
		return setString(&sku.ShortDescription, field, value)
	case permissions.FieldLongDescription:
		return setString(&sku.LongDescription, field, value)
	case permissions.FieldAnswerBlock:
		return setString(&sku.AnswerBlock, field, value)
	case permissions.FieldBestFor:
		return setString(&sku.BestFor, field, value)
	case permissions.FieldNotFor:
		return setString(&sku.NotFor, field, value)
	case permissions.FieldMetaTitle:
		return setString(&sku.MetaTitle, field, value)
	case permissions.FieldMetaDescription:
		return setString(&sku.MetaDescription, field, value)
	case permissions.FieldPrimaryIntent:
		return setString(&sku.PrimaryIntent, field, value)
	case permissions.FieldExpertAuthor:
		return setString(&sku.ExpertAuthor, field, value)
	case permissions.FieldExpertCredentials:
		return setString(&sku.ExpertCredentials, field, value)
	case permissions.FieldCluster:
		return setString(&sku.ClusterID, field, value)
	case permissions.FieldSecondaryIntents:
		intents, err := toStringSlice(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		sku.SecondaryIntents = intents
		return nil
	case permissions.FieldSpecs:
		specs, err := toStringMap(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		sku.Specs = specs
		return nil
	case permissions.FieldExpertReviewedAt:
		t, err := toTime(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		sku.ExpertReviewedAt = t
		return nil
	}
	return fmt.Errorf("unknown field %s", field)
}

func setString(dst *string, field string, value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("field %s: expected string, got %T", field, value)
	}
	*dst = s
	return nil
}

func toStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected string list, got %T", value)
}

func toStringMap(value interface{}) (map[string]string, error) {
	switch v := value.(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string value for %q, got %T", k, item)
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected string map, got %T", value)
}

func toTime(value interface{}) (*time.Time, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case *time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("expected RFC3339 timestamp: %w", err)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("expected timestamp, got %T", value)
}
