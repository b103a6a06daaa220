package models

import (
	"time"
)

// Tier is the commercial investment classification of a SKU. It controls
// both effort allocation and the content requirements the gates enforce.
type Tier string

const (
	TierHero    Tier = "hero"
	TierSupport Tier = "support"
	TierHarvest Tier = "harvest"
	TierKill    Tier = "kill"
)

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierHero, TierSupport, TierHarvest, TierKill:
		return true
	}
	return false
}

// ValidationStatus is the persisted publish-lifecycle state of a SKU.
type ValidationStatus string

const (
	StatusDraft    ValidationStatus = "draft"
	StatusPending  ValidationStatus = "pending"
	StatusValid    ValidationStatus = "valid"
	StatusInvalid  ValidationStatus = "invalid"
	StatusDegraded ValidationStatus = "degraded"
)

// Role is a closed set of governance actors.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleGovernanceLead Role = "governance_lead"
	RoleContentEditor  Role = "content_editor"
	RoleExpertReviewer Role = "expert_reviewer"
	RoleFinance        Role = "finance"
	RoleViewer         Role = "viewer"
)

// Roles lists every known role, for exhaustive permission checks.
var Roles = []Role{RoleAdmin, RoleGovernanceLead, RoleContentEditor, RoleExpertReviewer, RoleFinance, RoleViewer}

// DecayStage is the escalation stage of the weekly citation-decay machine.
type DecayStage string

const (
	DecayNone       DecayStage = "none"
	DecayYellowFlag DecayStage = "yellow_flag"
	DecayAlert      DecayStage = "alert"
	DecayAutoBrief  DecayStage = "auto_brief"
	DecayEscalated  DecayStage = "escalated"
)

// QuorumStatus is the external governance signal gating decay processing.
type QuorumStatus string

const (
	QuorumMet    QuorumStatus = "met"
	QuorumFreeze QuorumStatus = "freeze"
	QuorumPause  QuorumStatus = "pause"
)

// SKU is a governed product content record. It is owned by the governance
// engine and mutated only through gated update operations; Version is the
// optimistic token checked on every mutation.
type SKU struct {
	Code             string            `json:"code"`
	Tier             Tier              `json:"tier"`
	Title            string            `json:"title"`
	ShortDescription string            `json:"shortDescription"`
	LongDescription  string            `json:"longDescription"`
	AnswerBlock      string            `json:"answerBlock"`
	BestFor          string            `json:"bestFor"`
	NotFor           string            `json:"notFor"`
	MetaTitle        string            `json:"metaTitle"`
	MetaDescription  string            `json:"metaDescription"`
	Specs            map[string]string `json:"specs"`
	PrimaryIntent    string            `json:"primaryIntent"`
	SecondaryIntents []string          `json:"secondaryIntents"`

	ExpertAuthor      string     `json:"expertAuthor"`
	ExpertCredentials string     `json:"expertCredentials"`
	ExpertReviewedAt  *time.Time `json:"expertReviewedAt,omitempty"`

	MarginPercent       float64    `json:"marginPercent"`
	Velocity            float64    `json:"velocity"` // annualized unit volume
	PrevQuarterVelocity float64    `json:"prevQuarterVelocity"`
	ReturnRate          float64    `json:"returnRate"`
	CPPC                float64    `json:"cppc"` // cost-per-conversion proxy
	CommercialScore     float64    `json:"commercialScore"`
	LastSaleAt          *time.Time `json:"lastSaleAt,omitempty"`
	StrategicHero       bool       `json:"strategicHero"`

	ValidationStatus ValidationStatus `json:"validationStatus"`
	ClusterID        string           `json:"clusterId"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Cluster names the technical specifications every SKU assigned to it must
// carry.
type Cluster struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	RequiredSpecs []string `json:"requiredSpecs"`
}

// GateOutcome is the result of one gate evaluation. Blocking outcomes
// prevent publication; Metadata may carry a similarity score or a
// degraded flag.
type GateOutcome struct {
	GateID   string                 `json:"gateId"`
	Name     string                 `json:"name"`
	Passed   bool                   `json:"passed"`
	Blocking bool                   `json:"blocking"`
	Reason   string                 `json:"reason"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Degraded reports whether the outcome carries the degraded metadata flag.
func (o GateOutcome) Degraded() bool {
	if o.Metadata == nil {
		return false
	}
	v, ok := o.Metadata["degraded"].(bool)
	return ok && v
}

// ValidationRun is the append-only audit record of one full gate pipeline
// evaluation. It is never mutated after creation.
type ValidationRun struct {
	ID          string           `json:"id"`
	SKUCode     string           `json:"skuCode"`
	Outcomes    []GateOutcome    `json:"outcomes"`
	Status      ValidationStatus `json:"status"`
	Publishable bool             `json:"publishable"`
	NextAction  string           `json:"nextAction"`
	Actor       string           `json:"actor,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// TierHistory records exactly one tier transition, including the numeric
// inputs and thresholds behind it.
type TierHistory struct {
	ID        string    `json:"id"`
	SKUCode   string    `json:"skuCode"`
	OldTier   Tier      `json:"oldTier"`
	NewTier   Tier      `json:"newTier"`
	Rationale string    `json:"rationale"`
	ChangedBy string    `json:"changedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// DecayState is the per-SKU weekly decay counter. Mutated only by the
// weekly cycle; LastRunID makes re-runs against the same audit run
// idempotent.
type DecayState struct {
	SKUCode   string     `json:"skuCode"`
	Weeks     int        `json:"weeks"`
	Stage     DecayStage `json:"stage"`
	LastRunID string     `json:"lastRunId"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// BriefStatus is the lifecycle state of a remediation brief.
type BriefStatus string

const (
	BriefDraft BriefStatus = "draft"
	BriefDone  BriefStatus = "done"
)

// ContentBrief is the remediation artifact created at the third consecutive
// zero-citation week. At most one exists per uninterrupted streak.
type ContentBrief struct {
	ID        string      `json:"id"`
	SKUCode   string      `json:"skuCode"`
	Type      string      `json:"type"`
	Reason    string      `json:"reason"`
	Status    BriefStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// AuditEntry is one append-only audit row. Gate evaluations, tier changes
// and decay transitions all append here.
type AuditEntry struct {
	ID        string                 `json:"id"`
	SKUCode   string                 `json:"skuCode"`
	EventType string                 `json:"eventType"`
	Actor     string                 `json:"actor,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// TierChange is the summary returned for every applied tier transition.
type TierChange struct {
	SKUCode      string  `json:"skuCode"`
	OldTier      Tier    `json:"oldTier"`
	NewTier      Tier    `json:"newTier"`
	Score        float64 `json:"score"`
	Rationale    string  `json:"rationale"`
	AutoPromoted bool    `json:"autoPromoted,omitempty"`
}
