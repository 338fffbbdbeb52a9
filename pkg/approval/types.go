package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mercator-hq/saturn/pkg/ledger"
)

// Status is the recommendation workflow state.
type Status string

// Workflow states. PENDING is initial; all others are terminal.
const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// Terminal reports whether the status is immutable.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// ChangeKind classifies a proposed change.
type ChangeKind string

// Supported change kinds.
const (
	// ChangeRouteConfig proposes a routing table mutation.
	ChangeRouteConfig ChangeKind = "route-config"
)

// RouteChange is a proposed routing table mutation for one operation.
type RouteChange struct {
	// OperationID is the operation whose route changes.
	OperationID string `json:"operation_id"`

	// PrimaryBackend is the proposed primary backend.
	PrimaryBackend string `json:"primary_backend"`

	// FallbackBackends is the proposed ordered fallback list.
	FallbackBackends []string `json:"fallback_backends"`

	// CostCriticality is the proposed criticality (LOW, MEDIUM, HIGH).
	CostCriticality string `json:"cost_criticality"`
}

// Change is the proposed-change payload carried by a recommendation.
type Change struct {
	// Kind classifies the change.
	Kind ChangeKind `json:"kind"`

	// Route is set when Kind is ChangeRouteConfig.
	Route *RouteChange `json:"route,omitempty"`
}

// Recommendation is a proposed change awaiting (or past) human decision.
type Recommendation struct {
	// ID is the recommendation's unique identifier (UUID).
	ID string

	// ScopeID is the isolation boundary the change applies to.
	ScopeID string

	// Change is the proposed change.
	Change Change

	// EstimatedImpact is the recommender's cost-impact estimate
	// (positive = projected additional spend per period).
	EstimatedImpact float64

	// Status is the current workflow state.
	Status Status

	// ProposedBy identifies the recommender.
	ProposedBy string

	// DecidedBy identifies the approver. Empty until decided.
	DecidedBy string

	// DecidedAt is when the terminal decision was made. Zero until
	// decided.
	DecidedAt time.Time

	// ExpiresAt is the decision deadline. A PENDING recommendation
	// past this instant reads as EXPIRED.
	ExpiresAt time.Time

	// CreatedAt is when the recommendation was proposed.
	CreatedAt time.Time
}

// RouteApplier applies an approved route change. Implemented by the
// routing table; decoupled by interface so the gate does not depend on
// the router.
type RouteApplier interface {
	ApplyRouteChange(ctx context.Context, scopeID string, change RouteChange) error
}

// ToggleChecker reads toggle positions. Implemented by the toggle
// registry.
type ToggleChecker interface {
	Enabled(name string) bool
}

// toRow converts a recommendation to its persisted form.
func toRow(rec *Recommendation) (*ledger.RecommendationRow, error) {
	change, err := json.Marshal(rec.Change)
	if err != nil {
		return nil, fmt.Errorf("encode change: %w", err)
	}
	return &ledger.RecommendationRow{
		ID:              rec.ID,
		ScopeID:         rec.ScopeID,
		ProposedChange:  change,
		EstimatedImpact: rec.EstimatedImpact,
		Status:          string(rec.Status),
		ProposedBy:      rec.ProposedBy,
		DecidedBy:       rec.DecidedBy,
		DecidedAt:       rec.DecidedAt,
		ExpiresAt:       rec.ExpiresAt,
		CreatedAt:       rec.CreatedAt,
	}, nil
}

// fromRow converts a persisted row back to a recommendation.
func fromRow(row *ledger.RecommendationRow) (*Recommendation, error) {
	var change Change
	if len(row.ProposedChange) > 0 {
		if err := json.Unmarshal(row.ProposedChange, &change); err != nil {
			return nil, fmt.Errorf("decode change for %s: %w", row.ID, err)
		}
	}
	return &Recommendation{
		ID:              row.ID,
		ScopeID:         row.ScopeID,
		Change:          change,
		EstimatedImpact: row.EstimatedImpact,
		Status:          Status(row.Status),
		ProposedBy:      row.ProposedBy,
		DecidedBy:       row.DecidedBy,
		DecidedAt:       row.DecidedAt,
		ExpiresAt:       row.ExpiresAt,
		CreatedAt:       row.CreatedAt,
	}, nil
}
