package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/saturn/pkg/audit"
	"mercator-hq/saturn/pkg/ledger"
	"mercator-hq/saturn/pkg/notify"
	"mercator-hq/saturn/pkg/toggles"
)

// GateConfig configures the approval gate.
type GateConfig struct {
	// ApproverRole is the only role allowed to decide recommendations.
	ApproverRole string

	// RecommendationTTL is how long a proposal stays decidable.
	// Default: 72 hours
	RecommendationTTL time.Duration
}

// Gate is the approval workflow state machine.
type Gate struct {
	store    ledger.Store
	chain    *audit.Chain
	config   GateConfig
	notifier notify.Notifier
	applier  RouteApplier
	togglesC ToggleChecker
	logger   *slog.Logger
	clock    func() time.Time

	// mu serializes transitions so two concurrent decisions on the
	// same recommendation cannot both observe PENDING.
	mu sync.Mutex
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateClock overrides the gate's time source. Used in tests.
func WithGateClock(clock func() time.Time) GateOption {
	return func(g *Gate) { g.clock = clock }
}

// WithRouteApplier wires the routing table that approved route changes
// are applied to.
func WithRouteApplier(applier RouteApplier) GateOption {
	return func(g *Gate) { g.applier = applier }
}

// WithToggleChecker wires the toggle registry consulted for the
// autonomous-approval escape hatch.
func WithToggleChecker(checker ToggleChecker) GateOption {
	return func(g *Gate) { g.togglesC = checker }
}

// NewGate creates an approval gate.
func NewGate(store ledger.Store, chain *audit.Chain, cfg GateConfig, notifier notify.Notifier, opts ...GateOption) *Gate {
	if cfg.RecommendationTTL <= 0 {
		cfg.RecommendationTTL = 72 * time.Hour
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}

	g := &Gate{
		store:    store,
		chain:    chain,
		config:   cfg,
		notifier: notifier,
		logger:   slog.Default().With("component", "approval.gate"),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Propose records a new PENDING recommendation. Any registered
// recommender may propose; only deciding is role-gated.
func (g *Gate) Propose(ctx context.Context, scopeID string, change Change, impact float64, proposedBy string) (*Recommendation, error) {
	now := g.clock()
	rec := &Recommendation{
		ID:              uuid.New().String(),
		ScopeID:         scopeID,
		Change:          change,
		EstimatedImpact: impact,
		Status:          StatusPending,
		ProposedBy:      proposedBy,
		ExpiresAt:       now.Add(g.config.RecommendationTTL),
		CreatedAt:       now,
	}

	if err := g.save(ctx, rec); err != nil {
		return nil, err
	}

	g.auditTransition(ctx, rec, "approval.proposed")
	g.notifier.Notify(notify.Event{
		Kind:    notify.KindApprovalProposed,
		ScopeID: scopeID,
		Summary: "Change proposed, awaiting approval",
		Fields: map[string]string{
			"recommendation_id": rec.ID,
			"proposed_by":       proposedBy,
			"estimated_impact":  fmt.Sprintf("%.4f", impact),
		},
	})

	g.logger.Info("recommendation proposed",
		"recommendation_id", rec.ID,
		"scope_id", scopeID,
		"proposed_by", proposedBy,
	)
	return rec, nil
}

// Get returns the recommendation, materializing lazy expiry: a PENDING
// recommendation past its deadline is persisted as EXPIRED before being
// returned.
func (g *Gate) Get(ctx context.Context, id string) (*Recommendation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getLocked(ctx, id)
}

// Decide transitions a PENDING recommendation to APPROVED or REJECTED.
// Only the configured human-approver role may decide, unless a human
// has explicitly enabled the locked "autonomous-approval-allowed"
// toggle. Deciding a non-PENDING (including lazily expired)
// recommendation fails with AlreadyDecidedError.
func (g *Gate) Decide(ctx context.Context, id string, decision Status, approverRole string) (*Recommendation, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDecision, decision)
	}

	if !g.authorized(approverRole) {
		return nil, &NotAuthorizedError{ActorRole: approverRole, RequiredRole: g.config.ApproverRole}
	}

	g.mu.Lock()
	rec, err := g.getLocked(ctx, id)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}

	if rec.Status != StatusPending {
		g.mu.Unlock()
		return nil, &AlreadyDecidedError{ID: id, Status: rec.Status}
	}

	rec.Status = decision
	rec.DecidedBy = approverRole
	rec.DecidedAt = g.clock()

	if err := g.save(ctx, rec); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.mu.Unlock()

	g.auditTransition(ctx, rec, "approval.decided")

	kind := notify.KindApprovalRejected
	if decision == StatusApproved {
		kind = notify.KindApprovalApproved
	}
	// Fire-and-forget: delivery failure never rolls back the decision.
	g.notifier.Notify(notify.Event{
		Kind:    kind,
		ScopeID: rec.ScopeID,
		Summary: fmt.Sprintf("Recommendation %s", decision),
		Fields: map[string]string{
			"recommendation_id": rec.ID,
			"decided_by":        approverRole,
		},
	})

	if decision == StatusApproved {
		g.applyApproved(ctx, rec)
	}

	g.logger.Info("recommendation decided",
		"recommendation_id", rec.ID,
		"scope_id", rec.ScopeID,
		"decision", decision,
		"decided_by", approverRole,
	)
	return rec, nil
}

// List returns a scope's recommendations, materializing lazy expiry.
func (g *Gate) List(ctx context.Context, scopeID string) ([]*Recommendation, error) {
	rows, err := g.store.ListRecommendations(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	recs := make([]*Recommendation, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		if rec.Status == StatusPending && g.clock().After(rec.ExpiresAt) {
			if rec, err = g.expireLocked(ctx, rec); err != nil {
				return nil, err
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (g *Gate) authorized(role string) bool {
	if role == g.config.ApproverRole {
		return true
	}
	return g.togglesC != nil && g.togglesC.Enabled(toggles.AutonomousApprovalAllowed)
}

// getLocked loads a recommendation and materializes expiry. Caller must
// hold g.mu.
func (g *Gate) getLocked(ctx context.Context, id string) (*Recommendation, error) {
	row, err := g.store.GetRecommendation(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("recommendation %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	rec, err := fromRow(row)
	if err != nil {
		return nil, err
	}

	if rec.Status == StatusPending && g.clock().After(rec.ExpiresAt) {
		return g.expireLocked(ctx, rec)
	}
	return rec, nil
}

// expireLocked persists the EXPIRED transition observed by a lazy
// reader. Caller must hold g.mu.
func (g *Gate) expireLocked(ctx context.Context, rec *Recommendation) (*Recommendation, error) {
	rec.Status = StatusExpired
	rec.DecidedAt = g.clock()

	if err := g.save(ctx, rec); err != nil {
		return nil, err
	}

	g.auditTransition(ctx, rec, "approval.expired")
	g.notifier.Notify(notify.Event{
		Kind:    notify.KindApprovalExpired,
		ScopeID: rec.ScopeID,
		Summary: "Recommendation expired undecided",
		Fields:  map[string]string{"recommendation_id": rec.ID},
	})

	g.logger.Info("recommendation expired",
		"recommendation_id", rec.ID,
		"scope_id", rec.ScopeID,
	)
	return rec, nil
}

func (g *Gate) save(ctx context.Context, rec *Recommendation) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	return g.store.SaveRecommendation(ctx, row)
}

// applyApproved applies an approved route change to the routing table.
// Application failures are logged, not propagated: the decision itself
// is already final.
func (g *Gate) applyApproved(ctx context.Context, rec *Recommendation) {
	if g.applier == nil || rec.Change.Kind != ChangeRouteConfig || rec.Change.Route == nil {
		return
	}

	if err := g.applier.ApplyRouteChange(ctx, rec.ScopeID, *rec.Change.Route); err != nil {
		g.logger.Error("approved route change not applied",
			"recommendation_id", rec.ID,
			"scope_id", rec.ScopeID,
			"operation_id", rec.Change.Route.OperationID,
			"error", err,
		)
	}
}

func (g *Gate) auditTransition(ctx context.Context, rec *Recommendation, kind string) {
	payload, err := json.Marshal(map[string]any{
		"recommendation_id": rec.ID,
		"status":            rec.Status,
		"proposed_by":       rec.ProposedBy,
		"decided_by":        rec.DecidedBy,
		"estimated_impact":  rec.EstimatedImpact,
	})
	if err != nil {
		return
	}
	if _, err := g.chain.Append(ctx, rec.ScopeID, kind, payload); err != nil {
		g.logger.Error("approval transition not audited",
			"recommendation_id", rec.ID,
			"error", err,
		)
	}
}
