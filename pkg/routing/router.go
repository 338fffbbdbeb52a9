package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/saturn/pkg/costs"
	"mercator-hq/saturn/pkg/toggles"
)

// BudgetChecker answers whether an estimated amount fits a scope's
// remaining budget. Implemented by the cost tracker.
type BudgetChecker interface {
	CheckBudget(ctx context.Context, scopeID, periodKey string, amount float64) (*costs.BudgetStatus, error)
}

// CostEstimator prices forecast usage on a backend. Implemented by the
// pricing table; lookups fail loudly for unknown backends.
type CostEstimator interface {
	Estimate(backend string, inputUnits, outputUnits int64) (float64, error)
}

// ToggleChecker reads toggle positions. Implemented by the toggle
// registry; unknown toggles read as disabled.
type ToggleChecker interface {
	Enabled(name string) bool
}

// RouterConfig configures the operation router.
type RouterConfig struct {
	// CacheTTL is how long routing decisions stay cached.
	// Default: 5 minutes
	CacheTTL time.Duration

	// CacheMaxEntries bounds the decision cache (0 = unlimited).
	CacheMaxEntries int

	// LookupTimeout bounds table and budget lookups. On expiry the
	// router fails closed. Default: 2 seconds
	LookupTimeout time.Duration

	// ApprovalCostThreshold flags decisions whose estimated cost
	// reaches it (0 = never flag on cost).
	ApprovalCostThreshold float64

	// ApprovalCriticality flags decisions whose route criticality
	// reaches it. Default: HIGH
	ApprovalCriticality Criticality
}

// Router is the top-level routing decision engine.
type Router struct {
	table     *Table
	cache     *DecisionCache
	estimator CostEstimator
	budget    BudgetChecker
	togglesC  ToggleChecker
	config    RouterConfig
	stats     *Stats
	logger    *slog.Logger
	clock     func() time.Time
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterClock overrides the router's time source. Used in tests.
func WithRouterClock(clock func() time.Time) RouterOption {
	return func(r *Router) { r.clock = clock }
}

// NewRouter creates an operation router with its own decision cache
// and routing table. The table (see Router.Table) doubles as the
// approval gate's RouteApplier so approved route changes invalidate
// cached decisions.
func NewRouter(estimator CostEstimator, budget BudgetChecker, togglesC ToggleChecker, cfg RouterConfig, opts ...RouterOption) *Router {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 2 * time.Second
	}
	if cfg.ApprovalCriticality == "" {
		cfg.ApprovalCriticality = CriticalityHigh
	}

	cache := NewDecisionCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	r := &Router{
		table:     NewTable(cache),
		cache:     cache,
		estimator: estimator,
		budget:    budget,
		togglesC:  togglesC,
		config:    cfg,
		stats:     NewStats(),
		logger:    slog.Default().With("component", "routing.router"),
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns a binding routing decision for one operation call.
//
// The decision cache is consulted first; a hit returns the identical
// decision with CacheHit set, without re-reading the route table. On a
// miss the router resolves the route, checks the gating toggle (fail
// closed), then walks primary + fallbacks in configured order selecting
// the first backend whose estimated cost fits the scope's remaining
// budget for the current period. Equal-cost candidates keep configured
// order. Routing never mutates budget state.
func (r *Router) Route(ctx context.Context, scopeID, operationID string, est Estimate) (*Decision, error) {
	r.stats.recordRequest()

	key := cacheKey(scopeID, operationID, est)
	if cached, ok := r.cache.Get(key); ok {
		cached.CacheHit = true
		r.stats.recordCacheHit()
		return &cached, nil
	}

	// Lookups are bounded: a hung store denies routing instead of
	// stalling the caller.
	ctx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()

	decision, err := r.decide(ctx, scopeID, operationID, est)
	if err != nil {
		r.stats.recordError()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("routing %s/%s: %w", scopeID, operationID, ErrRouteLookupTimeout)
		}
		return nil, err
	}

	r.cache.Set(key, *decision)
	r.stats.recordDecision(decision)

	r.logger.Debug("routing decision",
		"scope_id", scopeID,
		"operation_id", operationID,
		"backend", decision.Backend,
		"estimated_cost", decision.EstimatedCost,
		"fallback", decision.Fallback,
		"approval_required", decision.ApprovalRequired,
	)
	return decision, nil
}

// decide performs the uncached routing walk.
func (r *Router) decide(ctx context.Context, scopeID, operationID string, est Estimate) (*Decision, error) {
	route, err := r.table.Lookup(scopeID, operationID)
	if err != nil {
		return nil, err
	}

	gate := route.GatingToggle
	if gate == "" {
		gate = toggles.AutonomousExecutionAllowed
	}
	if !r.togglesC.Enabled(gate) {
		return nil, &ToggleDisabledError{Toggle: gate, OperationID: operationID}
	}

	periodKey := costs.PeriodKey(r.clock())
	candidates := append([]string{route.PrimaryBackend}, route.FallbackBackends...)

	var attempted []string
	var remaining float64
	for i, backend := range candidates {
		cost, err := r.estimator.Estimate(backend, est.InputUnits, est.OutputUnits)
		if err != nil {
			// Pricing gaps fail loudly: a misconfigured backend must
			// not be silently skipped or priced at zero.
			return nil, err
		}

		status, err := r.budget.CheckBudget(ctx, scopeID, periodKey, cost)
		if err != nil {
			return nil, err
		}
		if !status.Allowed {
			attempted = append(attempted, backend)
			remaining = status.Remaining
			continue
		}

		return &Decision{
			Backend:           backend,
			EstimatedCost:     cost,
			Fallback:          i > 0,
			ApprovalRequired:  r.requiresApproval(route, cost),
			AttemptedBackends: attempted,
		}, nil
	}

	return nil, &BudgetExceededError{
		ScopeID:           scopeID,
		OperationID:       operationID,
		PeriodKey:         periodKey,
		Remaining:         remaining,
		AttemptedBackends: attempted,
	}
}

// requiresApproval flags, never blocks: approval applies to changing
// the route table, not to individual operation calls.
func (r *Router) requiresApproval(route *RouteConfig, cost float64) bool {
	if r.config.ApprovalCostThreshold > 0 && cost >= r.config.ApprovalCostThreshold {
		return true
	}
	return route.CostCriticality.AtLeast(r.config.ApprovalCriticality)
}

// Table returns the routing table, for seeding and approval wiring.
func (r *Router) Table() *Table {
	return r.table
}

// Stats returns a snapshot of router statistics.
func (r *Router) Stats() *Snapshot {
	return r.stats.Snapshot()
}

// Close releases the decision cache's background resources.
func (r *Router) Close() {
	r.cache.Close()
}
