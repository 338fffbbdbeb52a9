package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/approval"
)

// Table is the in-memory routing table, keyed (scope, operation) with
// an optional global default per operation. Rows are seeded from
// configuration at startup; afterwards the only write path is
// ApplyRouteChange, invoked when the approval gate finalizes an
// APPROVED route change.
type Table struct {
	mu sync.RWMutex

	// routes maps scopeID -> operationID -> route.
	routes map[string]map[string]*RouteConfig

	// defaults maps operationID -> global default route, used when a
	// scope has no specific row.
	defaults map[string]*RouteConfig

	// cache is invalidated for the affected (scope, operation) on
	// every applied change. May be nil.
	cache *DecisionCache

	logger *slog.Logger
	clock  func() time.Time
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithTableClock overrides the table's time source. Used in tests.
func WithTableClock(clock func() time.Time) TableOption {
	return func(t *Table) { t.clock = clock }
}

// NewTable creates an empty routing table bound to the given decision
// cache.
func NewTable(cache *DecisionCache, opts ...TableOption) *Table {
	t := &Table{
		routes:   make(map[string]map[string]*RouteConfig),
		defaults: make(map[string]*RouteConfig),
		cache:    cache,
		logger:   slog.Default().With("component", "routing.table"),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Seed installs a scope-specific route without going through the
// approval path. Used for initial configuration loading.
func (t *Table) Seed(scopeID string, cfg RouteConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = t.clock()
	}
	scoped, ok := t.routes[scopeID]
	if !ok {
		scoped = make(map[string]*RouteConfig)
		t.routes[scopeID] = scoped
	}
	scoped[cfg.OperationID] = cfg.clone()
}

// SeedDefault installs a global default route for an operation, used by
// scopes with no specific row.
func (t *Table) SeedDefault(cfg RouteConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = t.clock()
	}
	t.defaults[cfg.OperationID] = cfg.clone()
}

// Lookup resolves the route for (scope, operation): the scope-specific
// row wins, then the global default. Unknown operations fail with
// UnknownOperationError.
func (t *Table) Lookup(scopeID, operationID string) (*RouteConfig, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if scoped, ok := t.routes[scopeID]; ok {
		if cfg, ok := scoped[operationID]; ok {
			return cfg.clone(), nil
		}
	}
	if cfg, ok := t.defaults[operationID]; ok {
		return cfg.clone(), nil
	}

	return nil, &UnknownOperationError{
		ScopeID:         scopeID,
		OperationID:     operationID,
		KnownOperations: t.operationsLocked(scopeID),
	}
}

// Operations returns the operations routable for a scope, sorted.
func (t *Table) Operations(scopeID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.operationsLocked(scopeID)
}

// operationsLocked collects scope-specific and default operation IDs.
// Caller must hold at least the read lock.
func (t *Table) operationsLocked(scopeID string) []string {
	seen := make(map[string]struct{})
	for op := range t.defaults {
		seen[op] = struct{}{}
	}
	for op := range t.routes[scopeID] {
		seen[op] = struct{}{}
	}

	ops := make([]string, 0, len(seen))
	for op := range seen {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// ApplyRouteChange installs an approved route change for the scope and
// invalidates the decision cache for the affected operation. It
// implements approval.RouteApplier.
func (t *Table) ApplyRouteChange(ctx context.Context, scopeID string, change approval.RouteChange) error {
	if change.OperationID == "" {
		return fmt.Errorf("route change missing operation ID")
	}
	if change.PrimaryBackend == "" {
		return fmt.Errorf("route change for operation %q missing primary backend", change.OperationID)
	}

	criticality := CriticalityMedium
	if change.CostCriticality != "" {
		parsed, err := ParseCriticality(change.CostCriticality)
		if err != nil {
			return fmt.Errorf("route change for operation %q: %w", change.OperationID, err)
		}
		criticality = parsed
	}

	cfg := &RouteConfig{
		OperationID:      change.OperationID,
		PrimaryBackend:   change.PrimaryBackend,
		FallbackBackends: append([]string(nil), change.FallbackBackends...),
		CostCriticality:  criticality,
		UpdatedAt:        t.clock(),
	}

	t.mu.Lock()
	if existing, ok := t.routes[scopeID][change.OperationID]; ok {
		// Gating toggles are operator configuration, not part of the
		// approvable change surface.
		cfg.GatingToggle = existing.GatingToggle
	} else if def, ok := t.defaults[change.OperationID]; ok {
		cfg.GatingToggle = def.GatingToggle
	}
	scoped, ok := t.routes[scopeID]
	if !ok {
		scoped = make(map[string]*RouteConfig)
		t.routes[scopeID] = scoped
	}
	scoped[change.OperationID] = cfg
	t.mu.Unlock()

	if t.cache != nil {
		t.cache.InvalidateRoute(scopeID, change.OperationID)
	}

	t.logger.Info("route change applied",
		"scope_id", scopeID,
		"operation_id", change.OperationID,
		"primary_backend", change.PrimaryBackend,
		"fallbacks", len(change.FallbackBackends),
	)
	return nil
}
