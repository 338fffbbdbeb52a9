package governance

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/saturn/pkg/approval"
	"mercator-hq/saturn/pkg/audit"
	"mercator-hq/saturn/pkg/costs"
	"mercator-hq/saturn/pkg/ledger"
	"mercator-hq/saturn/pkg/routing"
	"mercator-hq/saturn/pkg/toggles"
)

// Core wires the governance components into the operation flow.
type Core struct {
	router   *routing.Router
	provider ProviderClient
	tracker  *costs.Tracker
	gate     *approval.Gate
	registry *toggles.Registry
	chain    *audit.Chain
	logger   *slog.Logger
}

// NewCore creates the governance core from already-constructed
// components.
func NewCore(router *routing.Router, provider ProviderClient, tracker *costs.Tracker, gate *approval.Gate, registry *toggles.Registry, chain *audit.Chain) *Core {
	return &Core{
		router:   router,
		provider: provider,
		tracker:  tracker,
		gate:     gate,
		registry: registry,
		chain:    chain,
		logger:   slog.Default().With("component", "governance.core"),
	}
}

// Outcome is the result of one governed operation.
type Outcome struct {
	// Decision is the routing decision the operation ran under.
	Decision *routing.Decision

	// Result is the provider's response. Nil when invocation failed
	// before any usage was metered.
	Result *Result

	// Entry is the recorded cost entry. Nil when usage could not be
	// recorded; the accompanying error explains why.
	Entry *ledger.CostEntry
}

// Execute runs one operation end to end: route, invoke, record.
//
// Routing failures and provider transport failures return before any
// usage exists, so nothing is recorded. Once the provider has metered
// usage it is always reported to the tracker, success or not. A
// recording failure returns the partial Outcome alongside the error:
// the caller holds the provider result but the spend is not yet
// accounted and must be reconciled.
func (c *Core) Execute(ctx context.Context, scopeID string, req Request, est routing.Estimate) (*Outcome, error) {
	decision, err := c.router.Route(ctx, scopeID, req.OperationID, est)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Decision: decision}

	result, err := c.provider.Invoke(ctx, decision.Backend, req)
	if err != nil {
		return outcome, fmt.Errorf("invoke backend %q: %w", decision.Backend, err)
	}
	outcome.Result = result

	entry, err := c.tracker.RecordUsage(ctx, costs.UsageReport{
		ScopeID:     scopeID,
		OperationID: req.OperationID,
		Backend:     decision.Backend,
		InputUnits:  result.Usage.InputUnits,
		OutputUnits: result.Usage.OutputUnits,
		Succeeded:   result.Succeeded,
	})
	if err != nil {
		c.logger.Error("operation usage not recorded",
			"scope_id", scopeID,
			"operation_id", req.OperationID,
			"backend", decision.Backend,
			"error", err,
		)
		return outcome, err
	}
	outcome.Entry = entry

	return outcome, nil
}

// Router returns the operation router.
func (c *Core) Router() *routing.Router { return c.router }

// Tracker returns the cost tracker.
func (c *Core) Tracker() *costs.Tracker { return c.tracker }

// Gate returns the approval gate.
func (c *Core) Gate() *approval.Gate { return c.gate }

// Toggles returns the feature toggle registry.
func (c *Core) Toggles() *toggles.Registry { return c.registry }

// Chain returns the audit chain.
func (c *Core) Chain() *audit.Chain { return c.chain }
