package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/approval"
	"mercator-hq/saturn/pkg/audit"
	"mercator-hq/saturn/pkg/costs"
	"mercator-hq/saturn/pkg/ledger"
	"mercator-hq/saturn/pkg/routing"
	"mercator-hq/saturn/pkg/toggles"
)

type coreFixture struct {
	core     *Core
	provider *MockProvider
	store    *ledger.MemoryStore
	chain    *audit.Chain
	registry *toggles.Registry
}

// newCoreFixture wires a full governance core over in-memory stores:
// a $10/day budget for tenant-a, a chat route preferring the expensive
// backend, and a mock provider.
func newCoreFixture(t *testing.T) *coreFixture {
	t.Helper()

	store := ledger.NewMemoryStore()
	chain := audit.NewChain(audit.NewMemoryStore())
	fixed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	pricing := costs.NewPricing(map[string]costs.BackendPricing{
		"large-model": {InputPricePerUnit: 0.002, OutputPricePerUnit: 0.004},
		"small-model": {InputPricePerUnit: 0.0001, OutputPricePerUnit: 0.0002},
	})
	tracker := costs.NewTracker(store, chain, pricing, costs.TrackerConfig{
		ScopePolicies: map[string]ledger.BudgetPolicy{
			"tenant-a": {LimitAmount: 10, WarnThreshold: 0.8},
		},
	}, nil, costs.WithTrackerClock(clock))

	registry := toggles.NewRegistry("human-approver", store, chain, nil,
		toggles.WithRegistryClock(clock))

	router := routing.NewRouter(pricing, tracker, registry, routing.RouterConfig{
		CacheTTL: time.Minute,
	}, routing.WithRouterClock(clock))
	t.Cleanup(router.Close)
	router.Table().Seed("tenant-a", routing.RouteConfig{
		OperationID:      "chat",
		PrimaryBackend:   "large-model",
		FallbackBackends: []string{"small-model"},
		CostCriticality:  routing.CriticalityMedium,
	})

	gate := approval.NewGate(store, chain, approval.GateConfig{
		ApproverRole: "human-approver",
	}, nil,
		approval.WithGateClock(clock),
		approval.WithRouteApplier(router.Table()),
		approval.WithToggleChecker(registry),
	)

	provider := NewMockProvider()
	return &coreFixture{
		core:     NewCore(router, provider, tracker, gate, registry, chain),
		provider: provider,
		store:    store,
		chain:    chain,
		registry: registry,
	}
}

func TestExecute_RouteInvokeRecord(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()
	f.provider.Respond("large-model", Result{
		Usage:     Usage{InputUnits: 1000, OutputUnits: 500},
		Output:    []byte("answer"),
		Succeeded: true,
	})

	outcome, err := f.core.Execute(ctx, "tenant-a", Request{OperationID: "chat", Payload: []byte("question")},
		routing.Estimate{InputUnits: 1000, OutputUnits: 500})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if outcome.Decision.Backend != "large-model" {
		t.Errorf("Backend = %q, want large-model", outcome.Decision.Backend)
	}
	if string(outcome.Result.Output) != "answer" {
		t.Errorf("Output = %q", outcome.Result.Output)
	}

	// Actual usage was priced: 1000*0.002 + 500*0.004 = 4.0
	if outcome.Entry == nil || outcome.Entry.CostAmount != 4.0 {
		t.Fatalf("Entry = %+v, want cost 4.0", outcome.Entry)
	}

	counter, err := f.store.GetBudget(ctx, "tenant-a", outcome.Entry.PeriodKey, ledger.BudgetPolicy{})
	if err != nil {
		t.Fatalf("GetBudget failed: %v", err)
	}
	if counter.SpentAmount != 4.0 {
		t.Errorf("SpentAmount = %v, want 4.0", counter.SpentAmount)
	}

	calls := f.provider.Calls()
	if len(calls) != 1 || calls[0].Backend != "large-model" {
		t.Errorf("provider calls = %+v", calls)
	}

	report, _ := f.chain.Verify(ctx, "tenant-a")
	if !report.Valid || report.Length != 1 {
		t.Errorf("chain: valid=%v length=%d, want one valid cost entry", report.Valid, report.Length)
	}
}

func TestExecute_SpendAccumulatesUntilExhausted(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()
	f.provider.Respond("large-model", Result{
		Usage:     Usage{InputUnits: 1000, OutputUnits: 500}, // $4.00 per call
		Succeeded: true,
	})
	f.provider.Respond("small-model", Result{
		Usage:     Usage{InputUnits: 1000, OutputUnits: 500}, // $0.20 per call
		Succeeded: true,
	})

	req := Request{OperationID: "chat"}
	est := routing.Estimate{InputUnits: 1000, OutputUnits: 500}

	// Two $4 calls leave $2 remaining; the $4 primary no longer fits the
	// estimate and the router falls back to the cheap backend.
	for i := 0; i < 2; i++ {
		if _, err := f.core.Execute(ctx, "tenant-a", req, est); err != nil {
			t.Fatalf("Execute %d failed: %v", i, err)
		}
	}

	outcome, err := f.core.Execute(ctx, "tenant-a", req,
		routing.Estimate{InputUnits: 2000, OutputUnits: 500})
	if err != nil {
		t.Fatalf("Execute after partial exhaustion failed: %v", err)
	}
	if outcome.Decision.Backend != "small-model" {
		t.Errorf("Backend = %q, want fallback small-model", outcome.Decision.Backend)
	}
	if !outcome.Decision.Fallback {
		t.Error("decision must be marked fallback")
	}
}

func TestExecute_RoutingFailureRecordsNothing(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	_, err := f.core.Execute(ctx, "tenant-a", Request{OperationID: "unknown-op"}, routing.Estimate{})
	if !errors.Is(err, routing.ErrUnknownOperation) {
		t.Fatalf("got %v, want ErrUnknownOperation", err)
	}

	if len(f.provider.Calls()) != 0 {
		t.Error("provider must not be invoked when routing fails")
	}
	entries, _ := f.chain.Entries(ctx, "tenant-a")
	if len(entries) != 0 {
		t.Error("nothing may be recorded when routing fails")
	}
}

func TestExecute_ToggleGateBlocksBeforeInvoke(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()

	if err := f.registry.Set(ctx, toggles.AutonomousExecutionAllowed, false, "human-approver"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := f.core.Execute(ctx, "tenant-a", Request{OperationID: "chat"}, routing.Estimate{})
	if !errors.Is(err, routing.ErrToggleDisabled) {
		t.Fatalf("got %v, want ErrToggleDisabled", err)
	}
	if len(f.provider.Calls()) != 0 {
		t.Error("provider must not be invoked when the execution gate is off")
	}
}

func TestExecute_ProviderFailureReturnsDecisionOnly(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()
	f.provider.Fail("large-model", errors.New("upstream 500"))

	outcome, err := f.core.Execute(ctx, "tenant-a", Request{OperationID: "chat"}, routing.Estimate{})
	if err == nil {
		t.Fatal("provider failure must surface")
	}
	if outcome == nil || outcome.Decision == nil {
		t.Fatal("the routing decision is still returned")
	}
	if outcome.Result != nil || outcome.Entry != nil {
		t.Error("no usage was metered, nothing may be recorded")
	}

	entries, _ := f.chain.Entries(ctx, "tenant-a")
	if len(entries) != 0 {
		t.Error("transport failures before metering must not be recorded")
	}
}

func TestExecute_FailedOperationUsageIsStillRecorded(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()
	// The provider call completed and metered usage, but the operation
	// itself failed. It still costs money.
	f.provider.Respond("large-model", Result{
		Usage:     Usage{InputUnits: 500},
		Succeeded: false,
	})

	outcome, err := f.core.Execute(ctx, "tenant-a", Request{OperationID: "chat"}, routing.Estimate{InputUnits: 500})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Entry == nil {
		t.Fatal("failed operations with metered usage must be recorded")
	}
	if outcome.Entry.Succeeded {
		t.Error("the entry must record the operation failure")
	}
	if outcome.Entry.CostAmount != 1.0 { // 500 * 0.002
		t.Errorf("CostAmount = %v, want 1.0", outcome.Entry.CostAmount)
	}
}

func TestExecute_RecordFailureReturnsPartialOutcome(t *testing.T) {
	f := newCoreFixture(t)
	ctx := context.Background()
	// Usage metered on a backend the pricing table does not know: the
	// recording step fails after the provider returned.
	f.provider.Respond("large-model", Result{
		Usage:     Usage{InputUnits: 100},
		Succeeded: true,
	})

	// A tracker with an empty pricing table fails every record while the
	// router keeps its own working estimator.
	brokenTracker := costs.NewTracker(ledger.NewMemoryStore(), f.chain,
		costs.NewPricing(nil), costs.TrackerConfig{}, nil)
	brokenCore := NewCore(f.core.Router(), f.provider, brokenTracker, f.core.Gate(), f.registry, f.chain)

	outcome, err := brokenCore.Execute(ctx, "tenant-a", Request{OperationID: "chat"}, routing.Estimate{InputUnits: 100})
	if err == nil {
		t.Fatal("recording failure must surface")
	}
	if outcome == nil || outcome.Result == nil {
		t.Fatal("the provider result must still be returned for reconciliation")
	}
	if outcome.Entry != nil {
		t.Error("no entry exists when recording failed")
	}
}
