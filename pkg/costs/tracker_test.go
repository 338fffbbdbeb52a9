package costs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/audit"
	"mercator-hq/saturn/pkg/ledger"
	"mercator-hq/saturn/pkg/notify"
)

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]notify.Kind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func testPricing() *Pricing {
	return NewPricing(map[string]BackendPricing{
		"large-model": {InputPricePerUnit: 0.001, OutputPricePerUnit: 0.002},
		"small-model": {InputPricePerUnit: 0.0001, OutputPricePerUnit: 0.0002},
	})
}

func testTracker(t *testing.T, cfg TrackerConfig) (*Tracker, *ledger.MemoryStore, *audit.Chain, *recordingNotifier) {
	t.Helper()
	store := ledger.NewMemoryStore()
	chain := audit.NewChain(audit.NewMemoryStore())
	notifier := &recordingNotifier{}
	fixed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(store, chain, testPricing(), cfg, notifier,
		WithTrackerClock(func() time.Time { return fixed }))
	return tracker, store, chain, notifier
}

func TestRecordUsage_AppendsEntryAndIncrementsCounter(t *testing.T) {
	tracker, store, chain, _ := testTracker(t, TrackerConfig{
		DefaultPolicy: ledger.BudgetPolicy{LimitAmount: 10},
	})
	ctx := context.Background()

	entry, err := tracker.RecordUsage(ctx, UsageReport{
		ScopeID:     "s1",
		OperationID: "chat",
		Backend:     "large-model",
		InputUnits:  1000,
		OutputUnits: 500,
		Succeeded:   true,
	})
	if err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	// 1000*0.001 + 500*0.002 = 2.0
	if entry.CostAmount != 2.0 {
		t.Errorf("CostAmount = %v, want 2.0", entry.CostAmount)
	}
	if entry.PeriodKey != "2026-08-24" {
		t.Errorf("PeriodKey = %q, want 2026-08-24", entry.PeriodKey)
	}

	counter, err := store.GetBudget(ctx, "s1", entry.PeriodKey, ledger.BudgetPolicy{LimitAmount: 10})
	if err != nil {
		t.Fatalf("GetBudget failed: %v", err)
	}
	if counter.SpentAmount != 2.0 {
		t.Errorf("SpentAmount = %v, want 2.0", counter.SpentAmount)
	}

	// The cost record is itself chain-verifiable.
	entries, err := chain.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != "cost.recorded" {
		t.Fatalf("expected one cost.recorded chain entry, got %d", len(entries))
	}
	if entry.SequenceNo != entries[0].SequenceNo {
		t.Error("cost entry must carry its chain sequence number")
	}

	report, err := chain.Verify(ctx, "s1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !report.Valid {
		t.Errorf("chain invalid after recording: %s", report.Reason)
	}
}

func TestRecordUsage_FailedOperationsStillCost(t *testing.T) {
	tracker, store, _, _ := testTracker(t, TrackerConfig{})
	ctx := context.Background()

	entry, err := tracker.RecordUsage(ctx, UsageReport{
		ScopeID:     "s1",
		OperationID: "chat",
		Backend:     "small-model",
		InputUnits:  100,
		OutputUnits: 0,
		Succeeded:   false,
	})
	if err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if entry.Succeeded {
		t.Error("entry must record the operation failure")
	}

	counter, _ := store.GetBudget(ctx, "s1", entry.PeriodKey, ledger.BudgetPolicy{})
	if counter.SpentAmount != entry.CostAmount {
		t.Error("failed operations must still increment spend")
	}
}

func TestRecordUsage_UnknownBackendFailsLoudly(t *testing.T) {
	tracker, store, chain, _ := testTracker(t, TrackerConfig{})
	ctx := context.Background()

	_, err := tracker.RecordUsage(ctx, UsageReport{
		ScopeID:     "s1",
		OperationID: "chat",
		Backend:     "unpriced-model",
		InputUnits:  100,
	})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("got %v, want ErrUnknownBackend", err)
	}

	// Nothing may be written for unpriced usage.
	counter, _ := store.GetBudget(ctx, "s1", CurrentPeriodKey(), ledger.BudgetPolicy{})
	if counter.SpentAmount != 0 {
		t.Error("unpriced usage must not increment spend")
	}
	entries, _ := chain.Entries(ctx, "s1")
	if len(entries) != 0 {
		t.Error("unpriced usage must not reach the audit chain")
	}
}

func TestRecordUsage_RejectsOnceExhausted(t *testing.T) {
	tracker, _, chain, notifier := testTracker(t, TrackerConfig{
		DefaultPolicy: ledger.BudgetPolicy{LimitAmount: 3},
	})
	ctx := context.Background()

	// 2000*0.001 = 2.0; first call brings spend to 2.0, second to 4.0
	// (overshoot tolerated), third is rejected.
	report := UsageReport{ScopeID: "s1", OperationID: "chat", Backend: "large-model", InputUnits: 2000, Succeeded: true}
	for i := 0; i < 2; i++ {
		if _, err := tracker.RecordUsage(ctx, report); err != nil {
			t.Fatalf("RecordUsage %d failed: %v", i, err)
		}
	}

	_, err := tracker.RecordUsage(ctx, report)
	var exceeded *BudgetExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("got %v, want BudgetExceededError", err)
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Error("BudgetExceededError must match ErrBudgetExceeded")
	}
	if exceeded.SpentAmount != 4.0 || exceeded.LimitAmount != 3 {
		t.Errorf("rejection carries spent=%v limit=%v, want 4/3", exceeded.SpentAmount, exceeded.LimitAmount)
	}

	// The rejection produced no chain entry and a budget-exceeded event.
	entries, _ := chain.Entries(ctx, "s1")
	if len(entries) != 2 {
		t.Errorf("chain has %d entries, want 2 (no entry for the rejection)", len(entries))
	}
	sawExceeded := false
	for _, kind := range notifier.kinds() {
		if kind == notify.KindBudgetExceeded {
			sawExceeded = true
		}
	}
	if !sawExceeded {
		t.Error("rejection must raise a budget-exceeded notification")
	}
}

func TestRecordUsage_ConcurrentSumMatches(t *testing.T) {
	tracker, store, chain, _ := testTracker(t, TrackerConfig{})
	ctx := context.Background()

	const workers = 40
	// 100*0.0001 = 0.01 per call
	report := UsageReport{ScopeID: "s1", OperationID: "chat", Backend: "small-model", InputUnits: 100, Succeeded: true}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.RecordUsage(ctx, report); err != nil {
				t.Errorf("RecordUsage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := tracker.Entries(ctx, "s1", "2026-08-24")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	var sum float64
	for _, e := range entries {
		sum += e.CostAmount
	}

	counter, _ := store.GetBudget(ctx, "s1", "2026-08-24", ledger.BudgetPolicy{})
	if counter.SpentAmount != sum {
		t.Errorf("SpentAmount = %v, entry sum = %v (must match exactly)", counter.SpentAmount, sum)
	}
	if len(entries) != workers {
		t.Errorf("got %d entries, want %d", len(entries), workers)
	}

	chainReport, _ := chain.Verify(ctx, "s1")
	if !chainReport.Valid {
		t.Errorf("chain invalid after concurrent recording: %s", chainReport.Reason)
	}
	if chainReport.Length != workers {
		t.Errorf("chain length = %d, want %d", chainReport.Length, workers)
	}
}

func TestCheckBudget_NonReserving(t *testing.T) {
	tracker, _, _, _ := testTracker(t, TrackerConfig{
		DefaultPolicy: ledger.BudgetPolicy{LimitAmount: 10, WarnThreshold: 0.9},
	})
	ctx := context.Background()

	// Checking reserves nothing: repeated checks all see the same state.
	for i := 0; i < 3; i++ {
		status, err := tracker.CheckBudget(ctx, "s1", "2026-08-24", 9)
		if err != nil {
			t.Fatalf("CheckBudget failed: %v", err)
		}
		if !status.Allowed {
			t.Fatal("check against fresh budget must be allowed")
		}
		if status.Remaining != 10 {
			t.Errorf("Remaining = %v, want 10 (no reservation)", status.Remaining)
		}
	}
}

func TestCheckBudget_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		spent       float64
		limit       float64
		warnAt      float64
		amount      float64
		wantAllowed bool
		wantWarn    bool
		wantReason  string
	}{
		{"fits comfortably", 1, 10, 0.8, 2, true, false, ""},
		{"fits exactly", 9.5, 10, 0, 0.5, true, false, ""},
		{"crosses warn threshold", 7, 10, 0.8, 1.5, true, true, ""},
		{"exceeds remaining", 9.5, 10, 0.8, 0.6, false, false, "estimated cost exceeds remaining daily budget"},
		{"already exhausted", 10, 10, 0.8, 0.01, false, false, "daily budget exhausted"},
		{"unlimited", 5000, 0, 0, 100, true, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := ledger.NewMemoryStore()
			policy := ledger.BudgetPolicy{LimitAmount: tt.limit, WarnThreshold: tt.warnAt}
			ctx := context.Background()
			if tt.spent > 0 {
				if _, _, err := store.IncrementIfUnder(ctx, "s1", "p", tt.spent, ledger.BudgetPolicy{LimitAmount: tt.limit, WarnThreshold: tt.warnAt}); err != nil {
					t.Fatalf("seed increment failed: %v", err)
				}
			}
			tracker := NewTracker(store, audit.NewChain(audit.NewMemoryStore()), testPricing(),
				TrackerConfig{DefaultPolicy: policy}, nil)

			status, err := tracker.CheckBudget(ctx, "s1", "p", tt.amount)
			if err != nil {
				t.Fatalf("CheckBudget failed: %v", err)
			}
			if status.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", status.Allowed, tt.wantAllowed)
			}
			if status.Warn != tt.wantWarn {
				t.Errorf("Warn = %v, want %v", status.Warn, tt.wantWarn)
			}
			if status.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", status.Reason, tt.wantReason)
			}
		})
	}
}

func TestRecordUsage_WarnThresholdFiresOnce(t *testing.T) {
	tracker, _, _, notifier := testTracker(t, TrackerConfig{
		DefaultPolicy: ledger.BudgetPolicy{LimitAmount: 10, WarnThreshold: 0.5},
	})
	ctx := context.Background()

	// 2.0 per call; threshold is 5.0. Crossed on the third call only.
	report := UsageReport{ScopeID: "s1", OperationID: "chat", Backend: "large-model", InputUnits: 2000, Succeeded: true}
	for i := 0; i < 4; i++ {
		if _, err := tracker.RecordUsage(ctx, report); err != nil {
			t.Fatalf("RecordUsage %d failed: %v", i, err)
		}
	}

	warnings := 0
	for _, kind := range notifier.kinds() {
		if kind == notify.KindBudgetWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("got %d warning notifications, want exactly 1 at the crossing", warnings)
	}
}

func TestPeriodKey_UTCCalendarDay(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"utc noon", time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), "2026-08-24"},
		{"utc just before midnight", time.Date(2026, 8, 24, 23, 59, 59, 0, time.UTC), "2026-08-24"},
		{"east of utc rolls back", time.Date(2026, 8, 25, 1, 30, 0, 0, time.FixedZone("UTC+3", 3*3600)), "2026-08-24"},
		{"west of utc rolls forward", time.Date(2026, 8, 24, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600)), "2026-08-25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeriodKey(tt.at); got != tt.want {
				t.Errorf("PeriodKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPricing_FailLoudAndReload(t *testing.T) {
	pricing := testPricing()

	if _, err := pricing.Estimate("missing", 10, 10); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("got %v, want ErrUnknownBackend", err)
	}

	var unknown *UnknownBackendError
	_, err := pricing.Lookup("missing")
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want UnknownBackendError", err)
	}
	if len(unknown.KnownBackends) != 2 {
		t.Errorf("error lists %d known backends, want 2", len(unknown.KnownBackends))
	}

	pricing.Reload(map[string]BackendPricing{
		"missing": {InputPricePerUnit: 1, OutputPricePerUnit: 1},
	})
	cost, err := pricing.Estimate("missing", 2, 3)
	if err != nil {
		t.Fatalf("Estimate after reload failed: %v", err)
	}
	if cost != 5 {
		t.Errorf("cost = %v, want 5", cost)
	}
	if _, err := pricing.Estimate("large-model", 1, 1); err == nil {
		t.Error("reload replaces the table; old backends must be gone")
	}
}
