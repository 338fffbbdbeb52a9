package audit

import (
	"context"
	"sync"
	"testing"

	"mercator-hq/saturn/pkg/notify"
)

type alertRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (a *alertRecorder) Notify(event notify.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func TestSchedulerRunOnce_AlertsOnlyBrokenScopes(t *testing.T) {
	chain, store := testChain()
	appendN(t, chain, "good", 5)
	appendN(t, chain, "bad", 5)
	store.Tamper("bad", 1, func(e *Entry) { e.Payload = []byte("mutated") })

	recorder := &alertRecorder{}
	scheduler := NewScheduler(chain, "0 3 * * *", recorder)

	reports, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}

	if len(recorder.events) != 1 {
		t.Fatalf("got %d alerts, want 1 (only the broken scope)", len(recorder.events))
	}
	alert := recorder.events[0]
	if alert.Kind != notify.KindChainAlert {
		t.Errorf("Kind = %s, want chain alert", alert.Kind)
	}
	if alert.ScopeID != "bad" {
		t.Errorf("ScopeID = %s, want bad", alert.ScopeID)
	}
	if alert.Fields["broken_at_sequence"] != "1" {
		t.Errorf("broken_at_sequence = %q, want 1", alert.Fields["broken_at_sequence"])
	}
}

func TestSchedulerStart_RejectsBadSchedule(t *testing.T) {
	chain, _ := testChain()
	scheduler := NewScheduler(chain, "not a cron line", nil)
	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatal("invalid schedule must be rejected")
	}
}

func TestSchedulerStart_EmptyScheduleIsNoop(t *testing.T) {
	chain, _ := testChain()
	scheduler := NewScheduler(chain, "", nil)
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("empty schedule must disable, not fail: %v", err)
	}
	scheduler.Stop()
}
