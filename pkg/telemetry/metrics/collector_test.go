package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/saturn/pkg/notify"
)

func TestCollector_EventCounters(t *testing.T) {
	collector := NewCollector("saturn")

	collector.RecordBudgetRejection("s1")
	collector.RecordBudgetRejection("s1")
	collector.RecordBudgetWarning("s1")
	collector.RecordApprovalTransition("s1", "approved")
	collector.RecordToggleChange()
	collector.RecordChainAlert("s2")
	collector.RecordNotificationFailure()

	if got := testutil.ToFloat64(collector.budgetRejections.WithLabelValues("s1")); got != 2 {
		t.Errorf("budget_rejections_total{s1} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.budgetWarnings.WithLabelValues("s1")); got != 1 {
		t.Errorf("budget_warnings_total{s1} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.approvalTransitions.WithLabelValues("s1", "approved")); got != 1 {
		t.Errorf("transitions_total{s1,approved} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.chainAlerts.WithLabelValues("s2")); got != 1 {
		t.Errorf("chain_alerts_total{s2} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.notificationsFailed); got != 1 {
		t.Errorf("failures_total = %v, want 1", got)
	}
}

func TestCollector_RouterScrape(t *testing.T) {
	collector := NewCollector("saturn")
	collector.ObserveRouter("saturn", func() RouterSnapshot {
		return RouterSnapshot{
			TotalRequests: 10,
			CacheHits:     4,
			FallbackCount: 2,
			Errors:        1,
			RequestsPerBackend: map[string]int64{
				"large-model": 6,
				"small-model": 4,
			},
		}
	})

	expected := `
# HELP saturn_routing_requests_total Routing requests processed.
# TYPE saturn_routing_requests_total counter
saturn_routing_requests_total 10
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected),
		"saturn_routing_requests_total"); err != nil {
		t.Errorf("requests metric mismatch: %v", err)
	}

	perBackend := `
# HELP saturn_routing_backend_requests_total Routing decisions per selected backend.
# TYPE saturn_routing_backend_requests_total counter
saturn_routing_backend_requests_total{backend="large-model"} 6
saturn_routing_backend_requests_total{backend="small-model"} 4
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(perBackend),
		"saturn_routing_backend_requests_total"); err != nil {
		t.Errorf("per-backend metric mismatch: %v", err)
	}
}

func TestObserver_CountsAndForwards(t *testing.T) {
	collector := NewCollector("saturn")

	var forwarded []notify.Event
	observer := NewObserver(collector, notifierFunc(func(e notify.Event) {
		forwarded = append(forwarded, e)
	}))

	events := []notify.Event{
		{Kind: notify.KindBudgetExceeded, ScopeID: "s1"},
		{Kind: notify.KindBudgetWarning, ScopeID: "s1"},
		{Kind: notify.KindApprovalProposed, ScopeID: "s1"},
		{Kind: notify.KindApprovalApproved, ScopeID: "s1"},
		{Kind: notify.KindApprovalRejected, ScopeID: "s1"},
		{Kind: notify.KindApprovalExpired, ScopeID: "s1"},
		{Kind: notify.KindToggleChanged},
		{Kind: notify.KindChainAlert, ScopeID: "s1"},
	}
	for _, event := range events {
		observer.Notify(event)
	}

	if len(forwarded) != len(events) {
		t.Errorf("forwarded %d events, want %d", len(forwarded), len(events))
	}
	for _, transition := range []string{"proposed", "approved", "rejected", "expired"} {
		if got := testutil.ToFloat64(collector.approvalTransitions.WithLabelValues("s1", transition)); got != 1 {
			t.Errorf("transitions_total{s1,%s} = %v, want 1", transition, got)
		}
	}
	if got := testutil.ToFloat64(collector.toggleChanges); got != 1 {
		t.Errorf("changes_total = %v, want 1", got)
	}
}

func TestObserver_NilNextDoesNotPanic(t *testing.T) {
	observer := NewObserver(NewCollector("saturn"), nil)
	observer.Notify(notify.Event{Kind: notify.KindBudgetWarning, ScopeID: "s1"})
}

// notifierFunc adapts a function to notify.Notifier.
type notifierFunc func(notify.Event)

func (f notifierFunc) Notify(event notify.Event) { f(event) }
