package metrics

import (
	"mercator-hq/saturn/pkg/notify"
)

// Observer counts governance events into the collector and forwards
// them to the next notifier. It sits in front of the dispatcher so the
// same event stream feeds both metrics and webhook delivery.
type Observer struct {
	collector *Collector
	next      notify.Notifier
}

// NewObserver creates an observer recording into collector and
// forwarding to next. A nil next drops events after counting.
func NewObserver(collector *Collector, next notify.Notifier) *Observer {
	if next == nil {
		next = notify.NopNotifier{}
	}
	return &Observer{collector: collector, next: next}
}

// Notify implements notify.Notifier.
func (o *Observer) Notify(event notify.Event) {
	switch event.Kind {
	case notify.KindBudgetExceeded:
		o.collector.RecordBudgetRejection(event.ScopeID)
	case notify.KindBudgetWarning:
		o.collector.RecordBudgetWarning(event.ScopeID)
	case notify.KindApprovalProposed:
		o.collector.RecordApprovalTransition(event.ScopeID, "proposed")
	case notify.KindApprovalApproved:
		o.collector.RecordApprovalTransition(event.ScopeID, "approved")
	case notify.KindApprovalRejected:
		o.collector.RecordApprovalTransition(event.ScopeID, "rejected")
	case notify.KindApprovalExpired:
		o.collector.RecordApprovalTransition(event.ScopeID, "expired")
	case notify.KindToggleChanged:
		o.collector.RecordToggleChange()
	case notify.KindChainAlert:
		o.collector.RecordChainAlert(event.ScopeID)
	}

	o.next.Notify(event)
}
