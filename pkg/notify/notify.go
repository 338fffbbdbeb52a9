package notify

import (
	"context"
	"time"
)

// Kind classifies a notification event.
type Kind string

// Event kinds emitted by the governance core.
const (
	KindApprovalProposed Kind = "approval.proposed"
	KindApprovalApproved Kind = "approval.approved"
	KindApprovalRejected Kind = "approval.rejected"
	KindApprovalExpired  Kind = "approval.expired"
	KindBudgetWarning    Kind = "budget.warning"
	KindBudgetExceeded   Kind = "budget.exceeded"
	KindChainAlert       Kind = "audit.chain_alert"
	KindToggleChanged    Kind = "toggle.changed"
)

// Event is a single notification.
type Event struct {
	// Kind classifies the event.
	Kind Kind

	// ScopeID is the scope the event relates to (may be empty for
	// system-wide events).
	ScopeID string

	// Summary is a short human-readable description.
	Summary string

	// Fields carries event details as key/value pairs.
	Fields map[string]string

	// OccurredAt is when the event was produced.
	OccurredAt time.Time
}

// Sink delivers a single event. Implementations must treat delivery as
// best-effort; returned errors are logged by the dispatcher, never
// propagated to the caller that produced the event.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Notifier is the producer-facing interface. Core components hold this
// rather than a concrete dispatcher so tests can capture events.
type Notifier interface {
	// Notify enqueues an event for asynchronous delivery. It never
	// blocks and never returns an error to the caller.
	Notify(event Event)
}

// NopNotifier discards all events. Used when notifications are disabled.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(Event) {}
