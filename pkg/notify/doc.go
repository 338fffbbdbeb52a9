// Package notify delivers best-effort notifications for governance
// events: approval transitions, budget threshold crossings, and audit
// chain integrity alerts.
//
// Notifications are observability-only. The Dispatcher enqueues events
// onto a bounded channel drained by a fixed pool of workers, so core
// state transitions never block on (or roll back because of) delivery.
// Events are dropped with a log line when the queue is full; there is no
// ordering guarantee relative to the state transitions that produced
// them, and failed deliveries are not retried indefinitely.
//
// The WebhookSink posts Discord-compatible embed payloads and is wrapped
// in a circuit breaker so a dead webhook endpoint stops consuming
// workers quickly.
package notify
