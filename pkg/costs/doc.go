// Package costs computes operation cost from usage metrics and enforces
// per-scope budget periods.
//
// The Tracker is the only writer of budget counters. RecordUsage runs
// the atomic check-then-increment at the storage layer, then appends the
// cost entry to the audit chain and the cost ledger. Budget enforcement
// is non-reserving: CheckBudget is a pure read used by the router before
// committing to a backend, so concurrent spenders can overshoot the
// limit once. The increment primitive rejects any call that observes an
// already-exhausted counter, which makes rejection deterministic from
// the first post-overshoot call onward.
//
// Pricing lookups fail loudly: an unpriced backend is a configuration
// error, never a free operation.
//
// Budget periods are UTC calendar days. Counters for a new period are
// created implicitly with zero spend on first write.
package costs
