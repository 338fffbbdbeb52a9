// Package routing implements the operation router, the top-level
// decision engine that picks a model backend for each operation.
//
// A routing request walks four gates: the decision cache (short TTL,
// explicitly invalidated on approved route changes), the route table
// keyed (scope, operation) with a global-default fallback, the gating
// feature toggle (fail closed), and the scope's remaining budget for
// the current period. When the primary backend's estimated cost does
// not fit the remaining budget the router walks the configured fallback
// list in order and selects the first backend that fits; ties between
// equally priced fallbacks preserve configured order. Expensive or
// high-criticality routes are flagged approvalRequired but never
// blocked: approval governs changing the route table, not individual
// operation calls.
//
// Route has no side effects beyond cache population. Budget state is
// only ever mutated by the cost tracker after the operation completes.
package routing
