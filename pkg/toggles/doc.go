// Package toggles holds named boolean switches consulted by the router
// and the approval gate.
//
// Locked toggles can only be flipped by the configured human-approver
// role. The check lives in Registry.Set, the single mutation entry point
// every caller goes through; there is no parallel write path, so the
// guarantee is structural rather than advisory. The built-in safety
// toggles ("autonomous-execution-allowed", "autonomous-approval-allowed",
// "safety-override-allowed") are seeded locked and stay locked.
//
// Every successful mutation is persisted to the ledger and appended to
// the scope-independent audit chain under the system scope.
package toggles
