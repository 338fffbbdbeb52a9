// Package approval implements the human sign-off workflow for
// margin-affecting changes.
//
// A recommendation starts PENDING and transitions exactly once to
// APPROVED, REJECTED, or EXPIRED; terminal states are immutable. Only
// the configured human-approver role may decide (the locked
// "autonomous-approval-allowed" toggle is the sole, human-controlled
// escape hatch). Expiry is lazy: any reader that observes a PENDING
// recommendation past its deadline materializes EXPIRED first, so an
// expired recommendation can never be approved afterward.
//
// Every transition is appended to the scope's audit chain and announced
// through the notification sink. Notification delivery is fire-and-
// forget: a failed webhook never rolls back a decision. An approved
// route change is applied to the routing table, which invalidates the
// router's cached decisions for the affected operation.
package approval
