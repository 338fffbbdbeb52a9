// Package audit implements the tamper-evident audit chain.
//
// Every governance decision and spend record is appended as a chain entry.
// Entries within one scope form a singly linked SHA-256 hash chain: each
// entry hash covers the previous entry's hash, the payload hash, the
// sequence number, and the scope ID. Sequence numbers start at 0 and
// increment with no gaps, so deleting or mutating any stored entry breaks
// recomputation at (or immediately after) that sequence.
//
// # Isolation
//
// Chains never link across scopes. The genesis hash is derived from the
// scope ID, so two scopes with identical payloads still produce distinct
// chains.
//
// # Verification
//
// Verify replays a scope's entries in sequence order, recomputing every
// hash. It reports the first broken sequence number on divergence. A
// broken chain is fatal to trust in that scope's history; it is surfaced
// to operators and never auto-repaired. The Scheduler runs Verify on a
// cron schedule and raises a notification event when a chain fails.
package audit
