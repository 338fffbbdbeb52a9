// Package ledger defines the storage contract for the governance core's
// mutable and append-only state: budget counters, cost entries, feature
// toggle rows, and recommendation rows.
//
// The only hot mutable shared state in the system is the budget counter
// row. Backends must implement IncrementIfUnder as a single atomic
// check-then-increment so that concurrent spend recording never loses
// updates. Everything else is write-once (cost entries, decided
// recommendations) or rarely mutated (toggles).
//
// Two backends are provided:
//   - MemoryStore: in-process, mutex-serialized, for tests and
//     single-instance deployments without durability requirements.
//   - SQLiteStore: durable single-instance storage using WAL mode.
//
// All rows are partitioned by scope ID. Backends must never return rows
// across scope boundaries from scoped queries.
package ledger
